package lua

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// TemplateResolver maps a mission name such as "Aggregation-1 (1 groups)" to
// a scenario file by expanding {number} and {mission} in Template. The
// number is the part after the first "-" of the first word.
type TemplateResolver struct {
	Template string
}

func (t TemplateResolver) Resolve(mission string) (string, error) {
	fields := strings.Fields(mission)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty mission name")
	}
	parts := strings.Split(fields[0], "-")
	if len(parts) < 2 || parts[1] == "" {
		return "", fmt.Errorf("mission %q has no number after '-'", mission)
	}

	r := strings.NewReplacer("{number}", parts[1], "{mission}", fields[0])
	return r.Replace(t.Template), nil
}

// ScriptResolver asks a Lua script for the scenario of each mission. The
// script must define scenario(mission) returning a path.
type ScriptResolver struct {
	state    *lua.LState
	path     string
	fallback TemplateResolver
	logs     []string
}

// NewScriptResolver loads scriptPath into a sandboxed state. Close must be
// called when done.
func NewScriptResolver(scriptPath string, fallback TemplateResolver) (*ScriptResolver, error) {
	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	r := &ScriptResolver{
		path:     scriptPath,
		fallback: fallback,
		logs:     make([]string, 0),
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	r.state = L

	r.openSafeLibs(L)
	r.registerAPI(L)

	if err := L.DoString(string(script)); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load script: %w", err)
	}

	if fn := L.GetGlobal("scenario"); fn.Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("script must define a 'scenario' function")
	}

	return r, nil
}

func (r *ScriptResolver) Close() {
	r.state.Close()
}

// Resolve calls scenario(mission). Relative results are taken relative to
// the script's directory.
func (r *ScriptResolver) Resolve(mission string) (string, error) {
	L := r.state
	if err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal("scenario"),
		NRet:    1,
		Protect: true,
	}, lua.LString(mission)); err != nil {
		return "", fmt.Errorf("scenario(%q) failed: %w", mission, err)
	}

	ret := L.Get(-1)
	L.Pop(1)

	s, ok := ret.(lua.LString)
	if !ok || string(s) == "" {
		return "", fmt.Errorf("scenario(%q) returned %s, want a path", mission, ret.Type())
	}

	path := string(s)
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(r.path), path)
	}
	return path, nil
}

// Logs returns the messages passed to log() so far.
func (r *ScriptResolver) Logs() []string {
	return r.logs
}

func (r *ScriptResolver) openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil) // use log()

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	math := L.GetGlobal("math")
	if tbl, ok := math.(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

func (r *ScriptResolver) registerAPI(L *lua.LState) {
	L.SetGlobal("log", L.NewFunction(r.luaLog))
	L.SetGlobal("template", L.NewFunction(r.luaTemplate))
}

// luaLog implements log(message)
func (r *ScriptResolver) luaLog(L *lua.LState) int {
	message := L.CheckString(1)
	r.logs = append(r.logs, message)
	return 0
}

// luaTemplate implements template(mission), the default resolution rule.
// The template is relative to the working directory, not the script, so the
// result is made absolute before the script sees it.
func (r *ScriptResolver) luaTemplate(L *lua.LState) int {
	mission := L.CheckString(1)
	path, err := r.fallback.Resolve(mission)
	if err == nil {
		path, err = filepath.Abs(path)
	}
	if err != nil {
		L.RaiseError("%v", err)
		return 0
	}
	L.Push(lua.LString(path))
	return 1
}

// IsLuaScript checks if a file is a Lua script
func IsLuaScript(path string) bool {
	return filepath.Ext(path) == ".lua"
}
