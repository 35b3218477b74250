package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"
)

const sampleArgos = `<?xml version="1.0" ?>
<argos-configuration>
  <framework>
    <experiment length="120" ticks_per_second="10" random_seed="0"/>
  </framework>
  <controllers>
    <automode_controller id="automode" library="/opt/automode.so">
      <actuators/>
      <params readable="false" fsm-config="--nstates 1 --s0 0" history="false"/>
    </automode_controller>
  </controllers>
</argos-configuration>
`

func writeArgos(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mission.argos")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write argos: %v", err)
	}
	return path
}

func attrs(e *etree.Element) map[string]string {
	out := make(map[string]string, len(e.Attr))
	for _, a := range e.Attr {
		out[a.FullKey()] = a.Value
	}
	return out
}

func TestEditArgosSetsOnlyRequestedAttributes(t *testing.T) {
	path := writeArgos(t, sampleArgos)
	fsm := "--nstates 2 --s0 1 --rwm0 50 --n0 1 --n0x0 0 --c0x0 5 --p0x0 0.5"

	before, err := LoadArgos(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	paramsBefore := attrs(before.FindElement(".//params"))
	experimentBefore := attrs(before.FindElement(".//experiment"))

	if err := EditArgos(path, fsm, 107); err != nil {
		t.Fatalf("edit: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.HasPrefix(string(data), XMLDeclaration) {
		t.Fatalf("expected literal declaration, got %q", string(data)[:40])
	}
	if strings.Count(string(data), "<?xml") != 1 {
		t.Fatalf("expected exactly one declaration:\n%s", data)
	}

	after, err := LoadArgos(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	paramsAfter := attrs(after.FindElement(".//params"))
	experimentAfter := attrs(after.FindElement(".//experiment"))

	if paramsAfter["fsm-config"] != fsm {
		t.Errorf("fsm-config = %q, want %q", paramsAfter["fsm-config"], fsm)
	}
	if experimentAfter["random_seed"] != "107" {
		t.Errorf("random_seed = %q, want 107", experimentAfter["random_seed"])
	}

	for k, v := range paramsBefore {
		if k == "fsm-config" {
			continue
		}
		if paramsAfter[k] != v {
			t.Errorf("params attribute %s changed: %q -> %q", k, v, paramsAfter[k])
		}
	}
	for k, v := range experimentBefore {
		if k == "random_seed" {
			continue
		}
		if experimentAfter[k] != v {
			t.Errorf("experiment attribute %s changed: %q -> %q", k, v, experimentAfter[k])
		}
	}
	if len(paramsAfter) != len(paramsBefore) || len(experimentAfter) != len(experimentBefore) {
		t.Errorf("attribute count changed")
	}
}

func TestEditArgosAddsMissingAttributes(t *testing.T) {
	path := writeArgos(t, `<root><experiment length="1"/><params/></root>`)
	if err := EditArgos(path, "--fsm", 100); err != nil {
		t.Fatalf("edit: %v", err)
	}
	doc, err := LoadArgos(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := doc.FindElement(".//params").SelectAttrValue("fsm-config", ""); got != "--fsm" {
		t.Fatalf("fsm-config = %q", got)
	}
}

func TestEditArgosConfigMismatch(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		missing string
	}{
		{"no params", `<root><experiment random_seed="1"/></root>`, "<params>"},
		{"no experiment", `<root><params fsm-config="x"/></root>`, "<experiment>"},
	}

	for _, tc := range testCases {
		path := writeArgos(t, tc.content)
		err := EditArgos(path, "--fsm", 100)
		if !errors.Is(err, ErrConfigMismatch) {
			t.Errorf("%s: expected ErrConfigMismatch, got %v", tc.name, err)
			continue
		}
		if !strings.Contains(err.Error(), tc.missing) {
			t.Errorf("%s: error %q should name %s", tc.name, err, tc.missing)
		}

		data, _ := os.ReadFile(path)
		if string(data) != tc.content {
			t.Errorf("%s: file must be left untouched on mismatch", tc.name)
		}
	}
}

func TestWriteLauncher(t *testing.T) {
	dir := t.TempDir()
	ws, err := New("/data/aggregation.argos", filepath.Join(dir, "score.txt"), filepath.Join(dir, "argos.sh"), "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := ws.WriteLauncher(); err != nil {
		t.Fatalf("write launcher: %v", err)
	}

	data, err := os.ReadFile(ws.LauncherPath)
	if err != nil {
		t.Fatalf("read launcher: %v", err)
	}
	want := "#!/bin/bash\nargos3 -c /data/aggregation.argos\n"
	if string(data) != want {
		t.Fatalf("launcher = %q, want %q", data, want)
	}

	st, err := os.Stat(ws.LauncherPath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Mode()&0100 == 0 {
		t.Fatalf("launcher is not executable: %v", st.Mode())
	}
}

func TestNewRequiresPaths(t *testing.T) {
	if _, err := New("", "score.txt", "", ""); err == nil {
		t.Error("expected error for empty argos file")
	}
	if _, err := New("a.argos", "", "", ""); err == nil {
		t.Error("expected error for empty score file")
	}
}
