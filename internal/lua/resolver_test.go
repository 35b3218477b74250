package lua

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTemplateResolver(t *testing.T) {
	r := TemplateResolver{Template: "/scenarios/heterogeneity/aggregation{number}.argos"}

	testCases := []struct {
		mission string
		want    string
	}{
		{"Aggregation-1 (1 groups)", "/scenarios/heterogeneity/aggregation1.argos"},
		{"Aggregation-12", "/scenarios/heterogeneity/aggregation12.argos"},
		{"Foraging-3-b (x)", "/scenarios/heterogeneity/aggregation3.argos"},
	}
	for _, tc := range testCases {
		got, err := r.Resolve(tc.mission)
		if err != nil {
			t.Errorf("%q: %v", tc.mission, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: got %q, want %q", tc.mission, got, tc.want)
		}
	}

	for _, bad := range []string{"", "Aggregation", "Aggregation- (x)"} {
		if _, err := r.Resolve(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resolve.lua")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestScriptResolver(t *testing.T) {
	path := writeScript(t, `
function scenario(mission)
  log("resolving " .. mission)
  if string.find(mission, "^Foraging") then
    return "/scenarios/foraging.argos"
  end
  return template(mission)
end
`)
	r, err := NewScriptResolver(path, TemplateResolver{Template: "/s/aggregation{number}.argos"})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	defer r.Close()

	got, err := r.Resolve("Foraging-2 (2 groups)")
	if err != nil || got != "/scenarios/foraging.argos" {
		t.Fatalf("foraging: got %q, %v", got, err)
	}
	got, err = r.Resolve("Aggregation-4 (4 groups)")
	if err != nil || got != "/s/aggregation4.argos" {
		t.Fatalf("aggregation: got %q, %v", got, err)
	}
	if len(r.Logs()) != 2 || !strings.HasPrefix(r.Logs()[0], "resolving Foraging") {
		t.Fatalf("unexpected logs: %v", r.Logs())
	}
}

func TestScriptResolverRelativePath(t *testing.T) {
	path := writeScript(t, `function scenario(m) return "mission.argos" end`)
	r, err := NewScriptResolver(path, TemplateResolver{})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	defer r.Close()

	got, err := r.Resolve("anything")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != filepath.Join(filepath.Dir(path), "mission.argos") {
		t.Fatalf("got %q", got)
	}
}

func TestScriptResolverRelativeTemplate(t *testing.T) {
	path := writeScript(t, `function scenario(m) return template(m) end`)
	r, err := NewScriptResolver(path, TemplateResolver{Template: "scenarios/aggregation{number}.argos"})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	defer r.Close()

	got, err := r.Resolve("Aggregation-3 (3 groups)")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want, _ := filepath.Abs("scenarios/aggregation3.argos")
	if got != want {
		t.Fatalf("template path should stay relative to the working directory: got %q, want %q", got, want)
	}
}

func TestScriptResolverErrors(t *testing.T) {
	testCases := []struct {
		name   string
		script string
	}{
		{"no function", `x = 1`},
		{"syntax", `function scenario(`},
		{"sandboxed dofile", `dofile("/etc/passwd")`},
	}
	for _, tc := range testCases {
		if _, err := NewScriptResolver(writeScript(t, tc.script), TemplateResolver{}); err == nil {
			t.Errorf("%s: expected load error", tc.name)
		}
	}

	r, err := NewScriptResolver(writeScript(t, `function scenario(m) return nil end`), TemplateResolver{})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	defer r.Close()
	if _, err := r.Resolve("Aggregation-1"); err == nil {
		t.Fatal("expected error for nil result")
	}
}
