package extract

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const header = "# Best configurations as commandlines (first number is the configuration ID; listed from best to worst according to the sum of ranks):\n"

func writeLog(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestFilePatternBoundaries(t *testing.T) {
	testCases := []struct {
		name  string
		n     int
		match bool
	}{
		{"foo_3g1s_bar.stdout", 3, true},
		{"3g1s.stdout", 3, true},
		{"foo_13g1s.stdout", 3, false},
		{"foo_13g1s.stdout", 13, true},
		{"foo_3g1s_bar.stderr", 3, false},
		{"foo_3g1s.stdout.bak", 3, false},
		{"grappa-unb-4g1s-run2.stdout", 4, true},
	}

	for _, tc := range testCases {
		p, err := FilePattern(DefaultCodeFormat, tc.n)
		if err != nil {
			t.Fatalf("pattern: %v", err)
		}
		if got := p.MatchString(tc.name); got != tc.match {
			t.Errorf("%s vs index %d: match = %v, want %v", tc.name, tc.n, got, tc.match)
		}
	}
}

func TestScanTakesLineAfterMarker(t *testing.T) {
	e, err := New(Options{First: 1, Last: 1}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	testCases := []struct {
		name string
		log  string
		want string
		ok   bool
	}{
		{
			name: "match",
			log:  "irace output\n" + header + "   3   --ngroups 2 --s 5\n  7 --ngroups 1\n",
			want: "--ngroups 2 --s 5",
			ok:   true,
		},
		{
			name: "non matching next line stops the scan",
			log:  header + "# nothing here\n" + header + "   3   --ngroups 9\n",
			ok:   false,
		},
		{
			name: "marker on last line",
			log:  "noise\n" + header,
			ok:   false,
		},
		{
			name: "no marker",
			log:  "   3   --ngroups 2\n",
			ok:   false,
		},
		{
			name: "crlf line endings",
			log:  header + "12 --ngroups 3 --s 1\r\n",
			want: "--ngroups 3 --s 1",
			ok:   true,
		},
	}

	for _, tc := range testCases {
		got, ok, err := e.scan(strings.NewReader(tc.log))
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if ok != tc.ok || got != tc.want {
			t.Errorf("%s: got (%q, %v), want (%q, %v)", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRunAggregatesPerMissionCode(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "irace_1g1s_a.stdout", header+"   3   --ngroups 1 --s 5\n")
	writeLog(t, dir, "irace_1g1s_b.stdout", header+"  11   --ngroups 1 --s 2\n")
	writeLog(t, dir, "irace_3g1s.stdout", header+"junk\n")
	writeLog(t, dir, "irace_13g1s.stdout", header+"   1   --ngroups 13\n")
	writeLog(t, dir, "irace_2g1s.stderr", header+"   1   --ngroups 2\n")

	var out bytes.Buffer
	e, err := New(Options{LogDir: dir, MissionName: "Grappa-Unb", First: 1, Last: 6}, &out)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	doc, err := e.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(doc.Missions) != 2 {
		t.Fatalf("expected 2 mission codes, got %v", doc.Missions)
	}
	first := doc.Missions[0]["Grappa-Unb-1g1s"]
	if len(first) != 2 || first[0] != "--ngroups 1 --s 5" || first[1] != "--ngroups 1 --s 2" {
		t.Fatalf("unexpected 1g1s configs: %v", first)
	}
	third, ok := doc.Missions[1]["Grappa-Unb-3g1s"]
	if !ok || len(third) != 0 {
		t.Fatalf("3g1s should be present with no configs: %v", doc.Missions[1])
	}
	if strings.Count(out.String(), "Filtered files:") != 6 {
		t.Fatalf("expected one progress line per index:\n%s", out.String())
	}

	path := filepath.Join(dir, "fsm", "Grappa-Unb_fsm.json")
	if err := doc.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"Grappa-Unb-3g1s": []`) {
		t.Fatalf("unexpected output:\n%s", data)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	if _, err := New(Options{First: 3, Last: 1}, nil); err == nil {
		t.Error("expected error for inverted range")
	}
	if _, err := New(Options{First: 1, Last: 1, LinePattern: `--ngroups`}, nil); err == nil {
		t.Error("expected error for pattern without capture group")
	}
	if _, err := New(Options{First: 1, Last: 1, LinePattern: `(`}, nil); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
