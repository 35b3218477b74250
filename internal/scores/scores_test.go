package scores

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadMixedLines(t *testing.T) {
	list, err := Read(strings.NewReader("3\n2.5\nfoo\n"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(list))
	}

	if list[0].Kind != KindInt || list[0].Int != 3 {
		t.Errorf("line 1: expected int 3, got %s %v", list[0].Kind, list[0].Value())
	}
	if list[1].Kind != KindFloat || list[1].Float != 2.5 {
		t.Errorf("line 2: expected float 2.5, got %s %v", list[1].Kind, list[1].Value())
	}
	if list[2].Kind != KindRaw || list[2].Text != "foo" {
		t.Errorf("line 3: expected raw foo, got %s %v", list[2].Kind, list[2].Value())
	}

	data, err := json.Marshal(list)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `[3,2.5,"foo"]` {
		t.Fatalf("unexpected JSON: %s", data)
	}
}

func TestParseFallbackChain(t *testing.T) {
	testCases := []struct {
		input string
		kind  Kind
		json  string
	}{
		{"42", KindInt, "42"},
		{"  -7 ", KindInt, "-7"},
		{"3.0", KindFloat, "3.0"},
		{"1e3", KindFloat, "1e3"},
		{"[1, 2]", KindLiteral, "[1,2]"},
		{"(4, 5)", KindLiteral, "[4,5]"},
		{"'text'", KindLiteral, `"text"`},
		{"True", KindLiteral, "true"},
		{"None", KindLiteral, "null"},
		{"nan", KindRaw, `"nan"`},
		{"[unclosed", KindRaw, `"[unclosed"`},
		{"score: 12", KindRaw, `"score: 12"`},
		{"1_000", KindInt, "1000"},
		{"007", KindInt, "7"},
		{"1.", KindFloat, "1.0"},
		{"99999999999999999999", KindFloat, "99999999999999999999"},
		{"(7)", KindLiteral, "7"},
		{"(7,)", KindLiteral, "[7]"},
		{"()", KindLiteral, "[]"},
		{"- 4", KindLiteral, "-4"},
		{"0x10", KindLiteral, "16"},
		{"[1, 'a', None, True, 2.0]", KindLiteral, `[1,"a",null,true,2.0]`},
		{"{'b': 1, 'a': [2.5, (3,)]}", KindLiteral, `{"b":1,"a":[2.5,[3]]}`},
		{"{1: 'x', None: 'y'}", KindLiteral, `{"1":"x","null":"y"}`},
		{`'it\'s' " ok"`, KindLiteral, `"it's ok"`},
		{`u'\x41\u00e9'`, KindLiteral, `"Aé"`},
		{`r'\d+'`, KindLiteral, `"\\d+"`},
		{"[1, 2,]  # trailing", KindLiteral, "[1,2]"},
		{"[foo]", KindRaw, `"[foo]"`},
		{"{a: 1}", KindRaw, `"{a: 1}"`},
		{"{1, 2}", KindRaw, `"{1, 2}"`},
		{"true", KindRaw, `"true"`},
		{"null", KindRaw, `"null"`},
		{"0x1p-2", KindRaw, `"0x1p-2"`},
		{"1j", KindRaw, `"1j"`},
		{"b'bytes'", KindRaw, `"b'bytes'"`},
		{"inf", KindRaw, `"inf"`},
		{".inf", KindRaw, `".inf"`},
		{"[.inf]", KindRaw, `"[.inf]"`},
		{"{a: .nan}", KindRaw, `"{a: .nan}"`},
		{"1e400", KindRaw, `"1e400"`},
		{"[1e400]", KindRaw, `"[1e400]"`},
	}

	for _, tc := range testCases {
		s := Parse(tc.input)
		if s.Kind != tc.kind {
			t.Errorf("input %q: expected kind %s, got %s", tc.input, tc.kind, s.Kind)
			continue
		}
		data, err := json.Marshal(s)
		if err != nil {
			t.Errorf("input %q: marshal: %v", tc.input, err)
			continue
		}
		if string(data) != tc.json {
			t.Errorf("input %q: expected JSON %s, got %s", tc.input, tc.json, data)
		}
	}
}

func TestReadSkipsBlankLines(t *testing.T) {
	list, err := Read(strings.NewReader("\n1\n\n  \n2\n"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := Floats(list); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected scores: %v", got)
	}
}

func TestReadFileMissing(t *testing.T) {
	r, err := ReadFile(filepath.Join(t.TempDir(), "absent.txt"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if r.Available() {
		t.Fatal("expected Missing readout")
	}
	if list := r.List(); list == nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v", list)
	}
	data, _ := json.Marshal(r)
	if string(data) != "null" {
		t.Fatalf("missing readout should encode as null, got %s", data)
	}
}

func TestClearThenReadIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "score.txt")
	if err := os.WriteFile(path, []byte("1\n2\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("clear: %v", err)
	}

	r, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !r.Available() || len(r.Scores) != 0 {
		t.Fatalf("expected available empty readout, got %+v", r)
	}
	data, _ := json.Marshal(r)
	if string(data) != "[]" {
		t.Fatalf("expected [], got %s", data)
	}
}

func TestReadoutLast(t *testing.T) {
	r := Readout{Status: Available, Scores: []Score{Parse("1"), Parse("2"), Parse("3")}}
	got := Floats(r.Last(2).Scores)
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("unexpected tail: %v", got)
	}
	if len(r.Last(0).Scores) != 3 {
		t.Fatal("Last(0) should keep every score")
	}
}

func TestScoreUnmarshalJSON(t *testing.T) {
	var list []Score
	if err := json.Unmarshal([]byte(`[3, 2.5, "foo", [1]]`), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	kinds := []Kind{KindInt, KindFloat, KindRaw, KindLiteral}
	for i, k := range kinds {
		if list[i].Kind != k {
			t.Errorf("element %d: expected %s, got %s", i, k, list[i].Kind)
		}
	}
}
