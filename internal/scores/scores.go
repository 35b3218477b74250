// Package scores reads the simulator's flat score file.
//
// The file holds one value per line. Each line goes through a chain of
// increasingly loose parsers (integer, float, literal, raw text) so that a
// malformed line never fails the whole read.
package scores

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindLiteral
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindLiteral:
		return "literal"
	default:
		return "raw"
	}
}

// Score is one parsed line of the score file.
type Score struct {
	Kind    Kind
	Int     int64
	Float   float64
	Literal any
	Text    string // trimmed source line
}

// Parse runs a single line through the fallback chain. The int and float
// rungs only take decimal spellings; non-finite values and anything else
// that has no JSON form end up raw.
func Parse(line string) Score {
	s := strings.TrimSpace(line)

	if decimalInt.MatchString(s) {
		if v, err := strconv.ParseInt(strings.ReplaceAll(s, "_", ""), 10, 64); err == nil {
			return Score{Kind: KindInt, Int: v, Text: s}
		}
	}
	if decimalFloat.MatchString(s) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(s, "_", ""), 64)
		if err == nil && !math.IsInf(v, 0) {
			return Score{Kind: KindFloat, Float: v, Text: s}
		}
	}
	if v, ok := parseLiteral(s); ok {
		return Score{Kind: KindLiteral, Literal: v, Text: s}
	}
	return Score{Kind: KindRaw, Text: s}
}

// Float64 reports the numeric value of int and float scores.
func (s Score) Float64() (float64, bool) {
	switch s.Kind {
	case KindInt:
		return float64(s.Int), true
	case KindFloat:
		return s.Float, true
	}
	return 0, false
}

// Value returns the natural Go value of the score.
func (s Score) Value() any {
	switch s.Kind {
	case KindInt:
		return s.Int
	case KindFloat:
		return s.Float
	case KindLiteral:
		return s.Literal
	default:
		return s.Text
	}
}

func (s Score) String() string {
	return s.Text
}

func (s Score) MarshalJSON() ([]byte, error) {
	if s.Kind == KindFloat {
		// Keep the source spelling so "3.0" is not rewritten as 3.
		if json.Valid([]byte(s.Text)) {
			return []byte(s.Text), nil
		}
		return pyFloat(s.Float).MarshalJSON()
	}
	return json.Marshal(s.Value())
}

func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if text, ok := v.(string); ok {
		*s = Score{Kind: KindRaw, Text: text}
		return nil
	}
	if _, ok := v.(float64); ok {
		*s = Parse(string(data))
		return nil
	}
	*s = Score{Kind: KindLiteral, Literal: v, Text: string(data)}
	return nil
}

// Floats returns the numeric scores, skipping everything else.
func Floats(list []Score) []float64 {
	out := make([]float64, 0, len(list))
	for _, s := range list {
		if f, ok := s.Float64(); ok {
			out = append(out, f)
		}
	}
	return out
}

// Read parses every non-blank line of r.
func Read(r io.Reader) ([]Score, error) {
	var list []Score
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		list = append(list, Parse(line))
	}

	return list, scanner.Err()
}

type Status int

const (
	// Missing means the score file does not exist yet.
	Missing Status = iota
	Available
)

// Readout is the outcome of reading a score file. Callers must check Status
// before using Scores.
type Readout struct {
	Status Status
	Scores []Score
}

func (r Readout) Available() bool {
	return r.Status == Available
}

// Last keeps only the final n scores. n <= 0 keeps all of them.
func (r Readout) Last(n int) Readout {
	if n <= 0 || len(r.Scores) <= n {
		return r
	}
	return Readout{Status: r.Status, Scores: r.Scores[len(r.Scores)-n:]}
}

// List returns the scores, or an empty non-nil slice when the file was missing.
func (r Readout) List() []Score {
	if r.Scores == nil {
		return []Score{}
	}
	return r.Scores
}

func (r Readout) MarshalJSON() ([]byte, error) {
	if !r.Available() {
		return []byte("null"), nil
	}
	return json.Marshal(r.List())
}

// ReadFile reads the score file at path. A missing file is reported as a
// Missing readout, not as an error.
func ReadFile(path string) (Readout, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Readout{Status: Missing}, nil
		}
		return Readout{}, fmt.Errorf("failed to open score file: %w", err)
	}
	defer f.Close()

	list, err := Read(f)
	if err != nil {
		return Readout{}, fmt.Errorf("failed to read score file: %w", err)
	}
	return Readout{Status: Available, Scores: list}, nil
}

// Clear truncates the score file, creating it if needed.
func Clear(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to clear score file: %w", err)
	}
	return f.Close()
}
