package missions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mpataki/argosweep/internal/scores"
)

// Results is the batch evaluator's document:
//
//	{"Aggregation-1 (1 groups)": {"Grappa-1": [[placeholder, fsm, [scores...]], ...]}}
//
// Mission and behaviour order is kept as found on disk.
type Results struct {
	Missions []*Mission
}

type Mission struct {
	Name       string
	Behaviours []*Behaviour
}

type Behaviour struct {
	Name    string
	Entries []*Entry
}

// Entry is one [placeholder, fsm, scores] triple. Elements the evaluator does
// not touch are carried through as raw JSON.
type Entry struct {
	Placeholder json.RawMessage
	FSM         string
	Scores      json.RawMessage
	Extra       []json.RawMessage
}

func LoadResults(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}

	var r Results
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse results file %s: %w", path, err)
	}
	return &r, nil
}

// Save atomically replaces path with the current document.
func (r *Results) Save(path string) error {
	compact, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	data, err := indentJSON(compact)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := writeFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write results file %s: %w", path, err)
	}
	return nil
}

// Count returns the number of entries across all missions and behaviours.
func (r *Results) Count() int {
	n := 0
	for _, m := range r.Missions {
		for _, b := range m.Behaviours {
			n += len(b.Entries)
		}
	}
	return n
}

func (r *Results) UnmarshalJSON(data []byte) error {
	r.Missions = nil
	return decodeObject(data, func(name string, raw json.RawMessage) error {
		m := &Mission{Name: name}
		if err := json.Unmarshal(raw, m); err != nil {
			return fmt.Errorf("mission %q: %w", name, err)
		}
		for i, existing := range r.Missions {
			if existing.Name == name {
				r.Missions[i] = m
				return nil
			}
		}
		r.Missions = append(r.Missions, m)
		return nil
	})
}

func (r *Results) MarshalJSON() ([]byte, error) {
	keys := make([]string, len(r.Missions))
	values := make([]any, len(r.Missions))
	for i, m := range r.Missions {
		keys[i] = m.Name
		values[i] = m
	}
	return encodeObject(keys, values)
}

func (m *Mission) UnmarshalJSON(data []byte) error {
	m.Behaviours = nil
	return decodeObject(data, func(name string, raw json.RawMessage) error {
		b := &Behaviour{Name: name}
		if err := json.Unmarshal(raw, &b.Entries); err != nil {
			return fmt.Errorf("behaviour %q: %w", name, err)
		}
		for i, existing := range m.Behaviours {
			if existing.Name == name {
				m.Behaviours[i] = b
				return nil
			}
		}
		m.Behaviours = append(m.Behaviours, b)
		return nil
	})
}

func (m *Mission) MarshalJSON() ([]byte, error) {
	keys := make([]string, len(m.Behaviours))
	values := make([]any, len(m.Behaviours))
	for i, b := range m.Behaviours {
		keys[i] = b.Name
		entries := b.Entries
		if entries == nil {
			entries = []*Entry{}
		}
		values[i] = entries
	}
	return encodeObject(keys, values)
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("entry must be an array: %w", err)
	}
	if len(parts) < 2 {
		return fmt.Errorf("entry needs at least [placeholder, fsm], got %d elements", len(parts))
	}

	var fsm string
	if err := json.Unmarshal(parts[1], &fsm); err != nil {
		return fmt.Errorf("entry FSM must be a string: %w", err)
	}

	e.Placeholder = parts[0]
	e.FSM = fsm
	e.Scores = nil
	e.Extra = nil
	if len(parts) > 2 {
		e.Scores = parts[2]
	}
	if len(parts) > 3 {
		e.Extra = parts[3:]
	}
	return nil
}

func (e *Entry) MarshalJSON() ([]byte, error) {
	placeholder := e.Placeholder
	if len(placeholder) == 0 {
		placeholder = json.RawMessage("null")
	}
	fsm, err := json.Marshal(e.FSM)
	if err != nil {
		return nil, err
	}
	list := e.Scores
	if len(list) == 0 {
		list = json.RawMessage("[]")
	}

	parts := append([]json.RawMessage{placeholder, fsm, list}, e.Extra...)
	return json.Marshal(parts)
}

// SetScores replaces the entry's score list.
func (e *Entry) SetScores(list []scores.Score) error {
	if list == nil {
		list = []scores.Score{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode scores: %w", err)
	}
	e.Scores = data
	return nil
}

// ScoreList decodes the entry's score list. A missing or null list is empty.
func (e *Entry) ScoreList() ([]scores.Score, error) {
	trimmed := bytes.TrimSpace(e.Scores)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []scores.Score{}, nil
	}

	var list []scores.Score
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, fmt.Errorf("entry scores for %q: %w", e.FSM, err)
	}
	return list, nil
}

// Complete reports whether the entry already holds at least n scores.
func (e *Entry) Complete(n int) bool {
	list, err := e.ScoreList()
	if err != nil {
		return false
	}
	return n > 0 && len(list) >= n
}

// decodeObject walks a JSON object in document order.
func decodeObject(data []byte, fn func(key string, value json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// encodeObject writes keys and values as a JSON object in the given order.
func encodeObject(keys []string, values []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
