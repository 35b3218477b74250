// Package report turns an evaluated results document into score statistics
// and box plots.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/mpataki/argosweep/internal/missions"
	"github.com/mpataki/argosweep/internal/scores"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats describes the numeric scores of one entry. Non-numeric scores are
// not counted.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std"`
	Median float64 `json:"median"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

type EntrySummary struct {
	Index int    `json:"index"`
	FSM   string `json:"fsm"`
	Stats *Stats `json:"stats"`
}

type BehaviourSummary struct {
	Behaviour string          `json:"behaviour"`
	Entries   []*EntrySummary `json:"entries"`
}

type MissionSummary struct {
	Mission    string              `json:"mission"`
	Behaviours []*BehaviourSummary `json:"behaviours"`
}

// Compute returns nil when values is empty. Quartiles are the medians of the
// lower and upper halves, as drawn by the box plots.
func Compute(values []float64) *Stats {
	if len(values) == 0 {
		return nil
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	s := &Stats{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Median: median(sorted),
		Q1:     sorted[0],
		Q3:     sorted[0],
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
		s.Q1 = median(sorted[:len(sorted)/2])
		s.Q3 = median(sorted[len(sorted)/2:])
	}
	return s
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func Summarize(doc *missions.Results) ([]*MissionSummary, error) {
	out := make([]*MissionSummary, 0, len(doc.Missions))
	for _, m := range doc.Missions {
		ms := &MissionSummary{Mission: m.Name, Behaviours: make([]*BehaviourSummary, 0, len(m.Behaviours))}
		for _, b := range m.Behaviours {
			bs := &BehaviourSummary{Behaviour: b.Name, Entries: make([]*EntrySummary, 0, len(b.Entries))}
			for i, entry := range b.Entries {
				list, err := entry.ScoreList()
				if err != nil {
					return nil, fmt.Errorf("%s / %s entry %d: %w", m.Name, b.Name, i, err)
				}
				bs.Entries = append(bs.Entries, &EntrySummary{
					Index: i,
					FSM:   entry.FSM,
					Stats: Compute(scores.Floats(list)),
				})
			}
			ms.Behaviours = append(ms.Behaviours, bs)
		}
		out = append(out, ms)
	}
	return out, nil
}

func WriteSummary(w io.Writer, summary []*MissionSummary) error {
	data, err := json.MarshalIndent(summary, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
