package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/mpataki/argosweep/internal/missions"
	"github.com/mpataki/argosweep/internal/scores"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

type PlotOptions struct {
	Dir  string
	Runs int
	// YMin and YMax pin the score axis when set.
	YMin *float64
	YMax *float64
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PlotFileName is the PNG name used for one mission/behaviour pair.
func PlotFileName(mission, behaviour string) string {
	name := unsafeName.ReplaceAllString(mission+" "+behaviour, "_")
	return strings.Trim(name, "_") + ".png"
}

// Plot writes one box plot per mission/behaviour, with a box for every entry
// that holds numeric scores. It returns the written paths.
func Plot(doc *missions.Results, opts PlotOptions) ([]string, error) {
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}

	var written []string
	for _, m := range doc.Missions {
		for _, b := range m.Behaviours {
			p, ok, err := behaviourPlot(m.Name, b, opts)
			if err != nil {
				return written, err
			}
			if !ok {
				continue
			}

			path := filepath.Join(opts.Dir, PlotFileName(m.Name, b.Name))
			if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
				return written, fmt.Errorf("failed to save plot %s: %w", path, err)
			}
			written = append(written, path)
		}
	}
	return written, nil
}

func behaviourPlot(mission string, b *missions.Behaviour, opts PlotOptions) (*plot.Plot, bool, error) {
	p := plot.New()
	p.Title.Text = mission + " / " + b.Name
	p.X.Label.Text = "Instances of control software"
	if opts.Runs > 0 {
		p.Y.Label.Text = fmt.Sprintf("Scores (%d runs)", opts.Runs)
	} else {
		p.Y.Label.Text = "Scores"
	}

	var names []string
	for i, entry := range b.Entries {
		list, err := entry.ScoreList()
		if err != nil {
			return nil, false, fmt.Errorf("%s / %s entry %d: %w", mission, b.Name, i, err)
		}
		values := scores.Floats(list)
		if len(values) == 0 {
			continue
		}

		box, err := plotter.NewBoxPlot(vg.Points(20), float64(len(names)), plotter.Values(values))
		if err != nil {
			return nil, false, fmt.Errorf("%s / %s entry %d: %w", mission, b.Name, i, err)
		}
		box.FillColor = color.Gray{Y: 211}
		p.Add(box)
		names = append(names, strconv.Itoa(i+1))
	}
	if len(names) == 0 {
		return nil, false, nil
	}

	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter

	if opts.YMin != nil {
		p.Y.Min = *opts.YMin
	}
	if opts.YMax != nil {
		p.Y.Max = *opts.YMax
	}

	return p, true, nil
}
