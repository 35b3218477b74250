// Package extract pulls the best FSM configuration out of tuning logs.
//
// Each log is a *.stdout file whose name carries a mission code such as
// "3g1s". The configuration sits on the line right after the
// "# Best configurations as commandlines" marker.
package extract

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mpataki/argosweep/internal/missions"
)

const (
	DefaultMarker      = "# Best configurations as commandlines"
	DefaultLinePattern = `^\s*\d+\s+(--ngroups.*)`
	DefaultCodeFormat  = "%dg1s"
)

type Options struct {
	LogDir      string
	MissionName string
	First       int
	Last        int
	CodeFormat  string
	Marker      string
	LinePattern string
}

type Extractor struct {
	opts    Options
	line    *regexp.Regexp
	out     io.Writer
	codes   []string
	configs map[string][]string
}

func New(opts Options, out io.Writer) (*Extractor, error) {
	if opts.Marker == "" {
		opts.Marker = DefaultMarker
	}
	if opts.LinePattern == "" {
		opts.LinePattern = DefaultLinePattern
	}
	if opts.CodeFormat == "" {
		opts.CodeFormat = DefaultCodeFormat
	}
	if opts.First > opts.Last {
		return nil, fmt.Errorf("first mission index %d is after last %d", opts.First, opts.Last)
	}

	line, err := regexp.Compile(opts.LinePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid line pattern: %w", err)
	}
	if line.NumSubexp() < 1 {
		return nil, fmt.Errorf("line pattern %q needs a capture group", opts.LinePattern)
	}
	if out == nil {
		out = io.Discard
	}

	return &Extractor{
		opts:    opts,
		line:    line,
		out:     out,
		configs: make(map[string][]string),
	}, nil
}

// FilePattern matches *.stdout names carrying the mission code for index n.
// The code must not be preceded by a digit, so index 3 does not pick up
// "13g1s".
func FilePattern(codeFormat string, n int) (*regexp.Regexp, error) {
	code := regexp.QuoteMeta(fmt.Sprintf(codeFormat, n))
	return regexp.Compile(`(?:^|[^0-9])(` + code + `).*\.stdout$`)
}

// Run scans the log directory for every mission index and returns the
// collected configurations, mission codes in first-seen order.
func (e *Extractor) Run() (*missions.SweepFile, error) {
	files, err := filepath.Glob(filepath.Join(e.opts.LogDir, "*.stdout"))
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}

	for n := e.opts.First; n <= e.opts.Last; n++ {
		pattern, err := FilePattern(e.opts.CodeFormat, n)
		if err != nil {
			return nil, fmt.Errorf("invalid code format %q: %w", e.opts.CodeFormat, err)
		}

		var matched []string
		for _, f := range files {
			if pattern.MatchString(filepath.Base(f)) {
				matched = append(matched, f)
			}
		}
		fmt.Fprintf(e.out, "Filtered files: %d\n", len(matched))

		for _, f := range matched {
			raw := pattern.FindStringSubmatch(filepath.Base(f))[1]
			code := e.opts.MissionName + "-" + raw
			e.register(code)

			config, ok, err := e.scanFile(f)
			if err != nil {
				fmt.Fprintf(e.out, "  skipping %s: %v\n", filepath.Base(f), err)
				continue
			}
			if ok {
				e.configs[code] = append(e.configs[code], config)
			}
		}
	}

	return e.document(), nil
}

func (e *Extractor) register(code string) {
	if _, ok := e.configs[code]; ok {
		return
	}
	e.codes = append(e.codes, code)
	e.configs[code] = []string{}
}

func (e *Extractor) document() *missions.SweepFile {
	doc := &missions.SweepFile{Missions: make([]map[string][]string, 0, len(e.codes))}
	for _, code := range e.codes {
		doc.Missions = append(doc.Missions, map[string][]string{code: e.configs[code]})
	}
	return doc
}

type scanState int

const (
	stateScanning scanState = iota
	stateMarkerFound
	stateDone
)

func (e *Extractor) scanFile(path string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	return e.scan(f)
}

// scan looks for the first marker and tries exactly the next line. It never
// looks past the first marker, whether or not that line matched.
func (e *Extractor) scan(r io.Reader) (string, bool, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	state := stateScanning
	for state != stateDone && scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		switch state {
		case stateScanning:
			if strings.HasPrefix(line, e.opts.Marker) {
				state = stateMarkerFound
			}
		case stateMarkerFound:
			if m := e.line.FindStringSubmatch(line); m != nil {
				return m[1], true, nil
			}
			state = stateDone
		}
	}

	return "", false, scanner.Err()
}
