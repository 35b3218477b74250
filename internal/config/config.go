package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir    string `yaml:"-"`
	DBPath     string `yaml:"-"`
	ConfigPath string `yaml:"-"`

	Simulator SimulatorConfig `yaml:"simulator"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Evaluate  EvaluateConfig  `yaml:"evaluate"`
	Extract   ExtractConfig   `yaml:"extract"`
}

type SimulatorConfig struct {
	Binary   string `yaml:"binary"`
	Launcher string `yaml:"launcher"`
}

type SweepConfig struct {
	ArgosFile    string `yaml:"argos_file"`
	ScoreFile    string `yaml:"score_file"`
	MissionsFile string `yaml:"missions_file"`
	Trials       int    `yaml:"trials"`
	SeedBase     int    `yaml:"seed_base"`
}

type EvaluateConfig struct {
	ResultsFile      string `yaml:"results_file"`
	ScoreFile        string `yaml:"score_file"`
	ScenarioTemplate string `yaml:"scenario_template"`
	ScenarioScript   string `yaml:"scenario_script"`
	Runs             int    `yaml:"runs"`
	SeedBase         int    `yaml:"seed_base"`
}

type ExtractConfig struct {
	LogDir      string `yaml:"log_dir"`
	MissionName string `yaml:"mission_name"`
	First       int    `yaml:"first"`
	Last        int    `yaml:"last"`
	CodeFormat  string `yaml:"code_format"`
	Marker      string `yaml:"marker"`
	LinePattern string `yaml:"line_pattern"`
	Output      string `yaml:"output"`
}

// New builds the configuration from defaults, the YAML file (if present) and
// the environment. An explicit path that does not exist is an error; the
// default location is optional.
func New(path string) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("ARGOSWEEP_DATA_DIR", filepath.Join(homeDir, ".argosweep"))

	c := Default()
	c.DataDir = dataDir
	c.DBPath = filepath.Join(dataDir, "argosweep.db")

	explicit := path != ""
	if !explicit {
		path = getEnv("ARGOSWEEP_CONFIG", "")
		explicit = path != ""
	}
	if !explicit {
		path = filepath.Join(dataDir, "config.yaml")
	}
	c.ConfigPath = path

	if err := c.load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return c, nil
		}
		return nil, err
	}

	return c, nil
}

// Default returns the built-in settings. Paths are relative to the working
// directory.
func Default() *Config {
	return &Config{
		Simulator: SimulatorConfig{
			Binary:   "argos3",
			Launcher: "./argos.sh",
		},
		Sweep: SweepConfig{
			ArgosFile:    "scenarios/heterogeneity/aggregation.argos",
			ScoreFile:    "data/score.txt",
			MissionsFile: "data/missions.json",
			Trials:       1,
			SeedBase:     100,
		},
		Evaluate: EvaluateConfig{
			ResultsFile:      "data/fsm/fsm.json",
			ScoreFile:        "data/scores/score.txt",
			ScenarioTemplate: "scenarios/heterogeneity/aggregation{number}.argos",
			Runs:             10,
			SeedBase:         100,
		},
		Extract: ExtractConfig{
			LogDir:      "data/logs",
			MissionName: "Grappa-Unb",
			First:       1,
			Last:        6,
			CodeFormat:  "%dg1s",
			Marker:      "# Best configurations as commandlines",
			LinePattern: `^\s*\d+\s+(--ngroups.*)`,
		},
	}
}

func (c *Config) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	if c.Sweep.Trials < 0 {
		return fmt.Errorf("sweep.trials must not be negative")
	}
	if c.Evaluate.Runs < 0 {
		return fmt.Errorf("evaluate.runs must not be negative")
	}
	if c.Extract.First > c.Extract.Last {
		return fmt.Errorf("extract.first (%d) is after extract.last (%d)", c.Extract.First, c.Extract.Last)
	}
	return nil
}

func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// ExtractOutput is the extraction output path, defaulting to
// fsm/<mission name>_fsm.json.
func (c *Config) ExtractOutput() string {
	if c.Extract.Output != "" {
		return c.Extract.Output
	}
	return filepath.Join("fsm", c.Extract.MissionName+"_fsm.json")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
