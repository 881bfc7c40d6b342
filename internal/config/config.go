package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSize      = 60000
	DefaultSmallSize = 5000
	DefaultBlockEdge = 1000
	DefaultBandwidth = 50

	DefaultBaseStiffness = 7e10
	DefaultAmplitude     = 0.1
	DefaultPeriod        = 1000.0
	DefaultDecay         = 10.0
	DefaultOffDiagScale  = 0.3
	DefaultMassPerDOF    = 0.054
	DefaultForceSigma    = 1000.0
	DefaultDispSigma     = 1e-6

	DefaultMaxSize   = 2000
	QuickMaxSize     = 1000
	DefaultModeCount = 6

	DefaultOutput = "results/structural_matrices"
)

type Config struct {
	Generate GenerateConfig `yaml:"generate"`
	Analyze  AnalyzeConfig  `yaml:"analyze"`
}

type GenerateConfig struct {
	Size          int     `yaml:"size"`
	Small         bool    `yaml:"small"`
	Output        string  `yaml:"output"`
	BlockEdge     int     `yaml:"block_edge"`
	Bandwidth     int     `yaml:"bandwidth"`
	BaseStiffness float64 `yaml:"base_stiffness"`
	Amplitude     float64 `yaml:"amplitude"`
	Period        float64 `yaml:"period"`
	Decay         float64 `yaml:"decay"`
	OffDiagScale  float64 `yaml:"off_diag_scale"`
	MassPerDOF    float64 `yaml:"mass_per_dof"`
	ForceSigma    float64 `yaml:"force_sigma"`
	DispSigma     float64 `yaml:"disp_sigma"`
	Seed          int64   `yaml:"seed"`
	Workers       int     `yaml:"workers"`
}

type AnalyzeConfig struct {
	MaxSize   int  `yaml:"max_size"`
	Quick     bool `yaml:"quick"`
	Modal     bool `yaml:"modal"`
	ModeCount int  `yaml:"mode_count"`
	NoPlots   bool `yaml:"no_plots"`
}

func DefaultConfig() *Config {
	return &Config{
		Generate: GenerateConfig{
			Size:          DefaultSize,
			Output:        DefaultOutput,
			BlockEdge:     DefaultBlockEdge,
			Bandwidth:     DefaultBandwidth,
			BaseStiffness: DefaultBaseStiffness,
			Amplitude:     DefaultAmplitude,
			Period:        DefaultPeriod,
			Decay:         DefaultDecay,
			OffDiagScale:  DefaultOffDiagScale,
			MassPerDOF:    DefaultMassPerDOF,
			ForceSigma:    DefaultForceSigma,
			DispSigma:     DefaultDispSigma,
			Seed:          42,
			Workers:       1,
		},
		Analyze: AnalyzeConfig{
			MaxSize:   DefaultMaxSize,
			ModeCount: DefaultModeCount,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// EffectiveMaxSize applies the quick-mode tightening of the subsample
// budget.
func (a AnalyzeConfig) EffectiveMaxSize() int {
	if a.Quick && a.MaxSize > QuickMaxSize {
		return QuickMaxSize
	}
	return a.MaxSize
}
