// Package config loads planner tuning from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MaxRoadCost is the highest road cost a cost grid can hold; one more is
// the impassable sentinel.
const MaxRoadCost = 254

// Config holds every tunable of a planning run.
type Config struct {
	Levels int `yaml:"levels"`

	// Quotas maps an entity type name to its cumulative count per level.
	Quotas map[string][]int `yaml:"quotas"`

	Weights    Weights     `yaml:"weights"`
	ScoreRange [2]int      `yaml:"score_range"`
	Margin     int         `yaml:"margin"`
	Budgets    Budgets     `yaml:"budgets"`
	Pods       Pods        `yaml:"pods"`
	Special    Specialized `yaml:"specialized"`

	UpgradeRadius  int `yaml:"upgrade_radius"`
	RingDistance   int `yaml:"ring_distance"`
	PerimeterLevel int `yaml:"perimeter_level"`

	ContainerLevels ContainerLevels `yaml:"container_levels"`
	Road            Road            `yaml:"road"`
}

// Weights scale the distance fields composed into the desirability score.
// Lower scores are better, so negative weights reward distance.
type Weights struct {
	Controller float64 `yaml:"controller"`
	Sources    float64 `yaml:"sources"`
	Exits      float64 `yaml:"exits"`
	Openness   float64 `yaml:"openness"`
}

type Budgets struct {
	AnchorAttempts int `yaml:"anchor_attempts"`
	PodAttempts    int `yaml:"pod_attempts"`
	LabAttempts    int `yaml:"lab_attempts"`
	PathMaxCost    int `yaml:"path_max_cost"`
}

type Pods struct {
	Combined int `yaml:"combined"`
	Plain    int `yaml:"plain"`
}

type Specialized struct {
	Towers    int `yaml:"towers"`
	Observers int `yaml:"observers"`
}

// ContainerLevels is the unlock level of a container by what it touches.
type ContainerLevels struct {
	Source     int `yaml:"source"`
	Mineral    int `yaml:"mineral"`
	Controller int `yaml:"controller"`
	Other      int `yaml:"other"`
}

type Road struct {
	PlainCost          int  `yaml:"plain_cost"`
	RestrictedCost     int  `yaml:"restricted_cost"`
	ExitPlainCost      int  `yaml:"exit_plain_cost"`
	ExitRestrictedCost int  `yaml:"exit_restricted_cost"`
	Diagonal           bool `yaml:"diagonal"`
}

// Default returns the built-in configuration: eight levels with the usual
// structure allowance per level.
func Default() Config {
	return Config{
		Levels: 8,
		Quotas: map[string][]int{
			"spawn":      {1, 1, 1, 1, 1, 1, 2, 3},
			"extension":  {0, 5, 10, 20, 30, 40, 50, 60},
			"tower":      {0, 0, 1, 1, 2, 2, 3, 6},
			"storage":    {0, 0, 0, 1, 1, 1, 1, 1},
			"link":       {0, 0, 0, 0, 2, 3, 4, 6},
			"extractor":  {0, 0, 0, 0, 0, 1, 1, 1},
			"lab":        {0, 0, 0, 0, 0, 3, 6, 10},
			"terminal":   {0, 0, 0, 0, 0, 1, 1, 1},
			"factory":    {0, 0, 0, 0, 0, 0, 1, 1},
			"observer":   {0, 0, 0, 0, 0, 0, 0, 1},
			"powerspawn": {0, 0, 0, 0, 0, 0, 0, 1},
			"nuker":      {0, 0, 0, 0, 0, 0, 0, 1},
			"container":  {5, 5, 5, 5, 5, 5, 5, 5},
		},
		Weights: Weights{
			Controller: 1.0,
			Sources:    1.0,
			Exits:      -0.6,
			Openness:   -1.5,
		},
		ScoreRange: [2]int{0, 100},
		Margin:     2,
		Budgets: Budgets{
			AnchorAttempts: 40,
			PodAttempts:    20,
			LabAttempts:    30,
			PathMaxCost:    0,
		},
		Pods:           Pods{Combined: 2, Plain: 6},
		Special:        Specialized{Towers: 6, Observers: 1},
		UpgradeRadius:  3,
		RingDistance:   3,
		PerimeterLevel: 3,
		ContainerLevels: ContainerLevels{
			Source:     1,
			Mineral:    5,
			Controller: 2,
			Other:      3,
		},
		Road: Road{
			PlainCost:          2,
			RestrictedCost:     4,
			ExitPlainCost:      3,
			ExitRestrictedCost: 6,
			Diagonal:           true,
		},
	}
}

// Load reads a YAML config. Fields the file leaves out keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := Parse(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of cfg and validates the result.
func Parse(raw []byte, cfg *Config) error {
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

// Validate checks the scalar fields. The quota table is validated by the
// phase package once entity names are resolved.
func (c *Config) Validate() error {
	if c.Levels < 1 {
		return fmt.Errorf("levels must be positive, got %d", c.Levels)
	}
	if c.ScoreRange[1] <= c.ScoreRange[0] {
		return fmt.Errorf("score_range %v must be increasing", c.ScoreRange)
	}
	if c.Margin < 0 {
		return fmt.Errorf("margin must be non-negative, got %d", c.Margin)
	}
	if c.PerimeterLevel < 0 || c.PerimeterLevel >= c.Levels {
		return fmt.Errorf("perimeter_level %d outside 0..%d", c.PerimeterLevel, c.Levels-1)
	}
	for name, lvl := range map[string]int{
		"source":     c.ContainerLevels.Source,
		"mineral":    c.ContainerLevels.Mineral,
		"controller": c.ContainerLevels.Controller,
		"other":      c.ContainerLevels.Other,
	} {
		if lvl < 0 || lvl >= c.Levels {
			return fmt.Errorf("container_levels.%s %d outside 0..%d", name, lvl, c.Levels-1)
		}
	}
	for name, cost := range map[string]int{
		"plain_cost":           c.Road.PlainCost,
		"restricted_cost":      c.Road.RestrictedCost,
		"exit_plain_cost":      c.Road.ExitPlainCost,
		"exit_restricted_cost": c.Road.ExitRestrictedCost,
	} {
		if cost < 1 || cost > MaxRoadCost {
			return fmt.Errorf("road.%s %d outside 1..%d", name, cost, MaxRoadCost)
		}
	}
	return nil
}
