package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// DanTier is one labeled rank in a DansConfigFile, e.g. "1", "10", "-",
// "++". Patterns maps a pattern name to the MSD rating required to clear it
// at this tier.
type DanTier struct {
	Label    string             `json:"label"`
	Patterns map[string]float64 `json:"patterns"`
}

// DansConfig is the ordered dan list; order is the sole source of ordinal
// rank — index 0 is the easiest tier.
type DansConfig struct {
	Version int       `json:"version"`
	Dans    []DanTier `json:"dans"`
}

// LoadDansConfig reads a DansConfigFile from path. A missing file returns
// an empty (zero-tier) config with no error, matching LoadSettings'
// graceful-default policy.
func LoadDansConfig(path string) (DansConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DansConfig{}, nil
		}
		return DansConfig{}, fmt.Errorf("read dans config %s: %w", path, err)
	}

	var cfg DansConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DansConfig{}, fmt.Errorf("parse dans config %s: %w", path, err)
	}
	return cfg, nil
}

// RankOf returns the ordinal index of label, or -1 if not present.
func (c DansConfig) RankOf(label string) int {
	for i, d := range c.Dans {
		if d.Label == label {
			return i
		}
	}
	return -1
}

// Bracket returns the dan tiers bracketing an MSD value for the named
// pattern: the highest tier the player clears and the next tier up. At the
// top or bottom of the list this is necessarily one-sided.
func (c DansConfig) Bracket(pattern string, msd float64) (lower, upper *DanTier) {
	for i := range c.Dans {
		req, ok := c.Dans[i].Patterns[pattern]
		if !ok {
			continue
		}
		if req <= msd {
			lower = &c.Dans[i]
		} else if upper == nil {
			upper = &c.Dans[i]
			return lower, upper
		}
	}
	return lower, upper
}
