package transfer

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// builtinProfiles are always available; a profile file may override them.
var builtinProfiles = map[string]Policy{
	"conservative": {
		PerFileDelay:        3 * time.Second,
		PauseEvery:          30,
		ShortPause:          30 * time.Second,
		LongPauseEvery:      100,
		LongPause:           3 * time.Minute,
		ProgressEvery:       10,
		BatchSize:           300,
		FloodWaitMultiplier: 1.5,
	},
	"standard": DefaultPolicy(),
	"aggressive": {
		PerFileDelay:        700 * time.Millisecond,
		PauseEvery:          100,
		ShortPause:          10 * time.Second,
		LongPauseEvery:      300,
		LongPause:           60 * time.Second,
		ProgressEvery:       25,
		BatchSize:           1000,
		FloodWaitMultiplier: 1.2,
	},
}

// ProfileFile is the YAML layout of a profile file.
type ProfileFile struct {
	Profiles map[string]Policy `yaml:"profiles"`
}

// ParseProfiles decodes and validates profile YAML. Fields missing from a
// profile fall back to the standard profile.
func ParseProfiles(data []byte) (map[string]Policy, error) {
	var raw struct {
		Profiles map[string]yaml.Node `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if len(raw.Profiles) == 0 {
		return nil, fmt.Errorf("parse profiles: no profiles defined")
	}
	out := make(map[string]Policy, len(raw.Profiles))
	for name, node := range raw.Profiles {
		p := DefaultPolicy()
		if err := node.Decode(&p); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		out[name] = p
	}
	return out, nil
}

// LoadProfiles reads a profile file and merges it over the builtin profiles.
// An empty path returns the builtins.
func LoadProfiles(path string) (map[string]Policy, error) {
	out := make(map[string]Policy, len(builtinProfiles))
	for name, p := range builtinProfiles {
		out[name] = p
	}
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	custom, err := ParseProfiles(data)
	if err != nil {
		return nil, err
	}
	for name, p := range custom {
		out[name] = p
	}
	return out, nil
}

// ResolvePolicy returns the named profile from path (or the builtins).
func ResolvePolicy(name, path string) (Policy, error) {
	profiles, err := LoadProfiles(path)
	if err != nil {
		return Policy{}, err
	}
	p, ok := profiles[name]
	if !ok {
		names := make([]string, 0, len(profiles))
		for n := range profiles {
			names = append(names, n)
		}
		sort.Strings(names)
		return Policy{}, fmt.Errorf("unknown transfer profile %q (have %v)", name, names)
	}
	return p, nil
}
