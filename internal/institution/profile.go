// Package institution identifies the bank that issued a statement and holds the
// parsers specialized for known layouts.
package institution

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Codes with a special meaning.
const (
	CodeAuto    = "AUTO"
	CodeUnknown = "UNKNOWN"
)

//go:embed profiles.yaml
var defaultProfiles []byte

// Profile describes one institution's statement layout.
type Profile struct {
	Code           string   `yaml:"code"`
	Name           string   `yaml:"name"`
	Active         bool     `yaml:"active"`
	Keywords       []string `yaml:"keywords"`
	Boilerplate    []string `yaml:"boilerplate"`
	CreditKeywords []string `yaml:"credit_keywords"`
	Indicators     []string `yaml:"indicators"`
}

type profileFile struct {
	Institutions []Profile `yaml:"institutions"`
}

// DefaultProfiles returns the built-in profiles.
func DefaultProfiles() []Profile {
	profiles, err := parseProfiles(defaultProfiles)
	if err != nil {
		panic(fmt.Sprintf("institution: embedded profiles are invalid: %v", err))
	}
	return profiles
}

func parseProfiles(data []byte) ([]Profile, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("error parsing institution profiles: %w", err)
	}
	for i := range f.Institutions {
		p := &f.Institutions[i]
		p.Code = NormalizeCode(p.Code)
		if p.Code == "" {
			return nil, fmt.Errorf("institution profile %d has no code", i)
		}
		p.Boilerplate = lowerAll(p.Boilerplate)
		p.CreditKeywords = lowerAll(p.CreditKeywords)
		p.Indicators = lowerAll(p.Indicators)
	}
	return f.Institutions, nil
}

// LoadProfiles returns the built-in profiles overlaid with the profiles in path.
// A profile in the file replaces the built-in profile with the same code; new
// codes are appended. An empty path yields the built-in profiles.
func LoadProfiles(path string) ([]Profile, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading institution profiles: %w", err)
	}
	overrides, err := parseProfiles(data)
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		replaced := false
		for i := range profiles {
			if profiles[i].Code == o.Code {
				profiles[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			profiles = append(profiles, o)
		}
	}
	return profiles, nil
}

// NormalizeCode upper-cases and trims an institution code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
