package categorize

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"finboard/internal/core"
)

// KeywordsConfig is the on-disk shape of extra keyword rules:
//
//	categories:
//	  - name: groceries
//	    keywords: [lidl, aldi]
type KeywordsConfig struct {
	Categories []KeywordsEntry `yaml:"categories"`
}

type KeywordsEntry struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// LoadRules reads extra keyword rules from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes extra keyword rules. Category names must belong to the
// spend taxonomy; the taxonomy itself is not configurable.
func ParseRules(data []byte) ([]Rule, error) {
	var cfg KeywordsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse rules file: %w", err)
	}

	rules := make([]Rule, 0, len(cfg.Categories))
	for _, entry := range cfg.Categories {
		cat, err := core.ParseCategory(entry.Name)
		if err != nil {
			return nil, err
		}
		if cat.IsIncome() {
			return nil, fmt.Errorf("%w: %q is an income category", core.ErrInvalidCategory, entry.Name)
		}
		var keywords []string
		for _, kw := range entry.Keywords {
			kw = asciiLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if len(keywords) == 0 {
			continue
		}
		rules = append(rules, Rule{Category: cat, Keywords: keywords})
	}
	return rules, nil
}

// WithExtraRules returns the default table followed by extra. Canonical
// rules keep their positions so existing categorizations never change.
func WithExtraRules(extra []Rule) *Categorizer {
	rules := append(DefaultRules(), extra...)
	return NewWithRules(rules)
}

// FromFile builds a categorizer from the defaults plus an optional rules file.
// An empty path yields the defaults.
func FromFile(path string) (*Categorizer, error) {
	if path == "" {
		return New(), nil
	}
	extra, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	return WithExtraRules(extra), nil
}
