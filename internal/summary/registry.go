package summary

import (
	_ "embed"
	"fmt"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/benvon/smart-voice/internal/language"
)

//go:embed phrases.yaml
var defaultPhrases []byte

// Role identifies where in a summary a boilerplate phrase appears.
type Role string

const (
	// LeadIn is a conversational token such as "Sure," that opens a summary.
	// Only the token and its punctuation are removed.
	LeadIn Role = "lead_in"
	// Preamble is a whole opening sentence about the summary itself.
	Preamble Role = "preamble"
	Closing  Role = "closing"
)

// Headers are the localized section titles used when a summary is
// re-rendered as a sectioned list.
type Headers struct {
	Tasks        string `yaml:"tasks"`
	Reminders    string `yaml:"reminders"`
	HealthNotes  string `yaml:"health_notes"`
	GeneralNotes string `yaml:"general_notes"`
	Summary      string `yaml:"summary"`
}

func (h Headers) withDefaults(d Headers) Headers {
	if h.Tasks == "" {
		h.Tasks = d.Tasks
	}
	if h.Reminders == "" {
		h.Reminders = d.Reminders
	}
	if h.HealthNotes == "" {
		h.HealthNotes = d.HealthNotes
	}
	if h.GeneralNotes == "" {
		h.GeneralNotes = d.GeneralNotes
	}
	if h.Summary == "" {
		h.Summary = d.Summary
	}
	return h
}

type phraseFile struct {
	Languages map[string]struct {
		LeadIn   []string `yaml:"lead_in"`
		Preamble []string `yaml:"preamble"`
		Closing  []string `yaml:"closing"`
		Headers  Headers  `yaml:"headers"`
	} `yaml:"languages"`
}

// Registry maps (language, role) to compiled boilerplate matchers.
// Adding a language is a change to the YAML data only.
type Registry struct {
	matchers map[string]map[Role][]*regexp.Regexp
	headers  map[string]Headers
}

// LoadRegistry parses and compiles a phrase registry document.
func LoadRegistry(data []byte) (*Registry, error) {
	var file phraseFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse phrase registry: %w", err)
	}

	r := &Registry{
		matchers: make(map[string]map[Role][]*regexp.Regexp, len(file.Languages)),
		headers:  make(map[string]Headers, len(file.Languages)),
	}
	for code, entry := range file.Languages {
		byRole := map[Role][]*regexp.Regexp{}
		for _, p := range entry.LeadIn {
			re, err := regexp.Compile(`(?i)^\s*(?:` + p + `)\s*[,!:]\s*`)
			if err != nil {
				return nil, fmt.Errorf("invalid %s lead-in phrase %q: %w", code, p, err)
			}
			byRole[LeadIn] = append(byRole[LeadIn], re)
		}
		for _, p := range entry.Preamble {
			re, err := regexp.Compile(`(?i)^\s*(?:` + p + `)[^\n:.!]*[:.!]?\s*`)
			if err != nil {
				return nil, fmt.Errorf("invalid %s preamble phrase %q: %w", code, p, err)
			}
			byRole[Preamble] = append(byRole[Preamble], re)
		}
		for _, p := range entry.Closing {
			re, err := regexp.Compile(`(?i)(^|[.!?。！？]\s*|\n)\s*(?:` + p + `)[^\n]*$`)
			if err != nil {
				return nil, fmt.Errorf("invalid %s closing phrase %q: %w", code, p, err)
			}
			byRole[Closing] = append(byRole[Closing], re)
		}
		r.matchers[code] = byRole
		r.headers[code] = entry.Headers
	}
	return r, nil
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the registry compiled from the embedded phrase file.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r, err := LoadRegistry(defaultPhrases)
		if err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// Matchers returns the matchers for lang followed by the English ones.
func (r *Registry) Matchers(lang string, role Role) []*regexp.Regexp {
	code := language.Normalize(lang)
	out := append([]*regexp.Regexp(nil), r.matchers[code][role]...)
	if code != language.DefaultCode {
		out = append(out, r.matchers[language.DefaultCode][role]...)
	}
	return out
}

// Headers returns the section titles for lang, filling gaps from English.
func (r *Registry) Headers(lang string) Headers {
	code := language.Normalize(lang)
	return r.headers[code].withDefaults(r.headers[language.DefaultCode])
}
