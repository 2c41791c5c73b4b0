// Package summary cleans the free-text summary produced by extraction:
// boilerplate removal, re-rendering of accidental JSON, prose enumeration
// and blank line collapsing. Processing is idempotent.
package summary

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxStripPasses bounds the fixed-point loop over stacked boilerplate.
const maxStripPasses = 8

var (
	blankLinesRe    = regexp.MustCompile(`\n{3,}`)
	trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)
	enumeratedRe    = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*•])\s+`)
)

// Processor applies the post-processing steps with a given phrase registry.
type Processor struct {
	registry *Registry
}

// NewProcessor returns a processor over r, or over the embedded registry when r is nil.
func NewProcessor(r *Registry) *Processor {
	if r == nil {
		r = DefaultRegistry()
	}
	return &Processor{registry: r}
}

// Process cleans text written in lang using the embedded registry.
func Process(text, lang string) string {
	return NewProcessor(nil).Process(text, lang)
}

// Process cleans text written in lang.
func (p *Processor) Process(text, lang string) string {
	s := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if s == "" {
		return ""
	}

	headers := p.registry.Headers(lang)
	// A bare object is rendered before stripping so that phrases inside its
	// string values cannot cut the encoding apart.
	if rendered, ok := renderStructured(s, headers); ok {
		s = rendered
	}
	s = p.strip(s, lang)
	if rendered, ok := renderStructured(s, headers); ok {
		s = p.strip(rendered, lang)
	}
	s = enumerateProse(s)
	return collapse(s)
}

// strip removes preamble and closing phrases until nothing else matches.
func (p *Processor) strip(s, lang string) string {
	leadIns := p.registry.Matchers(lang, LeadIn)
	preambles := p.registry.Matchers(lang, Preamble)
	closings := p.registry.Matchers(lang, Closing)

	for range maxStripPasses {
		before := s
		for _, re := range leadIns {
			if loc := re.FindStringIndex(s); loc != nil {
				s = upperFirst(s[loc[1]:])
			}
		}
		for _, re := range preambles {
			if loc := re.FindStringIndex(s); loc != nil {
				s = s[loc[1]:]
			}
		}
		for _, re := range closings {
			s = re.ReplaceAllString(s, "${1}")
		}
		s = strings.TrimSpace(s)
		if s == before {
			break
		}
	}
	return s
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func collapse(s string) string {
	s = trailingSpaceRe.ReplaceAllString(s, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// enumerateProse turns a single line of two or more sentences into a
// numbered list. Multi-line or already enumerated text is left alone.
func enumerateProse(s string) string {
	if strings.Contains(s, "\n") || enumeratedRe.MatchString(s) {
		return s
	}
	sentences := splitSentences(s)
	if len(sentences) < 2 {
		return s
	}
	var b strings.Builder
	for i, sentence := range sentences {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, sentence)
	}
	return b.String()
}

func isFullWidthTerminator(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

func splitSentences(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0
	flush := func(end int) {
		if sentence := strings.TrimSpace(string(runes[start:end])); sentence != "" {
			out = append(out, sentence)
		}
		start = end
	}
	for i, r := range runes {
		switch {
		case isFullWidthTerminator(r):
			flush(i + 1)
		case r == '.' || r == '!' || r == '?':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush(i + 1)
			}
		}
	}
	flush(len(runes))
	return out
}

// structuredSummary is the shape a model sometimes returns instead of prose.
type structuredSummary struct {
	Tasks             []json.RawMessage `json:"tasks"`
	Reminders         []json.RawMessage `json:"reminders"`
	HealthNotes       []json.RawMessage `json:"health_notes"`
	HealthNotesCamel  []json.RawMessage `json:"healthNotes"`
	GeneralNotes      []json.RawMessage `json:"general_notes"`
	GeneralNotesCamel []json.RawMessage `json:"generalNotes"`
	Notes             []json.RawMessage `json:"notes"`
	Summary           json.RawMessage   `json:"summary"`
}

func unfence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// renderStructured re-renders a serialized summary object as a sectioned,
// numbered list. Empty sections are omitted.
func renderStructured(s string, h Headers) (string, bool) {
	body := unfence(s)
	if !strings.HasPrefix(body, "{") || !strings.HasSuffix(body, "}") {
		return "", false
	}
	var obj structuredSummary
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return "", false
	}

	sections := []struct {
		title string
		items []json.RawMessage
	}{
		{h.Tasks, obj.Tasks},
		{h.Reminders, obj.Reminders},
		{h.HealthNotes, append(obj.HealthNotes, obj.HealthNotesCamel...)},
		{h.GeneralNotes, append(append(obj.GeneralNotes, obj.GeneralNotesCamel...), obj.Notes...)},
	}

	var blocks []string
	for _, sec := range sections {
		var lines []string
		for _, raw := range sec.items {
			if label := itemLabel(raw); label != "" {
				lines = append(lines, fmt.Sprintf("%d. %s", len(lines)+1, label))
			}
		}
		if len(lines) > 0 {
			blocks = append(blocks, sec.title+":\n"+strings.Join(lines, "\n"))
		}
	}

	var summaryText string
	if len(obj.Summary) > 0 {
		if err := json.Unmarshal(obj.Summary, &summaryText); err != nil {
			summaryText = ""
		}
		summaryText = strings.TrimSpace(summaryText)
	}

	switch {
	case len(blocks) == 0 && summaryText == "":
		return "", false
	case len(blocks) == 0:
		return summaryText, true
	case summaryText != "":
		blocks = append(blocks, h.Summary+":\n"+summaryText)
	}
	return strings.Join(blocks, "\n\n"), true
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func itemLabel(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}

	label := firstString(m, "title", "content", "description", "text")
	if label == "" {
		return ""
	}
	when := strings.TrimSpace(firstString(m, "due_date", "dueDate") + " " + firstString(m, "due_time", "dueTime"))
	if when == "" {
		when = firstString(m, "reminder_time", "reminderTime")
	}
	if when != "" {
		label += " (" + when + ")"
	}
	return label
}
