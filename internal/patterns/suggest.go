package patterns

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/benvon/smart-voice/internal/models"
)

const (
	// minSuggestionScore is the lowest blended score worth suggesting.
	minSuggestionScore = 0.2
	confidenceWeight   = 0.7
	relevanceWeight    = 0.3
	maxTagSuggestions  = 3
	suggestScanLimit   = 200
)

// Draft is an item the user is about to save.
type Draft struct {
	Title    string   `json:"title"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Suggested is one advisory value with its blended score and the pattern it came from.
type Suggested struct {
	Value     string    `json:"value"`
	Score     float64   `json:"score"`
	PatternID uuid.UUID `json:"pattern_id"`
}

// Suggestion is advisory only; callers decide whether to apply it.
type Suggestion struct {
	Category *Suggested  `json:"category,omitempty"`
	Tags     []Suggested `json:"tags,omitempty"`
	Priority *Suggested  `json:"priority,omitempty"`
	DueTime  *Suggested  `json:"due_time,omitempty"`
}

// Empty reports whether nothing was suggested.
func (s Suggestion) Empty() bool {
	return s.Category == nil && len(s.Tags) == 0 && s.Priority == nil && s.DueTime == nil
}

// Advisor reads patterns back for suggestions and summaries.
type Advisor struct {
	store Store
}

// NewAdvisor returns an Advisor over store.
func NewAdvisor(store Store) *Advisor {
	return &Advisor{store: store}
}

func score(confidence, relevance float64) float64 {
	return confidence*confidenceWeight + relevance*relevanceWeight
}

// Suggest returns the highest scoring category, tags, priority and due time
// for d. Fields the draft already carries are not suggested.
func (a *Advisor) Suggest(ctx context.Context, userID uuid.UUID, d Draft) (*Suggestion, error) {
	all, err := a.store.ListPatterns(ctx, userID, "", suggestScanLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}

	draftTokens := tokenSet(d.Title, d.Category, strings.Join(d.Tags, " "))
	draftTags := make(map[string]bool, len(d.Tags))
	for _, t := range d.Tags {
		draftTags[normalizeKey(t)] = true
	}

	s := &Suggestion{}
	tagBest := map[string]Suggested{}
	category := normalizeKey(d.Category)

	// Category first, since priority suggestions depend on it.
	if category == "" {
		for _, p := range all {
			if p.PatternType != models.PatternTypeCategory {
				continue
			}
			c := dataString(p.PatternData, "category")
			sc := score(p.ConfidenceScore, jaccard(draftTokens, tokenSet(c)))
			if sc >= minSuggestionScore && (s.Category == nil || sc > s.Category.Score) {
				s.Category = &Suggested{Value: c, Score: sc, PatternID: p.ID}
			}
		}
		if s.Category != nil {
			category = normalizeKey(s.Category.Value)
		}
	}

	for _, p := range all {
		switch p.PatternType {
		case models.PatternTypeTags:
			for _, cand := range tagCandidates(p, draftTags) {
				rel := jaccard(draftTokens, tokenSet(cand, dataString(p.PatternData, "category")))
				if isPair(p) {
					rel = 1
				}
				sc := score(p.ConfidenceScore, rel)
				if sc < minSuggestionScore {
					continue
				}
				if cur, ok := tagBest[cand]; !ok || sc > cur.Score {
					tagBest[cand] = Suggested{Value: cand, Score: sc, PatternID: p.ID}
				}
			}

		case models.PatternTypePriority:
			pc := normalizeKey(dataString(p.PatternData, "category"))
			if category != "" && pc != category {
				continue
			}
			rel := 0.0
			if pc != "" && pc == category {
				rel = 1
			}
			sc := score(p.ConfidenceScore, rel)
			if sc >= minSuggestionScore && (s.Priority == nil || sc > s.Priority.Score) {
				s.Priority = &Suggested{Value: dataString(p.PatternData, "priority"), Score: sc, PatternID: p.ID}
			}

		case models.PatternTypeTiming:
			clock, ok := bucketClock[dataString(p.PatternData, "bucket")]
			if !ok {
				continue
			}
			sc := score(p.ConfidenceScore, 0)
			if sc >= minSuggestionScore && (s.DueTime == nil || sc > s.DueTime.Score) {
				s.DueTime = &Suggested{Value: clock, Score: sc, PatternID: p.ID}
			}
		}
	}

	for _, sg := range tagBest {
		s.Tags = append(s.Tags, sg)
	}
	sortSuggested(s.Tags)
	if len(s.Tags) > maxTagSuggestions {
		s.Tags = s.Tags[:maxTagSuggestions]
	}
	return s, nil
}

// Summaries describes the strongest patterns in one line each, for the
// context document.
func (a *Advisor) Summaries(ctx context.Context, userID uuid.UUID, limit int) ([]string, error) {
	ps, err := a.store.ListPatterns(ctx, userID, "", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, Describe(p))
	}
	return out, nil
}

// Describe renders a pattern as a short sentence.
func Describe(p *models.BehavioralPattern) string {
	var what string
	switch p.PatternType {
	case models.PatternTypeTiming:
		if b := dataString(p.PatternData, "bucket"); b != "" {
			what = "schedules items in the " + b
		} else {
			what = "schedules items on " + dataString(p.PatternData, "weekday")
		}
	case models.PatternTypeCategory:
		what = fmt.Sprintf("uses category %q", dataString(p.PatternData, "category"))
	case models.PatternTypePriority:
		what = "marks items " + dataString(p.PatternData, "priority") + " priority"
		if c := dataString(p.PatternData, "category"); c != "" {
			what += fmt.Sprintf(" in %q", c)
		}
	case models.PatternTypeTags:
		if isPair(p) {
			what = "tags " + strings.Join(dataStrings(p.PatternData, "tags"), " and ") + " together"
		} else {
			what = fmt.Sprintf("uses tag %q", dataString(p.PatternData, "tag"))
		}
	case models.PatternTypeCompletion:
		switch {
		case dataString(p.PatternData, "habit") != "":
			what = "completes tasks " + strings.ReplaceAll(dataString(p.PatternData, "habit"), "_", " ")
		case dataString(p.PatternData, "category") != "":
			what = fmt.Sprintf("completes %q tasks", dataString(p.PatternData, "category"))
		default:
			what = "completes tasks in the " + dataString(p.PatternData, "bucket")
		}
	case models.PatternTypeRecurring:
		what = "keeps " + dataString(p.PatternData, "recurrence_pattern") + " recurring reminders"
	default:
		what = p.Signature
	}
	return fmt.Sprintf("%s (seen %d times, confidence %.2f)", what, p.Frequency, p.ConfidenceScore)
}

func isPair(p *models.BehavioralPattern) bool {
	return strings.HasPrefix(p.Signature, "pair:")
}

// tagCandidates returns tags from p not already on the draft. A pair only
// yields its other half, and only when the draft has one half.
func tagCandidates(p *models.BehavioralPattern, draftTags map[string]bool) []string {
	if isPair(p) {
		tags := dataStrings(p.PatternData, "tags")
		if len(tags) != 2 {
			return nil
		}
		a, b := normalizeKey(tags[0]), normalizeKey(tags[1])
		switch {
		case draftTags[a] && !draftTags[b]:
			return []string{b}
		case draftTags[b] && !draftTags[a]:
			return []string{a}
		default:
			return nil
		}
	}
	tag := normalizeKey(dataString(p.PatternData, "tag"))
	if tag == "" || draftTags[tag] {
		return nil
	}
	return []string{tag}
}

func sortSuggested(s []Suggested) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return s[i].Value < s[j].Value
	})
}

func tokenSet(parts ...string) map[string]bool {
	set := map[string]bool{}
	for _, p := range parts {
		for _, f := range strings.FieldsFunc(strings.ToLower(p), func(r rune) bool {
			return r == ' ' || r == ',' || r == '.' || r == '-' || r == '_' || r == '/' || r == '\t'
		}) {
			set[f] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func dataString(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

// dataStrings reads a string list that may have round-tripped through JSON.
func dataStrings(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, it := range v {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
