package contextdoc

import (
	"strings"
	"text/template"
)

const (
	placeholderNone  = "(none)"
	placeholderUnset = "(not set)"
)

// documentTemplate always renders every section so the extraction prompt
// sees a stable shape; empty values become placeholders, never omissions.
var documentTemplate = template.Must(template.New("context").Parse(`# User context
Preferred name: {{.PreferredName}}
Language: {{.Language}}
Timezone: {{.Timezone}}
Profession: {{.Profession}}
Critical artifacts: {{.CriticalArtifacts}}
Social platforms: {{.SocialPlatforms}}
News focus: {{.NewsFocus}}
Health interests: {{.HealthInterests}}
Skincare summary: {{.SkincareSummary}}
Health summary: {{.HealthSummary}}

## Voice topics
Today:
{{range .TodayTopics}}- {{.}}
{{else}}- ` + placeholderNone + `
{{end}}Earlier this week:
{{range .WeekTopics}}- {{.}}
{{else}}- ` + placeholderNone + `
{{end}}Voice notes in the last 30 days: {{.MonthCount}}

## Recently generated content
{{range .ContentTitles}}- {{.}}
{{else}}- ` + placeholderNone + `
{{end}}
## Learned patterns
{{range .Patterns}}- {{.}}
{{else}}- ` + placeholderNone + `
{{end}}`))

type documentData struct {
	PreferredName     string
	Language          string
	Timezone          string
	Profession        string
	CriticalArtifacts string
	SocialPlatforms   string
	NewsFocus         string
	HealthInterests   string
	SkincareSummary   string
	HealthSummary     string
	TodayTopics       []string
	WeekTopics        []string
	MonthCount        int
	ContentTitles     []string
	Patterns          []string
}

func orUnset(s string) string {
	if strings.TrimSpace(s) == "" {
		return placeholderUnset
	}
	return strings.TrimSpace(s)
}

func joinOrNone(items []string) string {
	var kept []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return placeholderNone
	}
	return strings.Join(kept, ", ")
}

func render(d documentData) (string, error) {
	var b strings.Builder
	if err := documentTemplate.Execute(&b, d); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\n") + "\n", nil
}
