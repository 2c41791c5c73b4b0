package extraction

import (
	"fmt"
	"strings"

	"github.com/benvon/smart-voice/internal/language"
	"github.com/benvon/smart-voice/internal/summary"
)

const systemTemplate = `You turn a user's voice note into structured items by calling the function %[1]s exactly once.

Rules:
- Compute every date and time from the current date and time given below. Never use dates you remember from training.
- Copy the spoken time phrase into time_expression unchanged.
- When a time of day is mentioned ("at 3pm"), put it in due_time as 24-hour HH:MM, separately from due_date.
- A reminder needs an absolute reminder_time. A task may have no due date.
- Write titles, descriptions, categories, tags and the summary in %[2]s. Tags must be %[2]s words, not English defaults.
- Only predict content when the user mentions something they want written or posted.
- The summary uses these section headers when the section has items: %[3]s.
- The summary must not contain greetings, confirmations such as "items extracted successfully", or closings such as "let me know if you need anything else".`

func systemPrompt(lang string) string {
	h := summary.DefaultRegistry().Headers(lang)
	headers := strings.Join([]string{h.Tasks, h.Reminders, h.HealthNotes, h.GeneralNotes, h.Summary}, ", ")
	return fmt.Sprintf(systemTemplate, FunctionName, language.Name(lang), headers)
}

func userPrompt(in Input) string {
	var b strings.Builder
	b.WriteString(in.Anchor.PromptBlock())
	b.WriteString("\n")
	if doc := strings.TrimSpace(in.ContextDocument); doc != "" {
		b.WriteString("What you know about the user:\n")
		b.WriteString(doc)
		b.WriteString("\n\n")
	}
	b.WriteString("Voice note:\n")
	b.WriteString(strings.TrimSpace(in.Transcript))
	return b.String()
}
