package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_StripsBoilerplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		lang string
		in   string
		want string
	}{
		{
			name: "english preamble",
			lang: "en",
			in:   "Here is your summary:\n\nTasks:\n1. Buy milk",
			want: "Tasks:\n1. Buy milk",
		},
		{
			name: "english closing",
			lang: "en",
			in:   "Tasks:\n1. Buy milk\n\nLet me know if you need anything else!",
			want: "Tasks:\n1. Buy milk",
		},
		{
			name: "stacked preambles",
			lang: "en",
			in:   "Sure! I have extracted the following items:\nTasks:\n1. Buy milk",
			want: "Tasks:\n1. Buy milk",
		},
		{
			name: "spanish preamble and closing",
			lang: "es",
			in:   "Aquí está el resumen:\n\nTareas:\n1. Comprar leche\n\nAvísame si necesitas algo más.",
			want: "Tareas:\n1. Comprar leche",
		},
		{
			name: "english rules apply to other languages",
			lang: "de",
			in:   "Aufgaben:\n1. Milch kaufen\n\nLet me know if you need more help.",
			want: "Aufgaben:\n1. Milch kaufen",
		},
		{
			name: "regional code selects base language",
			lang: "fr-CA",
			in:   "Voici le résumé :\nTâches:\n1. Acheter du pain\nN'hésitez pas à me demander.",
			want: "Tâches:\n1. Acheter du pain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Process(tt.in, tt.lang))
		})
	}
}

func TestProcess_LeadInKeepsContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		lang string
		in   string
		want string
	}{
		{
			name: "interjection before a single sentence",
			lang: "en",
			in:   "Okay, call the dentist tomorrow at 3pm.",
			want: "Call the dentist tomorrow at 3pm.",
		},
		{
			name: "interjection before a sentence with a time",
			lang: "en",
			in:   "Great, your football match is tomorrow at 15:00. Buy new boots.",
			want: "1. Your football match is tomorrow at 15:00.\n2. Buy new boots.",
		},
		{
			name: "source reference before content",
			lang: "en",
			in:   "Based on your voice note, you need to renew the passport.",
			want: "You need to renew the passport.",
		},
		{
			name: "lead-in followed by a sentence preamble",
			lang: "en",
			in:   "Sure! Here is your summary: Pay the rent.",
			want: "Pay the rent.",
		},
		{
			name: "spanish interjection",
			lang: "es",
			in:   "Claro, llamar a mamá el viernes.",
			want: "Llamar a mamá el viernes.",
		},
		{
			name: "word without punctuation is content",
			lang: "en",
			in:   "Great Britain trip needs booking.",
			want: "Great Britain trip needs booking.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Process(tt.in, tt.lang))
		})
	}
}

func TestProcess_ClosingNeedsOfferShape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		lang string
		in   string
		want string
	}{
		{
			name: "conditional task is kept",
			lang: "en",
			in:   "Buy flowers. If you have time, pick up the dry cleaning.",
			want: "1. Buy flowers.\n2. If you have time, pick up the dry cleaning.",
		},
		{
			name: "invitation to others is kept",
			lang: "en",
			in:   "Remember the meeting. Feel free to bring snacks to the team.",
			want: "1. Remember the meeting.\n2. Feel free to bring snacks to the team.",
		},
		{
			name: "offer of further help is removed",
			lang: "en",
			in:   "Buy flowers. If you need anything else, just ask.",
			want: "Buy flowers.",
		},
		{
			name: "feel free to reach out is removed",
			lang: "en",
			in:   "Remember the meeting. Feel free to reach out with questions.",
			want: "Remember the meeting.",
		},
		{
			name: "spanish conditional task is kept",
			lang: "es",
			in:   "Comprar pan. Si necesitas el coche, pide las llaves.",
			want: "1. Comprar pan.\n2. Si necesitas el coche, pide las llaves.",
		},
		{
			name: "italian offer is removed",
			lang: "it",
			in:   "Comprare il latte. Se hai bisogno di altro, chiedi pure.",
			want: "Comprare il latte.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Process(tt.in, tt.lang))
		})
	}
}

func TestProcess_RendersStructuredSummary(t *testing.T) {
	t.Parallel()

	in := `{"tasks":[{"title":"Buy milk","due_date":"2025-01-16"},"Call mom"],"reminders":[],` +
		`"health_notes":[{"content":"Slept badly"}],"summary":"Two tasks and a note."}`
	want := "Tasks:\n1. Buy milk (2025-01-16)\n2. Call mom\n\n" +
		"Health Notes:\n1. Slept badly\n\n" +
		"Summary:\nTwo tasks and a note."
	assert.Equal(t, want, Process(in, "en"))
}

func TestProcess_RendersLocalizedHeaders(t *testing.T) {
	t.Parallel()

	in := "```json\n{\"tasks\":[\"Milch kaufen\"],\"reminders\":[{\"title\":\"Zahnarzt\",\"reminder_time\":\"2025-01-16T15:00\"}]}\n```"
	want := "Aufgaben:\n1. Milch kaufen\n\nErinnerungen:\n1. Zahnarzt (2025-01-16T15:00)"
	assert.Equal(t, want, Process(in, "de"))
}

func TestProcess_StructuredSummaryWithOnlyText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Nothing to do today.", Process(`{"summary":"Nothing to do today."}`, "en"))
}

func TestProcess_EnumeratesProse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		lang string
		in   string
		want string
	}{
		{
			name: "several sentences",
			lang: "en",
			in:   "Buy milk. Call mom tomorrow. Book the dentist!",
			want: "1. Buy milk.\n2. Call mom tomorrow.\n3. Book the dentist!",
		},
		{
			name: "single sentence",
			lang: "en",
			in:   "Buy milk tomorrow.",
			want: "Buy milk tomorrow.",
		},
		{
			name: "decimal is not a boundary",
			lang: "en",
			in:   "Run 2.5 km today",
			want: "Run 2.5 km today",
		},
		{
			name: "already enumerated",
			lang: "en",
			in:   "1. Buy milk. 2. Call mom.",
			want: "1. Buy milk. 2. Call mom.",
		},
		{
			name: "full width terminators",
			lang: "zh",
			in:   "买牛奶。给妈妈打电话。",
			want: "1. 买牛奶。\n2. 给妈妈打电话。",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Process(tt.in, tt.lang))
		})
	}
}

func TestProcess_CollapsesBlankLines(t *testing.T) {
	t.Parallel()

	in := "Tasks:\n1. A   \n\n\n\nNotes:\n1. B\n\n\n"
	assert.Equal(t, "Tasks:\n1. A\n\nNotes:\n1. B", Process(in, "en"))
}

func TestProcess_Empty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Process("   \n ", "en"))
	assert.Equal(t, "", Process("Let me know if you need anything else!", "en"))
}

func TestProcess_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Here is your summary:\n\nTasks:\n1. Buy milk\n\n\n\nLet me know if you need anything else!",
		"Buy milk. Call mom tomorrow. Book the dentist!",
		`{"tasks":[{"title":"Buy milk"}],"summary":"One task. Let me know if that works."}`,
		"Aquí está el resumen:\nTareas:\n1. Comprar leche",
		"买牛奶。给妈妈打电话。",
		"Tasks:\n1. Buy milk",
		"Just one sentence",
	}

	for _, in := range inputs {
		once := Process(in, "en")
		assert.Equal(t, once, Process(once, "en"), "input %q", in)
	}
}

func TestLoadRegistry(t *testing.T) {
	t.Parallel()

	r, err := LoadRegistry([]byte(`
languages:
  en:
    lead_in: ["hey"]
    closing: ["bye now"]
    headers:
      tasks: Todo
  nl:
    preamble: ["hier is"]
`))
	require.NoError(t, err)

	p := NewProcessor(r)
	assert.Equal(t, "Todo:\n1. Melk kopen", p.Process("Hier is de lijst:\n"+`{"tasks":["Melk kopen"]}`+"\nBye now.", "nl"))
	assert.Len(t, r.Matchers("nl", Preamble), 1)
	assert.Len(t, r.Matchers("nl", Closing), 1)
	assert.Len(t, r.Matchers("nl", LeadIn), 1)
	assert.Equal(t, "Melk kopen", p.Process("Hey, melk kopen", "nl"))
	assert.Equal(t, "Summary", NewProcessor(nil).registry.Headers("nl").Summary)

	_, err = LoadRegistry([]byte("languages:\n  en:\n    preamble: [\"(unclosed\"]\n"))
	require.Error(t, err)
}
