// Package normalizer cleans raw speech-to-text output before extraction.
package normalizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/benvon/smart-voice/internal/language"
	"github.com/benvon/smart-voice/internal/services/ai"
)

// DefaultTimeout bounds the normalization call.
const DefaultTimeout = 8 * time.Second

// minLengthRatio rejects results that lost too much of the input.
const minLengthRatio = 0.5

// Fallback reasons reported in Result.
const (
	FallbackEmptyInput      = "empty_input"
	FallbackProviderError   = "provider_error"
	FallbackTimeout         = "timeout"
	FallbackEmptyOutput     = "empty_output"
	FallbackTruncatedOutput = "truncated_output"
)

// Result is the transcript to use downstream.
type Result struct {
	Text           string
	Normalized     bool
	FallbackReason string
}

// Normalizer corrects grammar, spelling and punctuation through a text
// generator and falls back to the raw transcript whenever that fails.
type Normalizer struct {
	gen     ai.TextGenerator
	timeout time.Duration
	logger  *zap.Logger
}

// New returns a Normalizer. A zero timeout uses DefaultTimeout.
func New(gen ai.TextGenerator, timeout time.Duration, logger *zap.Logger) *Normalizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{gen: gen, timeout: timeout, logger: logger}
}

const systemPrompt = `You clean up voice transcripts produced by speech recognition.
Rules:
- Correct grammar, spelling and punctuation.
- Merge accidental repetitions (a word or clause said twice in a row by mistake) into one instance.
- Keep repetitions that add emphasis, such as "very very important".
- Never translate. The output must stay in %s.
- Never drop, summarize or add information.
- Reply with the corrected transcript only, without quotes or commentary.`

// Normalize never fails: on any problem the (whitespace-cleaned) raw text is returned.
func (n *Normalizer) Normalize(ctx context.Context, raw, lang string) Result {
	base := Clean(raw)
	if base == "" {
		return Result{Text: base, FallbackReason: FallbackEmptyInput}
	}
	if n.gen == nil {
		return Result{Text: base, FallbackReason: FallbackProviderError}
	}

	callCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	out, err := n.gen.GenerateText(callCtx, ai.TextRequest{
		Operation: "normalize_transcript",
		System:    fmt.Sprintf(systemPrompt, language.Name(lang)),
		Prompt:    base,
	})
	if err != nil {
		reason := FallbackProviderError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			reason = FallbackTimeout
		}
		n.logger.Warn("transcript_normalization_failed",
			zap.String("reason", reason),
			zap.Error(err),
		)
		return Result{Text: base, FallbackReason: reason}
	}

	cleaned := Clean(trimQuotes(out))
	switch {
	case cleaned == "":
		n.logger.Warn("transcript_normalization_failed", zap.String("reason", FallbackEmptyOutput))
		return Result{Text: base, FallbackReason: FallbackEmptyOutput}
	case float64(utf8.RuneCountInString(cleaned)) < minLengthRatio*float64(utf8.RuneCountInString(base)):
		n.logger.Warn("transcript_normalization_failed",
			zap.String("reason", FallbackTruncatedOutput),
			zap.Int("raw_length", utf8.RuneCountInString(base)),
			zap.Int("normalized_length", utf8.RuneCountInString(cleaned)),
		)
		return Result{Text: base, FallbackReason: FallbackTruncatedOutput}
	}
	return Result{Text: cleaned, Normalized: true}
}

// stutterWords are short function words that speech recognition often
// doubles ("the the"). Content words are left alone since doubling them
// usually carries emphasis.
var stutterWords = map[string]bool{
	"a": true, "an": true, "the": true, "i": true, "to": true, "and": true,
	"of": true, "in": true, "on": true, "is": true, "it": true,
}

// Clean strips control characters, collapses whitespace and removes
// doubled function words.
func Clean(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	words := strings.Fields(s)
	out := words[:0]
	for _, w := range words {
		if len(out) > 0 && stutterWords[strings.ToLower(w)] && strings.EqualFold(out[len(out)-1], w) {
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	for _, pair := range [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}} {
		if len(s) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			return strings.TrimSpace(s[len(pair[0]) : len(s)-len(pair[1])])
		}
	}
	return s
}
