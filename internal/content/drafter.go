package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/benvon/smart-voice/internal/language"
	"github.com/benvon/smart-voice/internal/services/ai"
)

// ErrEmptyDraft is returned when the drafting model produced nothing.
var ErrEmptyDraft = errors.New("draft is empty")

// DraftRequest describes one piece of content to write.
type DraftRequest struct {
	Title          string
	ContentType    string
	Description    string
	TargetPlatform string
	Language       string
}

// Drafter writes a markdown draft.
type Drafter interface {
	Draft(ctx context.Context, req DraftRequest) (string, error)
}

// LLMDrafter drafts through a text generator, throttled by a token bucket
// shared across all drafts in the process.
type LLMDrafter struct {
	gen     ai.TextGenerator
	limiter *rate.Limiter
	timeout time.Duration
}

// NewLLMDrafter allows perMinute drafts per minute with the given burst.
// A non-positive perMinute disables throttling.
func NewLLMDrafter(gen ai.TextGenerator, perMinute, burst int, timeout time.Duration) *LLMDrafter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst <= 0 {
		burst = 1
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLMDrafter{gen: gen, limiter: rate.NewLimiter(limit, burst), timeout: timeout}
}

const draftSystem = `You write ready-to-publish drafts for the user.
Write in %s. Use markdown. Reply with the draft only, without an introduction or closing remarks.`

// Draft implements Drafter.
func (d *LLMDrafter) Draft(ctx context.Context, req DraftRequest) (string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("failed to wait for drafting slot: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Content type: %s\n", req.ContentType)
	if req.TargetPlatform != "" {
		fmt.Fprintf(&prompt, "Platform: %s\n", req.TargetPlatform)
	}
	if req.Title != "" {
		fmt.Fprintf(&prompt, "Title: %s\n", req.Title)
	}
	fmt.Fprintf(&prompt, "Brief: %s\n", req.Description)

	out, err := d.gen.GenerateText(callCtx, ai.TextRequest{
		Operation: "draft_content",
		System:    fmt.Sprintf(draftSystem, language.Name(req.Language)),
		Prompt:    prompt.String(),
		MaxTokens: 1200,
	})
	if err != nil {
		return "", fmt.Errorf("failed to draft content: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyDraft
	}
	return out, nil
}

var _ Drafter = (*LLMDrafter)(nil)
