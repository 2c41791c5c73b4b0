package contextdoc

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benvon/smart-voice/internal/locks"
	"github.com/benvon/smart-voice/internal/models"
)

type fakeProfiles struct {
	profile *models.UserContextProfile
	err     error
}

func (f *fakeProfiles) GetProfile(context.Context, uuid.UUID) (*models.UserContextProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.profile == nil {
		return nil, sql.ErrNoRows
	}
	return f.profile, nil
}

type fakeTranscripts struct {
	items []*models.VoiceTranscript
	err   error
}

func (f *fakeTranscripts) ListTranscriptsSince(_ context.Context, _ uuid.UUID, since time.Time, limit int) ([]*models.VoiceTranscript, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.VoiceTranscript
	for _, t := range f.items {
		if !t.CreatedAt.Before(since) && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

type staticTitles []string

func (s staticTitles) RecentContentTitles(context.Context, uuid.UUID, int) ([]string, error) {
	return s, nil
}

type staticPatterns []string

func (s staticPatterns) Summaries(context.Context, uuid.UUID, int) ([]string, error) {
	return s, nil
}

type memoryStore struct {
	mu      sync.Mutex
	docs    map[uuid.UUID]*models.ContextDocument
	writes  int
	failPut error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: make(map[uuid.UUID]*models.ContextDocument)}
}

func (m *memoryStore) GetContextDocument(_ context.Context, userID uuid.UUID) (*models.ContextDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return d, nil
}

func (m *memoryStore) UpsertContextDocument(_ context.Context, doc *models.ContextDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return m.failPut
	}
	m.writes++
	m.docs[doc.UserID] = doc
	return nil
}

func (m *memoryStore) DeleteContextDocument(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[userID]; !ok {
		return sql.ErrNoRows
	}
	delete(m.docs, userID)
	return nil
}

func fixedAssembler(src Sources, store Store, now time.Time) *Assembler {
	a := New(src, store, locks.NewMemoryLocker(), nil)
	a.now = func() time.Time { return now }
	return a
}

func TestRewrite_EmptyProfileRendersPlaceholders(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	a := fixedAssembler(Sources{Profiles: &fakeProfiles{}}, store, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	userID := uuid.New()

	asm, err := a.Rewrite(context.Background(), userID, nil, true)
	require.NoError(t, err)
	require.Nil(t, asm.Profile)

	content := asm.Document.Content
	for _, want := range []string{
		"Preferred name: (not set)",
		"Language: English",
		"Timezone: UTC",
		"Critical artifacts: (none)",
		"Today:\n- (none)",
		"Earlier this week:\n- (none)",
		"Voice notes in the last 30 days: 0",
		"## Recently generated content\n- (none)",
		"## Learned patterns\n- (none)",
	} {
		assert.Contains(t, content, want)
	}
	assert.Equal(t, 1, store.writes)
}

func TestRewrite_FoldsEventAndHistory(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, ny)
	rec := "rec-current"

	profile := &models.UserContextProfile{
		PreferredName:     "Sam",
		Language:          "es",
		Timezone:          "America/New_York",
		Profession:        "nurse",
		CriticalArtifacts: []string{"passport", " "},
		SocialPlatforms:   []string{"instagram"},
	}
	history := &fakeTranscripts{items: []*models.VoiceTranscript{
		// Same recording as the event, already stored by a retry.
		{CleanedText: "Duplicate of current", SourceRecordingID: &rec, CreatedAt: now.Add(-time.Minute)},
		{CleanedText: "Buy groceries, then cook", CreatedAt: now.Add(-2 * time.Hour)},
		{RawText: "call the dentist tomorrow", CreatedAt: now.Add(-3 * 24 * time.Hour)},
		{CleanedText: "old note about taxes", CreatedAt: now.Add(-20 * 24 * time.Hour)},
	}}
	store := newMemoryStore()
	a := fixedAssembler(Sources{
		Profiles:    &fakeProfiles{profile: profile},
		Transcripts: history,
		Content:     staticTitles{"Spring skincare routine"},
		Patterns:    staticPatterns{"category \"work\" (seen 4 times, confidence 0.40)"},
	}, store, now)

	userID := uuid.New()
	asm, err := a.Rewrite(context.Background(), userID, &Event{
		Transcript:        "Schedule the team meeting. Also lunch.",
		SourceRecordingID: &rec,
		At:                now,
	}, true)
	require.NoError(t, err)

	content := asm.Document.Content
	assert.Contains(t, content, "Preferred name: Sam")
	assert.Contains(t, content, "Language: Spanish")
	assert.Contains(t, content, "Timezone: America/New_York")
	assert.Contains(t, content, "Critical artifacts: passport\n")
	assert.Contains(t, content, "Today:\n- Schedule the team meeting\n- Buy groceries\n")
	assert.Contains(t, content, "Earlier this week:\n- call the dentist tomorrow\n")
	assert.Contains(t, content, "Voice notes in the last 30 days: 4")
	assert.Contains(t, content, "- Spring skincare routine")
	assert.Contains(t, content, "confidence 0.40")
	assert.NotContains(t, content, "Duplicate of current")

	stored, err := a.Current(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, content, stored.Content)
	require.NotNil(t, stored.SourceRecordingID)
	assert.Equal(t, rec, *stored.SourceRecordingID)
	assert.Equal(t, "es", asm.Language())
	assert.Equal(t, ny.String(), asm.Location().String())
}

func TestRewrite_DryRunDoesNotStore(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	a := fixedAssembler(Sources{}, store, time.Now())
	asm, err := a.Rewrite(context.Background(), uuid.New(), &Event{Transcript: "hello"}, false)
	require.NoError(t, err)
	assert.Contains(t, asm.Document.Content, "- hello")
	assert.Zero(t, store.writes)
}

func TestRewrite_StoreFailureStillReturnsDocument(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.failPut = errors.New("connection reset")
	a := fixedAssembler(Sources{}, store, time.Now())

	asm, err := a.Rewrite(context.Background(), uuid.New(), &Event{Transcript: "pick up keys"}, true)
	require.Error(t, err)
	require.NotNil(t, asm)
	assert.Contains(t, asm.Document.Content, "- pick up keys")
}

func TestRewrite_SourceErrorsDegradeToPlaceholders(t *testing.T) {
	t.Parallel()

	a := fixedAssembler(Sources{
		Profiles:    &fakeProfiles{err: errors.New("timeout")},
		Transcripts: &fakeTranscripts{err: errors.New("timeout")},
	}, newMemoryStore(), time.Now())

	asm, err := a.Rewrite(context.Background(), uuid.New(), nil, true)
	require.NoError(t, err)
	assert.Contains(t, asm.Document.Content, "Profession: (not set)")
	assert.Contains(t, asm.Document.Content, "Today:\n- (none)")
}

func TestRewrite_SerializesPerUser(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	a := fixedAssembler(Sources{}, store, time.Now())
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Rewrite(context.Background(), userID, &Event{Transcript: "note"}, true)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, store.writes)
}

func TestInitAndTeardown(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	a := fixedAssembler(Sources{}, store, time.Now())
	userID := uuid.New()

	doc, err := a.Init(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, userID, doc.UserID)

	require.NoError(t, a.Teardown(context.Background(), userID))
	_, err = a.Current(context.Background(), userID)
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	// Tearing down twice is fine.
	require.NoError(t, a.Teardown(context.Background(), userID))
}

func TestLeadingClause(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Buy milk", LeadingClause("  Buy milk, eggs and bread. "))
	assert.Equal(t, "明天开会", LeadingClause("明天开会。然后吃饭"))
	assert.Equal(t, "", LeadingClause("   "))

	long := LeadingClause(strings.Repeat("abcdefghij ", 10))
	assert.Equal(t, maxTopicRunes, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "…"))
}
