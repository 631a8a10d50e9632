package documents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/notify"
	"github.com/poiesic/docrag/storage/badger"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingScheduler struct {
	mu  sync.Mutex
	ids []core.ID
	err error
}

func (r *recordingScheduler) Enqueue(_ context.Context, id core.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return r.err
}

func (r *recordingScheduler) scheduled() []core.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.ID(nil), r.ids...)
}

type fixture struct {
	store     *Store
	scheduler *recordingScheduler
	events    *notify.ChannelPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	f := &fixture{scheduler: &recordingScheduler{}, events: notify.NewChannelPublisher(16)}
	f.store, err = NewStore(repos.Documents, WithScheduler(f.scheduler), WithNotifier(f.events))
	require.NoError(t, err)
	return f
}

func TestNewStore_RequiresRepository(t *testing.T) {
	_, err := NewStore(nil)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.store.Create(ctx, NewDocument{
		Title:   "  Bread recipe ",
		Content: "Step 1: mix flour and water.\nStep 2: bake for thirty minutes.",
		Tags:    []string{"baking", " ", "baking", "bread"},
	})
	require.NoError(t, err)

	doc, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Bread recipe", doc.Title)
	assert.Equal(t, core.ContentKindText, doc.Kind)
	assert.Equal(t, 12, doc.WordCount)
	assert.Equal(t, core.CharCount(doc.Content), doc.Size)
	assert.Equal(t, core.StateUnprocessed, doc.State)
	assert.False(t, doc.Ready())
	assert.True(t, doc.Active)
	assert.EqualValues(t, 1, doc.Revision)
	assert.Equal(t, core.Fingerprint(doc.Content), doc.ContentHash)
	assert.Equal(t, []string{"baking", "bread"}, doc.Tags)

	assert.Equal(t, []core.ID{id}, f.scheduler.scheduled())

	require.Len(t, f.events.Events(), 1)
	event := <-f.events.Events()
	assert.Equal(t, notify.DocumentUpload, event.Type)
	assert.Equal(t, id, event.DocumentId)
	assert.Equal(t, "text", event.Metadata["contentType"])
	assert.Equal(t, "12", event.Metadata["wordCount"])
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		doc  NewDocument
	}{
		{"blank title", NewDocument{Title: " ", Content: "text"}},
		{"blank content", NewDocument{Title: "t", Content: "\n\t"}},
		{"unknown kind", NewDocument{Title: "t", Content: "text", Kind: "pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.store.Create(ctx, tt.doc)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}
	assert.Empty(t, f.scheduler.scheduled())
	assert.Len(t, f.events.Events(), 0)
}

func TestCreate_EnqueueFailureIsNotReturned(t *testing.T) {
	f := newFixture(t)
	f.scheduler.err = errors.New("queue full")

	id, err := f.store.Create(context.Background(), NewDocument{Title: "t", Content: "body"})
	require.NoError(t, err)
	assert.NotZero(t, id)
}

func TestUpdate_ContentChangeResetsReadiness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.store.Create(ctx, NewDocument{Title: "t", Content: "first version"})
	require.NoError(t, err)

	_, err = f.store.docs.TransitionState(ctx, id, 1, core.StateReady, core.StateUnprocessed)
	require.NoError(t, err)

	updated, err := f.store.Update(ctx, id, Patch{Content: mo.Some("second, longer version")})
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated.Revision)
	assert.Equal(t, core.StateUnprocessed, updated.State)
	assert.False(t, updated.Ready())
	assert.Equal(t, 3, updated.WordCount)
	assert.Equal(t, core.Fingerprint("second, longer version"), updated.ContentHash)
	assert.Equal(t, []core.ID{id, id}, f.scheduler.scheduled())
}

func TestUpdate_MetadataOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.store.Create(ctx, NewDocument{Title: "t", Content: "body"})
	require.NoError(t, err)

	updated, err := f.store.Update(ctx, id, Patch{
		Title:   mo.Some("New title"),
		Summary: mo.Some("short"),
		Tags:    mo.Some([]string{"x"}),
		Content: mo.Some("body"),
	})
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, "short", updated.Summary)
	assert.Equal(t, []string{"x"}, updated.Tags)
	assert.EqualValues(t, 1, updated.Revision)
	assert.Equal(t, []core.ID{id}, f.scheduler.scheduled())

	_, err = f.store.Update(ctx, id, Patch{Title: mo.Some("")})
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = f.store.Update(ctx, id, Patch{Content: mo.Some(" ")})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestUpdate_DeletedOrUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.store.Create(ctx, NewDocument{Title: "t", Content: "body"})
	require.NoError(t, err)
	require.NoError(t, f.store.SoftDelete(ctx, id))

	_, err = f.store.Update(ctx, id, Patch{Title: mo.Some("x")})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.store.Update(ctx, 9999, Patch{Title: mo.Some("x")})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSoftDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	keep, err := f.store.Create(ctx, NewDocument{Title: "Bread", Content: "flour water salt"})
	require.NoError(t, err)
	gone, err := f.store.Create(ctx, NewDocument{Title: "Cake", Content: "flour sugar eggs"})
	require.NoError(t, err)

	require.NoError(t, f.store.SoftDelete(ctx, gone))
	require.NoError(t, f.store.SoftDelete(ctx, gone))
	assert.ErrorIs(t, f.store.SoftDelete(ctx, 9999), core.ErrNotFound)

	doc, err := f.store.Get(ctx, gone)
	require.NoError(t, err)
	assert.False(t, doc.Active)

	page, err := f.store.List(ctx, ListOptions{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, page.Documents, 1)
	assert.Equal(t, keep, page.Documents[0].Id)

	hits, err := f.store.Search(ctx, "flour", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, keep, hits[0].Document.Id)
}

func TestGet_Unknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Get(context.Background(), 42)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestList_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []core.ID
	for i := 0; i < 5; i++ {
		id, err := f.store.Create(ctx, NewDocument{Title: "doc", Content: "body"})
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(time.Millisecond)
	}

	var seen []core.ID
	cursor := ""
	for {
		page, err := f.store.List(ctx, ListOptions{ActiveOnly: true, PageSize: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, d := range page.Documents {
			seen = append(seen, d.Id)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, []core.ID{ids[4], ids[3], ids[2], ids[1], ids[0]}, seen)

	_, err := f.store.List(ctx, ListOptions{Cursor: "not-a-cursor"})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bread, err := f.store.Create(ctx, NewDocument{Title: "Bread", Content: "Knead the dough with flour."})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, NewDocument{Title: "Soup", Content: "Boil the vegetables."})
	require.NoError(t, err)

	hits, err := f.store.Search(ctx, "bread dough", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, bread, hits[0].Document.Id)
	assert.Positive(t, hits[0].Score)

	hits, err = f.store.Search(ctx, "the of", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = f.store.Search(ctx, "  ", 5)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Create(ctx, NewDocument{Title: "a", Content: "one two three"})
	require.NoError(t, err)
	_, err = f.store.Create(ctx, NewDocument{Title: "b", Content: "# four five", Kind: core.ContentKindMarkdown})
	require.NoError(t, err)
	deleted, err := f.store.Create(ctx, NewDocument{Title: "c", Content: "six"})
	require.NoError(t, err)
	require.NoError(t, f.store.SoftDelete(ctx, deleted))

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 6, stats.TotalWords)
	assert.Equal(t, 13+11, stats.TotalSize)
	assert.Equal(t, 1, stats.ContentKinds[core.ContentKindText])
	assert.Equal(t, 1, stats.ContentKinds[core.ContentKindMarkdown])
	assert.Equal(t, 2, stats.States[core.StateUnprocessed])
	assert.Equal(t, 2, stats.UploadsLastHour)
	assert.Equal(t, 2, stats.UploadsLastDay)

	f.store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	stats, err = f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.UploadsLastHour)
	assert.Equal(t, 2, stats.UploadsLastDay)
}
