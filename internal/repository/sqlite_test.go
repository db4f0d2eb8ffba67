package repository

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stubot/internal/model"
	"stubot/internal/storage"
)

func newTestRepository(t *testing.T, artifacts ArtifactRemover) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "chatbot_logs.db"), artifacts,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func strPtr(s string) *string { return &s }

func appendN(t *testing.T, repo *SQLiteRepository, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		id, err := repo.Append(context.Background(), &model.Exchange{
			UserID:      "u1",
			UserMessage: fmt.Sprintf("message %d", i),
			BotReply:    fmt.Sprintf("reply %d", i),
			Outcome:     model.OutcomeAnswered,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestNewSQLiteRepository_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "logs.db")
	repo, err := NewSQLiteRepository(dbPath, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer repo.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestAppend_GetByID(t *testing.T) {
	repo := newTestRepository(t, nil)
	ex := &model.Exchange{
		UserMessage: "hello",
		BotReply:    "Hi there",
		BotAudio:    strPtr("bot_20240101000000000001.mp3"),
		Outcome:     model.OutcomeAnswered,
	}

	id, err := repo.Append(context.Background(), ex)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, id, ex.ID)
	assert.Equal(t, model.AnonymousUser, ex.UserID)
	assert.False(t, ex.CreatedAt.IsZero())

	got, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.UserMessage)
	assert.Equal(t, "Hi there", got.BotReply)
	assert.Nil(t, got.UserAudio)
	require.NotNil(t, got.BotAudio)
	assert.Equal(t, "bot_20240101000000000001.mp3", *got.BotAudio)
	assert.Equal(t, model.OutcomeAnswered, got.Outcome)
	assert.True(t, ex.CreatedAt.Equal(got.CreatedAt))
}

func TestAppend_RejectsInvalidExchange(t *testing.T) {
	repo := newTestRepository(t, nil)

	_, err := repo.Append(context.Background(), &model.Exchange{UserMessage: "hello"})
	var perr *PersistenceError
	assert.ErrorAs(t, err, &perr)

	_, err = repo.Append(context.Background(), &model.Exchange{BotReply: "hi"})
	assert.ErrorAs(t, err, &perr)
}

func TestAppend_CreatedAtNeverGoesBackwards(t *testing.T) {
	repo := newTestRepository(t, nil)
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }

	first := appendN(t, repo, 1)[0]
	clock = clock.Add(-time.Hour)
	second := appendN(t, repo, 1)[0]

	a, err := repo.GetByID(context.Background(), first)
	require.NoError(t, err)
	b, err := repo.GetByID(context.Background(), second)
	require.NoError(t, err)
	assert.False(t, b.CreatedAt.Before(a.CreatedAt))

	page, err := repo.Page(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, second, page.Items[0].ID)
}

func TestAppend_Concurrent(t *testing.T) {
	repo := newTestRepository(t, nil)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Append(context.Background(), &model.Exchange{
				UserID:      fmt.Sprintf("user-%d", i),
				UserMessage: "hello",
				BotReply:    "hi",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	page, err := repo.Page(context.Background(), 1, 100)
	require.NoError(t, err)
	assert.Equal(t, writers, page.TotalCount)
}

func TestAppend_ConcurrentTiesKeepInsertOrder(t *testing.T) {
	repo := newTestRepository(t, nil)
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Append(context.Background(), &model.Exchange{
				UserMessage: fmt.Sprintf("message %d", i),
				BotReply:    "hi",
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	rows, err := repo.db.Query(`SELECT id FROM chat_logs ORDER BY rowid DESC`)
	require.NoError(t, err)
	var inserted []uuid.UUID
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		inserted = append(inserted, uuid.MustParse(id))
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())

	page, err := repo.Page(context.Background(), 1, writers)
	require.NoError(t, err)
	require.Len(t, page.Items, writers)
	for i, ex := range page.Items {
		assert.True(t, fixed.Equal(ex.CreatedAt))
		assert.Equal(t, inserted[i], ex.ID, "position %d", i)
	}
}

func TestPage_TwentyFiveRows(t *testing.T) {
	repo := newTestRepository(t, nil)
	ids := appendN(t, repo, 25)

	page, err := repo.Page(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNext)
	assert.False(t, page.HasPrev)
	assert.Equal(t, 1, page.StartIndex)
	assert.Equal(t, 10, page.EndIndex)
	require.Len(t, page.Items, 10)
	// Most recent first.
	assert.Equal(t, ids[24], page.Items[0].ID)
	assert.Equal(t, ids[15], page.Items[9].ID)

	page, err = repo.Page(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.True(t, page.HasPrev)
	assert.True(t, page.HasNext)
	assert.Equal(t, 11, page.StartIndex)
	assert.Equal(t, 20, page.EndIndex)

	last, err := repo.Page(context.Background(), 99, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, last.Page)
	assert.False(t, last.HasNext)
	assert.True(t, last.HasPrev)
	assert.Equal(t, 21, last.StartIndex)
	assert.Equal(t, 25, last.EndIndex)
	require.Len(t, last.Items, 5)
	assert.Equal(t, ids[0], last.Items[4].ID)
}

func TestPage_Empty(t *testing.T) {
	repo := newTestRepository(t, nil)

	page, err := repo.Page(context.Background(), 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.Equal(t, 0, page.TotalCount)
	assert.Equal(t, 1, page.TotalPages)
	assert.False(t, page.HasPrev)
	assert.False(t, page.HasNext)
	assert.Equal(t, 0, page.StartIndex)
	assert.Equal(t, 0, page.EndIndex)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func TestNewPage_Clamping(t *testing.T) {
	tests := []struct {
		page, size, total   int
		wantPage, wantPages int
		wantPrev, wantNext  bool
		wantStart, wantEnd  int
	}{
		{page: 0, size: 10, total: 10, wantPage: 1, wantPages: 1, wantStart: 1, wantEnd: 10},
		{page: -3, size: 10, total: 11, wantPage: 1, wantPages: 2, wantNext: true, wantStart: 1, wantEnd: 10},
		{page: 2, size: 10, total: 11, wantPage: 2, wantPages: 2, wantPrev: true, wantStart: 11, wantEnd: 11},
		{page: 3, size: 10, total: 20, wantPage: 2, wantPages: 2, wantPrev: true, wantStart: 11, wantEnd: 20},
		{page: 1, size: 10, total: 0, wantPage: 1, wantPages: 1},
	}
	for _, tt := range tests {
		p := NewPage(tt.page, tt.size, tt.total)
		assert.Equal(t, tt.wantPage, p.Page, "%+v", tt)
		assert.Equal(t, tt.wantPages, p.TotalPages, "%+v", tt)
		assert.Equal(t, tt.wantPrev, p.HasPrev, "%+v", tt)
		assert.Equal(t, tt.wantNext, p.HasNext, "%+v", tt)
		assert.Equal(t, tt.wantStart, p.StartIndex, "%+v", tt)
		assert.Equal(t, tt.wantEnd, p.EndIndex, "%+v", tt)
	}
}

func TestClassify(t *testing.T) {
	repo := newTestRepository(t, nil)
	ctx := context.Background()

	c, err := repo.Classify(ctx)
	require.NoError(t, err)
	assert.Equal(t, Classification{}, *c)

	appendN(t, repo, 3)
	for _, ex := range []*model.Exchange{
		{UserMessage: "a", BotReply: model.ReplyUnavailable, Outcome: model.OutcomeNoBackend},
		{UserMessage: "b", BotReply: model.ReplyNoResponse, Outcome: model.OutcomeEmptyReply},
		// Legacy row without an outcome is classified by its text.
		{UserMessage: "c", BotReply: model.ReplyNoResponse},
	} {
		_, err := repo.Append(ctx, ex)
		require.NoError(t, err)
	}

	c, err = repo.Classify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, c.Total)
	assert.Equal(t, 3, c.Unanswered)
	assert.Equal(t, 3, c.Answered)
	assert.Equal(t, c.Total, c.Answered+c.Unanswered)
}

func TestDeleteByID_RemovesArtifacts(t *testing.T) {
	store := storage.NewAudioStore(t.TempDir())
	repo := newTestRepository(t, store)
	ctx := context.Background()

	userAudio, err := store.Save(model.KindUserUpload, []byte("RIFF"))
	require.NoError(t, err)
	botAudio, err := store.Save(model.KindBotSynth, []byte("ID3"))
	require.NoError(t, err)

	keep := appendN(t, repo, 1)[0]
	id, err := repo.Append(ctx, &model.Exchange{
		UserID:      "u1",
		UserMessage: "hello",
		BotReply:    "Hi there",
		UserAudio:   &userAudio,
		BotAudio:    &botAudio,
		Outcome:     model.OutcomeAnswered,
	})
	require.NoError(t, err)

	refs, err := repo.ReferencedAudio(ctx)
	require.NoError(t, err)
	assert.Contains(t, refs, userAudio)
	assert.Contains(t, refs, botAudio)

	require.NoError(t, repo.DeleteByID(ctx, id))

	assert.False(t, store.Exists(userAudio))
	assert.False(t, store.Exists(botAudio))

	page, err := repo.Page(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, keep, page.Items[0].ID)

	_, err = repo.GetByID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

type failingRemover struct{ calls int }

func (f *failingRemover) Delete(string) (bool, error) {
	f.calls++
	return false, fmt.Errorf("permission denied")
}

func TestDeleteByID_ArtifactFailureDoesNotBlock(t *testing.T) {
	remover := &failingRemover{}
	repo := newTestRepository(t, remover)
	ctx := context.Background()

	id, err := repo.Append(ctx, &model.Exchange{
		UserMessage: "hello",
		BotReply:    "Hi",
		BotAudio:    strPtr("bot_1.mp3"),
	})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteByID(ctx, id))
	assert.Equal(t, 1, remover.calls)

	_, err = repo.GetByID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteByID_NotFound(t *testing.T) {
	repo := newTestRepository(t, nil)
	err := repo.DeleteByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
