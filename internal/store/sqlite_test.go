package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enricher/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Create(context.Background()))
	return st
}

func testRecord(profileURL, company string, at time.Time) *model.LeadRecord {
	return &model.LeadRecord{
		ID: uuid.NewString(),
		Lead: model.Lead{
			ProfileURL: profileURL,
			FirstName:  "Jane",
			LastName:   "Doe",
			Title:      "VP Engineering",
			Company:    company,
		},
		EnrichedData: model.EnrichedData{
			RawAIOutput:       "Hi Jane, congrats on the launch.",
			StructuredSummary: "Scaling the platform team.",
			ResearchFindings:  []string{"Joined in 2023", "Led the launch"},
			TalkingPoints:     []string{"Platform hiring"},
			TotalTokens:       1200,
			TotalCost:         0.0123,
		},
		PersonalizedMessage: "Hi Jane, congrats on the launch.",
		CreatedAt:           at,
	}
}

func TestSQLite_CreateIsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, testRecord("https://linkedin.com/in/jane", "Acme", time.Now())))

	// A second Create at restart must keep existing rows.
	require.NoError(t, st.Create(ctx))
	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_InsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	rec := testRecord("https://linkedin.com/in/jane", "Acme", now)
	require.NoError(t, st.Insert(ctx, rec))

	got, err := st.Get(ctx, rec.Lead.ProfileURL)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Lead, got.Lead)
	assert.Equal(t, rec.PersonalizedMessage, got.PersonalizedMessage)
	assert.Equal(t, rec.EnrichedData.ResearchFindings, got.EnrichedData.ResearchFindings)
	assert.InDelta(t, 0.0123, got.EnrichedData.TotalCost, 1e-9)
	assert.True(t, now.Equal(got.CreatedAt))
	assert.Equal(t, time.UTC, got.CreatedAt.Location())
}

func TestSQLite_Get_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.Get(context.Background(), "https://linkedin.com/in/nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Exists(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ok, err := st.Exists(ctx, "https://linkedin.com/in/jane")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.Insert(ctx, testRecord("https://linkedin.com/in/jane", "Acme", time.Now())))

	ok, err = st.Exists(ctx, "https://linkedin.com/in/jane")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLite_Insert_Duplicate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := testRecord("https://linkedin.com/in/jane", "Acme", time.Now())
	require.NoError(t, st.Insert(ctx, first))

	second := testRecord("https://linkedin.com/in/jane", "Other Co", time.Now())
	err := st.Insert(ctx, second)

	var dup *DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "https://linkedin.com/in/jane", dup.ProfileURL)

	// The original record is untouched.
	got, err := st.Get(ctx, "https://linkedin.com/in/jane")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "Acme", got.Lead.Company)
}

func TestSQLite_Insert_ConcurrentSameKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	const writers = 8
	var (
		wg      sync.WaitGroup
		ok      atomic.Int32
		dups    atomic.Int32
		start   = make(chan struct{})
		unknown = make(chan error, writers)
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := st.Insert(ctx, testRecord("https://linkedin.com/in/race", "Acme", time.Now()))
			var dup *DuplicateKeyError
			switch {
			case err == nil:
				ok.Add(1)
			case errors.As(err, &dup):
				dups.Add(1)
			default:
				unknown <- err
			}
		}()
	}
	close(start)
	wg.Wait()
	close(unknown)

	for err := range unknown {
		t.Fatalf("unexpected insert error: %v", err)
	}
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(writers-1), dups.Load())

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_List(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		company := "Acme"
		if i%2 == 1 {
			company = "Globex"
		}
		rec := testRecord(fmt.Sprintf("https://linkedin.com/in/p%d", i), company, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, st.Insert(ctx, rec))
	}

	t.Run("newest first", func(t *testing.T) {
		recs, err := st.List(ctx, ListFilter{})
		require.NoError(t, err)
		require.Len(t, recs, 5)
		assert.Equal(t, "https://linkedin.com/in/p4", recs[0].Lead.ProfileURL)
		assert.Equal(t, "https://linkedin.com/in/p0", recs[4].Lead.ProfileURL)
	})

	t.Run("company filter is case-insensitive", func(t *testing.T) {
		recs, err := st.List(ctx, ListFilter{Company: "globex"})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		for _, r := range recs {
			assert.Equal(t, "Globex", r.Lead.Company)
		}
	})

	t.Run("limit and offset", func(t *testing.T) {
		recs, err := st.List(ctx, ListFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "https://linkedin.com/in/p3", recs[0].Lead.ProfileURL)
		assert.Equal(t, "https://linkedin.com/in/p2", recs[1].Lead.ProfileURL)
	})

	t.Run("empty result", func(t *testing.T) {
		recs, err := st.List(ctx, ListFilter{Company: "Initech"})
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "leads.db")
	ctx := context.Background()

	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Create(ctx))
	require.NoError(t, st.Insert(ctx, testRecord("https://linkedin.com/in/jane", "Acme", time.Now())))
	require.NoError(t, st.Close())

	st, err = NewSQLite(dbPath)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Create(ctx))

	ok, err := st.Exists(ctx, "https://linkedin.com/in/jane")
	require.NoError(t, err)
	assert.True(t, ok)

	err = st.Insert(ctx, testRecord("https://linkedin.com/in/jane", "Acme", time.Now()))
	var dup *DuplicateKeyError
	assert.ErrorAs(t, err, &dup)
}
