package archive

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"reviewharvest-backend/lib/testutil"
	"reviewharvest-backend/services/collector"

	"github.com/stretchr/testify/require"
)

func testResult(id string) *collector.ComprehensiveCollectionResult {
	rating := 5
	review := collector.NewRawReview(
		"Maria K.",
		"Great espresso and the staff remembered my order.",
		"2 weeks ago",
		"https://maps.example.com/place/cafe-aurora",
		&rating,
	)
	unrated := collector.NewRawReview(
		"Jo B.",
		"Quick service on a packed Saturday afternoon.",
		"Jan 5, 2025",
		"https://maps.example.com/place/cafe-aurora",
		nil,
	)
	return &collector.ComprehensiveCollectionResult{
		SessionID:     id,
		URL:           "https://maps.example.com/place/cafe-aurora",
		Status:        collector.StatusComplete,
		UniqueReviews: []collector.RawReview{review, unrated},
		KeptBy: map[string]collector.Category{
			review.ID:  collector.CategoryRecent,
			unrated.ID: collector.CategoryBest,
		},
		Metadata: collector.CollectionMetadata{
			TotalCollected:    3,
			TotalUnique:       2,
			DuplicatesRemoved: 1,
			CollectionTimeMs:  1200,
			PerCategoryCounts: map[collector.Category]int{
				collector.CategoryRecent: 2,
				collector.CategoryBest:   1,
			},
			StopReasons: map[collector.Category]string{
				collector.CategoryRecent: "target-reached",
			},
		},
	}
}

func openTestStore(t *testing.T) Store {
	t.Helper()
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "collector/archive",
		DbSchema: Schema,
	})
	t.Cleanup(cleanup)
	return NewStore(result.DB)
}

func TestOpenCreatesSchema(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(context.Background(), testResult("session-1")))
}

func TestArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	saved := testResult("session-1")
	require.NoError(t, store.Save(ctx, saved))

	summary, err := store.Latest(ctx, saved.URL)
	require.NoError(t, err)
	require.Equal(t, "session-1", summary.ID)
	require.Equal(t, collector.StatusComplete, summary.Status)
	require.Equal(t, 2, summary.Metadata.TotalUnique)
	require.Equal(t, 2, summary.Metadata.PerCategoryCounts[collector.CategoryRecent])

	reviews, keptBy, err := store.Reviews(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	require.Equal(t, saved.UniqueReviews[0].ID, reviews[0].ID)
	require.Equal(t, 5, *reviews[0].Rating)
	require.Nil(t, reviews[1].Rating)
	require.Equal(t, collector.CategoryRecent, keptBy[reviews[0].ID])
	require.Equal(t, collector.CategoryBest, keptBy[reviews[1].ID])
}

func TestArchiveSaveReplaces(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Save(ctx, testResult("session-1")))

	updated := testResult("session-1")
	updated.UniqueReviews = updated.UniqueReviews[:1]
	updated.Metadata.TotalUnique = 1
	require.NoError(t, store.Save(ctx, updated))

	sessions, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, 1, sessions[0].Metadata.TotalUnique)

	reviews, _, err := store.Reviews(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
}

func TestArchiveLatestMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Latest(context.Background(), "https://never-collected.example.com")
	require.ErrorIs(t, err, sql.ErrNoRows)
}
