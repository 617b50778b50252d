package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscope/collector/internal/models"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return &Postgres{DB: mockDB}, mock
}

func TestUpsertBatch_NewAndUpdated(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectQuery("INSERT INTO ads").
		WillReturnRows(sqlmock.NewRows([]string{"is_new"}).AddRow(true))
	mock.ExpectQuery("INSERT INTO ads").
		WillReturnRows(sqlmock.NewRows([]string{"is_new"}).AddRow(false))

	ads := []models.NormalizedAd{
		{SourceID: "a1", Platform: models.PlatformGoogle, ThumbnailURL: "https://x/1.png"},
		{SourceID: "a2", Platform: models.PlatformGoogle, ThumbnailURL: "https://x/2.png"},
	}
	stats, err := pg.UpsertBatch(context.Background(), ads, "")
	require.NoError(t, err)

	assert.Equal(t, 1, stats.New)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 0, stats.Rejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatch_RejectsInvalidWithoutAborting(t *testing.T) {
	pg, mock := newMockPostgres(t)

	// only the valid sibling reaches the database
	mock.ExpectQuery("INSERT INTO ads").
		WillReturnRows(sqlmock.NewRows([]string{"is_new"}).AddRow(true))

	ads := []models.NormalizedAd{
		{SourceID: "", Platform: models.PlatformGoogle, ThumbnailURL: "https://x/1.png"},
		{SourceID: "a2", Platform: models.PlatformMeta}, // non-text, no thumbnail
		{SourceID: "a3", Platform: models.PlatformGoogle, ThumbnailURL: "https://x/3.png"},
	}
	stats, err := pg.UpsertBatch(context.Background(), ads, "")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Rejected)
	assert.Equal(t, 1, stats.New)
	assert.Equal(t, 1, stats.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatch_TextAdNeedsNoThumbnail(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectQuery("INSERT INTO ads").
		WillReturnRows(sqlmock.NewRows([]string{"is_new"}).AddRow(true))

	ads := []models.NormalizedAd{{
		SourceID:  "t1",
		Platform:  models.PlatformGoogle,
		Format:    models.FormatText,
		MediaType: models.MediaText,
		AdCopy:    "copy only",
	}}
	stats, err := pg.UpsertBatch(context.Background(), ads, "")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.New)
	assert.Equal(t, 0, stats.Rejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatch_AppliesDefaultBrandID(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectQuery("INSERT INTO ads").
		WillReturnRows(sqlmock.NewRows([]string{"is_new"}).AddRow(true))

	ads := []models.NormalizedAd{
		{SourceID: "a1", Platform: models.PlatformGoogle, ThumbnailURL: "https://x/1.png"},
	}
	_, err := pg.UpsertBatch(context.Background(), ads, "brand-42")
	require.NoError(t, err)
	assert.Equal(t, "brand-42", ads[0].BrandID)
}

func TestListExistingCreativeIDs(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT creative_id FROM ads").
		WithArgs(models.PlatformGoogle, "example.com").
		WillReturnRows(sqlmock.NewRows([]string{"creative_id"}).
			AddRow("CR1").AddRow("CR2"))

	ids, err := pg.ListExistingCreativeIDs(context.Background(), models.PlatformGoogle, "example.com")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	_, ok := ids["CR1"]
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListExistingSourceIDs_BrandScoped(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT source_id FROM ads").
		WithArgs(models.PlatformMeta, "brand-1").
		WillReturnRows(sqlmock.NewRows([]string{"source_id"}).AddRow("s1"))

	ids, err := pg.ListExistingSourceIDs(context.Background(), models.PlatformMeta, "brand-1")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListExistingSourceIDs_AllBrands(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT source_id FROM ads").
		WithArgs(models.PlatformMeta).
		WillReturnRows(sqlmock.NewRows([]string{"source_id"}).AddRow("s1").AddRow("s2"))

	ids, err := pg.ListExistingSourceIDs(context.Background(), models.PlatformMeta, "")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
