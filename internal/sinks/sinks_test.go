package sinks

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscope/collector/internal/db"
)

func newMockPostgres(t *testing.T) (*db.Postgres, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return &db.Postgres{DB: mockDB}, mock
}

func TestActivityLog_Record(t *testing.T) {
	pg, mock := newMockPostgres(t)
	log := NewActivityLog(pg)

	mock.ExpectExec("INSERT INTO activity_logs").
		WithArgs(EventCollection, SubtypeBatchStarted, "Batch started", "3 targets, full mode", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	log.Record(context.Background(), EventCollection, SubtypeBatchStarted,
		"Batch started", "3 targets, full mode",
		map[string]interface{}{"batch_run_id": "run-1"})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityLog_SwallowsWriteFailure(t *testing.T) {
	pg, mock := newMockPostgres(t)
	log := NewActivityLog(pg)

	mock.ExpectExec("INSERT INTO activity_logs").
		WillReturnError(assert.AnError)

	// must not panic or surface the error
	log.Record(context.Background(), EventAdChange, SubtypeNewAdsFound, "5 new ads from acme", "", nil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityLog_NilReceiver(t *testing.T) {
	var log *ActivityLog
	log.Record(context.Background(), EventCollection, "", "ignored", "", nil)
}

func TestDailyStats_Bump(t *testing.T) {
	pg, mock := newMockPostgres(t)
	stats := NewDailyStats(pg)

	mock.ExpectExec("INSERT INTO daily_brand_stats").
		WithArgs("brand-1", sqlmock.AnyArg(), "google", 3, 2, 5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	stats.Bump(context.Background(), "brand-1", "google", 3, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyStats_SkipsWithoutBrand(t *testing.T) {
	pg, mock := newMockPostgres(t)
	stats := NewDailyStats(pg)

	stats.Bump(context.Background(), "", "google", 3, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
