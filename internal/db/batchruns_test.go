package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscope/collector/internal/models"
)

func TestBatchRunLifecycle(t *testing.T) {
	pg, mock := newMockPostgres(t)

	run := &models.BatchRun{
		ID:            "run-1",
		StartedAt:     time.Now().UTC(),
		Status:        models.RunStatusRunning,
		TotalTargets:  2,
		TargetResults: map[string]models.TargetResult{},
		TriggerType:   "manual",
	}

	mock.ExpectExec("INSERT INTO batch_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, pg.CreateBatchRun(context.Background(), run))

	run.TotalAdsScraped = 5
	run.TargetResults["acme:google:example.com"] = models.TargetResult{AdsScraped: 5, AdsNew: 3}
	mock.ExpectExec("UPDATE batch_runs SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, pg.UpdateBatchRun(context.Background(), run))

	mock.ExpectExec("UPDATE batch_runs SET status").
		WithArgs(string(models.RunStatusCompleted), sqlmock.AnyArg(), "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, pg.FinalizeBatchRun(context.Background(), "run-1", models.RunStatusCompleted, time.Now()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestBatchRun(t *testing.T) {
	pg, mock := newMockPostgres(t)

	started := time.Now().UTC().Truncate(time.Second)
	finished := started.Add(90 * time.Second)
	mock.ExpectQuery("SELECT id, started_at, finished_at").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "started_at", "finished_at", "status", "total_targets",
			"total_ads_scraped", "total_ads_new", "total_ads_updated",
			"domain_results", "errors", "trigger_type",
		}).AddRow("run-9", started, finished, "completed", 3, 12, 4, 8,
			[]byte(`{"acme:google:example.com":{"platform":"google","source_type":"domain","source_value":"example.com","ads_scraped":12,"ads_new":4,"ads_updated":8,"duration_seconds":42}}`),
			[]byte(`[]`), "scheduled"))

	run, err := pg.GetLatestBatchRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "run-9", run.ID)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, 4, run.TotalAdsNew)
	require.Contains(t, run.TargetResults, "acme:google:example.com")
	assert.Equal(t, 12, run.TargetResults["acme:google:example.com"].AdsScraped)
}

func TestGetLatestBatchRun_NoRuns(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT id, started_at, finished_at").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "started_at", "finished_at", "status", "total_targets",
			"total_ads_scraped", "total_ads_new", "total_ads_updated",
			"domain_results", "errors", "trigger_type",
		}))

	run, err := pg.GetLatestBatchRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, run)
}
