package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cca-esindex/internal/ingest"
)

func sampleSummary() ingest.RunSummary {
	start := time.Unix(1700000000, 0).UTC()
	return ingest.RunSummary{
		RunID:      "run-1",
		Team:       "blue",
		Crawler:    "c1",
		Root:       "/dump",
		Index:      "pages",
		DocType:    "page",
		Enumerated: 3,
		Succeeded:  2,
		Failed:     1,
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Failures: []ingest.Failure{
			{Path: "/dump/c.cbor", Stage: ingest.StageDecoding, Reason: "decode: bad"},
		},
	}
}

func TestRecordRunWritesRunAndFailures(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "", "")
	require.NoError(t, err)

	s := sampleSummary()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ingest_runs").
		WithArgs(s.RunID, s.Team, s.Crawler, s.Root, s.Index, s.DocType, 3, 2, 1, s.StartedAt, s.FinishedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO ingest_failures").
		WithArgs("run-1", "/dump/c.cbor", "decode", "decode: bad").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.RecordRun(context.Background(), s))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "runs", "fails")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").
		WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err = store.RecordRun(context.Background(), sampleSummary())
	require.ErrorContains(t, err, "duplicate key")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "", "")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ingest_runs").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ingest_failures").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRunStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRunStoreWithPool(nil, "", "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRunStoreWithPool(mock, "bad;table", "")
	require.Error(t, err)

	_, err = NewRunStore(context.Background(), RunStoreConfig{})
	require.Error(t, err)
}
