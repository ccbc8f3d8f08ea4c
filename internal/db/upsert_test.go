package db

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsertEmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "channel_baselines",
		Columns:      []string{"channel_id"},
		ConflictKeys: []string{"channel_id"},
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulkUpsertValidation(t *testing.T) {
	rows := [][]any{{"a"}}

	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "channel_baselines",
		ConflictKeys: []string{"channel_id"},
	}, rows)
	assert.ErrorContains(t, err, "no columns")

	_, err = BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "channel_baselines",
		Columns: []string{"channel_id"},
	}, rows)
	assert.ErrorContains(t, err, "no conflict keys")
}

func TestBulkUpsertSQLShape(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_channel_baselines"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(
		[]string{"_tmp_upsert_channel_baselines"},
		[]string{"channel_id", "is_short", "window", "median_views"},
	).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "channel_baselines" .+ ON CONFLICT \("channel_id", "is_short", "window"\) DO UPDATE SET "median_views" = EXCLUDED\."median_views"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "channel_baselines",
		Columns:      []string{"channel_id", "is_short", "window", "median_views"},
		ConflictKeys: []string{"channel_id", "is_short", "window"},
	}, [][]any{
		{"UC1", false, "24h", int64(5000)},
		{"UC2", true, "24h", int64(900)},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
