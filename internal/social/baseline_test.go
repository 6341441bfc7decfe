package social

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseline_ZScore(t *testing.T) {
	b := Baseline{Mean: 10, StdDev: 5}
	assert.InDelta(t, 2.0, b.ZScore(20), 1e-9)
	assert.InDelta(t, -2.0, b.ZScore(0), 1e-9)
	assert.Equal(t, 0.0, Baseline{Mean: 10, StdDev: 0}.ZScore(100), "degenerate baseline")
}

func TestStaticBaseline_Default(t *testing.T) {
	b, err := DefaultBaseline().Baseline(context.Background(), "TKN")
	require.NoError(t, err)
	assert.Equal(t, 10.0, b.Mean)
	assert.Equal(t, 5.0, b.StdDev)
}

func newMockBaseline(t *testing.T) (*SQLBaseline, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLBaseline(sqlx.NewDb(db, "sqlmock")), mock
}

func TestSQLBaseline_RollingStats(t *testing.T) {
	sb, mock := newMockBaseline(t)
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("TKN").
		WillReturnRows(sqlmock.NewRows([]string{"mean", "stddev", "days"}).AddRow(24.5, 8.2, 30))

	b, err := sb.Baseline(context.Background(), "TKN")
	require.NoError(t, err)
	assert.Equal(t, 24.5, b.Mean)
	assert.Equal(t, 8.2, b.StdDev)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBaseline_NoHistoryFallsBack(t *testing.T) {
	sb, mock := newMockBaseline(t)
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs("NEW").
		WillReturnRows(sqlmock.NewRows([]string{"mean", "stddev", "days"}).AddRow(0.0, 0.0, 0))

	b, err := sb.Baseline(context.Background(), "NEW")
	require.NoError(t, err)
	assert.Equal(t, 10.0, b.Mean, "static fallback")
	assert.Equal(t, 5.0, b.StdDev)
}

func TestSQLBaseline_RecordMentions(t *testing.T) {
	sb, mock := newMockBaseline(t)
	mock.ExpectExec("INSERT INTO social_mention_daily").
		WithArgs("TKN", 12).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, sb.RecordMentions(context.Background(), "TKN", 12))
	assert.NoError(t, mock.ExpectationsWereMet())
}
