package social

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Baseline is the 30-day mention-volume distribution a current window is
// scored against.
type Baseline struct {
	Mean   float64
	StdDev float64
}

// ZScore positions a count inside the baseline. A degenerate baseline
// (zero spread) always scores 0.
func (b Baseline) ZScore(count int) float64 {
	if b.StdDev == 0 {
		return 0
	}
	return (float64(count) - b.Mean) / b.StdDev
}

// BaselineProvider supplies the baseline for one asset symbol.
type BaselineProvider interface {
	Baseline(ctx context.Context, symbol string) (Baseline, error)
}

// StaticBaseline serves one fixed distribution for every symbol. It is the
// default when no historical store is configured.
type StaticBaseline struct {
	Mean   float64
	StdDev float64
}

// DefaultBaseline matches the stand-in distribution used before rolling
// stats existed: mean 10 mentions per window, stddev 5.
func DefaultBaseline() StaticBaseline {
	return StaticBaseline{Mean: 10, StdDev: 5}
}

func (s StaticBaseline) Baseline(_ context.Context, _ string) (Baseline, error) {
	return Baseline{Mean: s.Mean, StdDev: s.StdDev}, nil
}

// SQLBaseline computes a rolling baseline from a mention-counts table:
// one row per (symbol, day) with an article count. Falls back to the static
// default when the symbol has no history yet.
type SQLBaseline struct {
	db       *sqlx.DB
	fallback StaticBaseline
}

func NewSQLBaseline(db *sqlx.DB) *SQLBaseline {
	return &SQLBaseline{db: db, fallback: DefaultBaseline()}
}

const baselineQuery = `
SELECT COALESCE(AVG(mention_count), 0)          AS mean,
       COALESCE(STDDEV_POP(mention_count), 0)   AS stddev,
       COUNT(*)                                 AS days
FROM social_mention_daily
WHERE symbol = $1
  AND day >= CURRENT_DATE - INTERVAL '30 days'`

func (s *SQLBaseline) Baseline(ctx context.Context, symbol string) (Baseline, error) {
	var row struct {
		Mean   float64 `db:"mean"`
		StdDev float64 `db:"stddev"`
		Days   int     `db:"days"`
	}
	if err := s.db.GetContext(ctx, &row, baselineQuery, symbol); err != nil {
		return Baseline{}, err
	}
	if row.Days == 0 {
		return Baseline{Mean: s.fallback.Mean, StdDev: s.fallback.StdDev}, nil
	}
	return Baseline{Mean: row.Mean, StdDev: row.StdDev}, nil
}

// RecordMentions upserts today's mention count so the rolling window keeps
// filling as analyses run.
func (s *SQLBaseline) RecordMentions(ctx context.Context, symbol string, count int) error {
	const upsert = `
INSERT INTO social_mention_daily (symbol, day, mention_count)
VALUES ($1, CURRENT_DATE, $2)
ON CONFLICT (symbol, day)
DO UPDATE SET mention_count = social_mention_daily.mention_count + EXCLUDED.mention_count`
	_, err := s.db.ExecContext(ctx, upsert, symbol, count)
	return err
}
