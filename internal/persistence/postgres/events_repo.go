package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sawpanic/flowrun/internal/domain"
	"github.com/sawpanic/flowrun/internal/persistence"
)

// optionPrintsRepo implements OptionPrintsRepo for PostgreSQL.
type optionPrintsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewOptionPrintsRepo creates a PostgreSQL option prints repository.
func NewOptionPrintsRepo(db *sqlx.DB, timeout time.Duration) persistence.OptionPrintsRepo {
	return &optionPrintsRepo{db: db, timeout: timeout}
}

func (r *optionPrintsRepo) Insert(ctx context.Context, p domain.OptionPrint) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO option_prints
			(trace_id, source_ts, ingest_ts, seq, ts, option_contract_id, price, size, exchange, conditions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (trace_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		p.TraceID, p.SourceTS, p.IngestTS, p.Seq, p.TS,
		p.ContractID, p.Price, p.Size, p.Exchange, pq.Array(p.Conditions))
	if err != nil {
		return fmt.Errorf("failed to insert option print: %w", err)
	}
	return nil
}

// optionNBBORepo implements OptionNBBORepo for PostgreSQL.
type optionNBBORepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewOptionNBBORepo creates a PostgreSQL NBBO repository.
func NewOptionNBBORepo(db *sqlx.DB, timeout time.Duration) persistence.OptionNBBORepo {
	return &optionNBBORepo{db: db, timeout: timeout}
}

func (r *optionNBBORepo) Insert(ctx context.Context, q domain.OptionNBBO) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO option_nbbo
			(trace_id, source_ts, ingest_ts, seq, ts, option_contract_id, bid, ask, bid_size, ask_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (trace_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		q.TraceID, q.SourceTS, q.IngestTS, q.Seq, q.TS,
		q.ContractID, q.Bid, q.Ask, q.BidSize, q.AskSize)
	if err != nil {
		return fmt.Errorf("failed to insert option nbbo: %w", err)
	}
	return nil
}

// equityPrintsRepo implements EquityPrintsRepo for PostgreSQL.
type equityPrintsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEquityPrintsRepo creates a PostgreSQL equity prints repository.
func NewEquityPrintsRepo(db *sqlx.DB, timeout time.Duration) persistence.EquityPrintsRepo {
	return &equityPrintsRepo{db: db, timeout: timeout}
}

func (r *equityPrintsRepo) Insert(ctx context.Context, p domain.EquityPrint) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO equity_prints
			(trace_id, source_ts, ingest_ts, seq, ts, underlying_id, price, size, exchange, off_exchange)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (trace_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		p.TraceID, p.SourceTS, p.IngestTS, p.Seq, p.TS,
		p.UnderlyingID, p.Price, p.Size, p.Exchange, p.OffExchange)
	if err != nil {
		return fmt.Errorf("failed to insert equity print: %w", err)
	}
	return nil
}

// equityQuotesRepo implements EquityQuotesRepo for PostgreSQL.
type equityQuotesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEquityQuotesRepo creates a PostgreSQL equity quotes repository.
func NewEquityQuotesRepo(db *sqlx.DB, timeout time.Duration) persistence.EquityQuotesRepo {
	return &equityQuotesRepo{db: db, timeout: timeout}
}

func (r *equityQuotesRepo) Insert(ctx context.Context, q domain.EquityQuote) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO equity_quotes
			(trace_id, source_ts, ingest_ts, seq, ts, underlying_id, bid, ask)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (trace_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		q.TraceID, q.SourceTS, q.IngestTS, q.Seq, q.TS,
		q.UnderlyingID, q.Bid, q.Ask)
	if err != nil {
		return fmt.Errorf("failed to insert equity quote: %w", err)
	}
	return nil
}

// equityJoinsRepo implements EquityJoinsRepo for PostgreSQL.
type equityJoinsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEquityJoinsRepo creates a PostgreSQL joined-prints repository.
func NewEquityJoinsRepo(db *sqlx.DB, timeout time.Duration) persistence.EquityJoinsRepo {
	return &equityJoinsRepo{db: db, timeout: timeout}
}

func (r *equityJoinsRepo) Insert(ctx context.Context, j domain.EquityPrintJoin) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO equity_joins
			(join_id, source_ts, ingest_ts, seq, ts, underlying_id, price, size, off_exchange,
			 placement, bid, ask, mid, spread, quote_age_ms, quote_stale, quote_missing)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (join_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		j.ID, j.SourceTS, j.IngestTS, j.Seq, j.TS, j.UnderlyingID, j.Price, j.Size, j.OffExchange,
		j.Placement, j.Bid, j.Ask, j.Mid, j.Spread, j.QuoteAgeMs, j.QuoteStale, j.QuoteMissing)
	if err != nil {
		return fmt.Errorf("failed to insert equity join: %w", err)
	}
	return nil
}

// equityCandlesRepo implements EquityCandlesRepo for PostgreSQL.
type equityCandlesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEquityCandlesRepo creates a PostgreSQL candles repository.
func NewEquityCandlesRepo(db *sqlx.DB, timeout time.Duration) persistence.EquityCandlesRepo {
	return &equityCandlesRepo{db: db, timeout: timeout}
}

func (r *equityCandlesRepo) Insert(ctx context.Context, c domain.EquityCandle) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO equity_candles
			(trace_id, source_ts, ingest_ts, seq, ts, underlying_id, interval_ms,
			 open, high, low, close, volume, trade_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (trace_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		c.TraceID, c.SourceTS, c.IngestTS, c.Seq, c.TS, c.UnderlyingID, c.IntervalMs,
		c.Open, c.High, c.Low, c.Close, c.Volume, c.TradeCount)
	if err != nil {
		return fmt.Errorf("failed to insert equity candle: %w", err)
	}
	return nil
}
