package postgres

// schemaStatements is the full DDL, applied in order by Manager.Migrate.
// Unique keys on trace ids (and packet ids) back the ON CONFLICT DO NOTHING
// inserts that make replays idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS option_prints (
		id BIGSERIAL PRIMARY KEY,
		trace_id TEXT NOT NULL UNIQUE,
		source_ts BIGINT NOT NULL,
		ingest_ts BIGINT NOT NULL,
		seq BIGINT NOT NULL,
		ts BIGINT NOT NULL,
		option_contract_id TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		exchange TEXT NOT NULL DEFAULT '',
		conditions TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_option_prints_contract_ts
		ON option_prints (option_contract_id, ts)`,

	`CREATE TABLE IF NOT EXISTS option_nbbo (
		id BIGSERIAL PRIMARY KEY,
		trace_id TEXT NOT NULL UNIQUE,
		source_ts BIGINT NOT NULL,
		ingest_ts BIGINT NOT NULL,
		seq BIGINT NOT NULL,
		ts BIGINT NOT NULL,
		option_contract_id TEXT NOT NULL,
		bid DOUBLE PRECISION NOT NULL,
		ask DOUBLE PRECISION NOT NULL,
		bid_size DOUBLE PRECISION NOT NULL,
		ask_size DOUBLE PRECISION NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_option_nbbo_contract_ts
		ON option_nbbo (option_contract_id, ts)`,

	`CREATE TABLE IF NOT EXISTS equity_prints (
		id BIGSERIAL PRIMARY KEY,
		trace_id TEXT NOT NULL UNIQUE,
		source_ts BIGINT NOT NULL,
		ingest_ts BIGINT NOT NULL,
		seq BIGINT NOT NULL,
		ts BIGINT NOT NULL,
		underlying_id TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		exchange TEXT NOT NULL DEFAULT '',
		off_exchange BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_equity_prints_underlying_ts
		ON equity_prints (underlying_id, ts)`,

	`CREATE TABLE IF NOT EXISTS equity_quotes (
		id BIGSERIAL PRIMARY KEY,
		trace_id TEXT NOT NULL UNIQUE,
		source_ts BIGINT NOT NULL,
		ingest_ts BIGINT NOT NULL,
		seq BIGINT NOT NULL,
		ts BIGINT NOT NULL,
		underlying_id TEXT NOT NULL,
		bid DOUBLE PRECISION NOT NULL,
		ask DOUBLE PRECISION NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_equity_quotes_underlying_ts
		ON equity_quotes (underlying_id, ts)`,

	`CREATE TABLE IF NOT EXISTS equity_joins (
		id BIGSERIAL PRIMARY KEY,
		join_id TEXT NOT NULL UNIQUE,
		source_ts BIGINT NOT NULL,
		ingest_ts BIGINT NOT NULL,
		seq BIGINT NOT NULL,
		ts BIGINT NOT NULL,
		underlying_id TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		off_exchange BOOLEAN NOT NULL DEFAULT FALSE,
		placement TEXT NOT NULL,
		bid DOUBLE PRECISION NOT NULL DEFAULT 0,
		ask DOUBLE PRECISION NOT NULL DEFAULT 0,
		mid DOUBLE PRECISION NOT NULL DEFAULT 0,
		spread DOUBLE PRECISION NOT NULL DEFAULT 0,
		quote_age_ms BIGINT NOT NULL DEFAULT 0,
		quote_stale BOOLEAN NOT NULL DEFAULT FALSE,
		quote_missing BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_equity_joins_underlying_ts
		ON equity_joins (underlying_id, ts)`,

	`CREATE TABLE IF NOT EXISTS equity_candles (
		id BIGSERIAL PRIMARY KEY,
		trace_id TEXT NOT NULL UNIQUE,
		source_ts BIGINT NOT NULL,
		ingest_ts BIGINT NOT NULL,
		seq BIGINT NOT NULL,
		ts BIGINT NOT NULL,
		underlying_id TEXT NOT NULL,
		interval_ms BIGINT NOT NULL,
		open DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL,
		trade_count INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_equity_candles_underlying_ts
		ON equity_candles (underlying_id, ts)`,

	`CREATE TABLE IF NOT EXISTS flow_packets (
		id BIGSERIAL PRIMARY KEY,
		packet_id TEXT NOT NULL UNIQUE,
		source_ts BIGINT NOT NULL,
		ingest_ts BIGINT NOT NULL,
		seq BIGINT NOT NULL,
		packet_kind TEXT NOT NULL,
		members TEXT[] NOT NULL DEFAULT '{}',
		features JSONB NOT NULL DEFAULT '{}',
		join_quality JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_flow_packets_ts_seq
		ON flow_packets (source_ts, seq)`,

	`CREATE TABLE IF NOT EXISTS classifier_hits (
		id BIGSERIAL PRIMARY KEY,
		trace_id TEXT NOT NULL UNIQUE,
		source_ts BIGINT NOT NULL,
		ingest_ts BIGINT NOT NULL,
		seq BIGINT NOT NULL,
		packet_id TEXT NOT NULL,
		classifier_id TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		direction TEXT NOT NULL,
		explanations TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_classifier_hits_packet
		ON classifier_hits (packet_id)`,

	`CREATE TABLE IF NOT EXISTS alerts (
		id BIGSERIAL PRIMARY KEY,
		trace_id TEXT NOT NULL UNIQUE,
		source_ts BIGINT NOT NULL,
		ingest_ts BIGINT NOT NULL,
		seq BIGINT NOT NULL,
		score INTEGER NOT NULL,
		severity TEXT NOT NULL,
		hits JSONB NOT NULL DEFAULT '[]',
		evidence_refs TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_ts_seq
		ON alerts (source_ts, seq)`,

	`CREATE TABLE IF NOT EXISTS inferred_dark (
		id BIGSERIAL PRIMARY KEY,
		trace_id TEXT NOT NULL UNIQUE,
		source_ts BIGINT NOT NULL,
		ingest_ts BIGINT NOT NULL,
		seq BIGINT NOT NULL,
		type TEXT NOT NULL,
		underlying_id TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		evidence_refs TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inferred_dark_underlying
		ON inferred_dark (underlying_id, source_ts)`,
}
