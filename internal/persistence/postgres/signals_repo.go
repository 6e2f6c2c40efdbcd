package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sawpanic/flowrun/internal/domain"
	"github.com/sawpanic/flowrun/internal/persistence"
)

// classifierHitsRepo implements ClassifierHitsRepo for PostgreSQL.
type classifierHitsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewClassifierHitsRepo creates a PostgreSQL classifier hits repository.
func NewClassifierHitsRepo(db *sqlx.DB, timeout time.Duration) persistence.ClassifierHitsRepo {
	return &classifierHitsRepo{db: db, timeout: timeout}
}

func (r *classifierHitsRepo) Insert(ctx context.Context, h domain.ClassifierHitEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO classifier_hits
			(trace_id, source_ts, ingest_ts, seq, packet_id, classifier_id, confidence, direction, explanations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (trace_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		h.TraceID, h.SourceTS, h.IngestTS, h.Seq, h.PacketID,
		h.ClassifierID, h.Confidence, string(h.Direction), pq.Array(h.Explanations))
	if err != nil {
		return fmt.Errorf("failed to insert classifier hit: %w", err)
	}
	return nil
}

// alertsRepo implements AlertsRepo for PostgreSQL.
type alertsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAlertsRepo creates a PostgreSQL alerts repository.
func NewAlertsRepo(db *sqlx.DB, timeout time.Duration) persistence.AlertsRepo {
	return &alertsRepo{db: db, timeout: timeout}
}

func (r *alertsRepo) Insert(ctx context.Context, a domain.AlertEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	hitsJSON, err := json.Marshal(a.Hits)
	if err != nil {
		return fmt.Errorf("failed to marshal hits: %w", err)
	}

	query := `
		INSERT INTO alerts
			(trace_id, source_ts, ingest_ts, seq, score, severity, hits, evidence_refs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (trace_id) DO NOTHING`

	_, err = r.db.ExecContext(ctx, query,
		a.TraceID, a.SourceTS, a.IngestTS, a.Seq,
		a.Score, a.Severity, hitsJSON, pq.Array(a.EvidenceRefs))
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// Latest returns the newest alerts, oldest first.
func (r *alertsRepo) Latest(ctx context.Context, limit int) ([]domain.AlertEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT trace_id, source_ts, ingest_ts, seq, score, severity, hits, evidence_refs
		FROM (
			SELECT trace_id, source_ts, ingest_ts, seq, score, severity, hits, evidence_refs
			FROM alerts
			ORDER BY source_ts DESC, seq DESC
			LIMIT $1
		) newest
		ORDER BY source_ts, seq`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.AlertEvent
	for rows.Next() {
		var (
			a        domain.AlertEvent
			hitsJSON []byte
			refs     pq.StringArray
		)
		err := rows.Scan(&a.TraceID, &a.SourceTS, &a.IngestTS, &a.Seq,
			&a.Score, &a.Severity, &hitsJSON, &refs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if err := json.Unmarshal(hitsJSON, &a.Hits); err != nil {
			return nil, fmt.Errorf("failed to unmarshal hits: %w", err)
		}
		a.EvidenceRefs = []string(refs)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}
	return alerts, nil
}

// inferredDarkRepo implements InferredDarkRepo for PostgreSQL.
type inferredDarkRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewInferredDarkRepo creates a PostgreSQL dark inference repository.
func NewInferredDarkRepo(db *sqlx.DB, timeout time.Duration) persistence.InferredDarkRepo {
	return &inferredDarkRepo{db: db, timeout: timeout}
}

func (r *inferredDarkRepo) Insert(ctx context.Context, d domain.InferredDark) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO inferred_dark
			(trace_id, source_ts, ingest_ts, seq, type, underlying_id, confidence, evidence_refs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (trace_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		d.TraceID, d.SourceTS, d.IngestTS, d.Seq,
		d.Type, d.UnderlyingID, d.Confidence, pq.Array(d.EvidenceRefs))
	if err != nil {
		return fmt.Errorf("failed to insert inferred dark event: %w", err)
	}
	return nil
}
