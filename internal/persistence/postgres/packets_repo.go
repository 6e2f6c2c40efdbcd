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

// packetsRepo implements FlowPacketsRepo for PostgreSQL. Features and join
// quality go to JSONB so the gateway can serve them back untouched.
type packetsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPacketsRepo creates a PostgreSQL flow packets repository.
func NewPacketsRepo(db *sqlx.DB, timeout time.Duration) persistence.FlowPacketsRepo {
	return &packetsRepo{db: db, timeout: timeout}
}

func (r *packetsRepo) Insert(ctx context.Context, p domain.FlowPacket) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	featuresJSON, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}
	joinQualityJSON, err := json.Marshal(p.JoinQuality)
	if err != nil {
		return fmt.Errorf("failed to marshal join quality: %w", err)
	}

	query := `
		INSERT INTO flow_packets
			(packet_id, source_ts, ingest_ts, seq, packet_kind, members, features, join_quality)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (packet_id) DO NOTHING`

	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.SourceTS, p.IngestTS, p.Seq, p.Kind,
		pq.Array(p.Members), featuresJSON, joinQualityJSON)
	if err != nil {
		return fmt.Errorf("failed to insert flow packet: %w", err)
	}
	return nil
}

// ListAfter returns packets strictly after the cursor in (source_ts, seq)
// order, oldest first.
func (r *packetsRepo) ListAfter(ctx context.Context, cur persistence.Cursor, limit int) ([]domain.FlowPacket, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT packet_id, source_ts, ingest_ts, seq, packet_kind, members, features, join_quality
		FROM flow_packets
		WHERE source_ts > $1 OR (source_ts = $1 AND seq > $2)
		ORDER BY source_ts, seq
		LIMIT $3`

	rows, err := r.db.QueryxContext(ctx, query, cur.TS, cur.Seq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query packets after cursor: %w", err)
	}
	defer rows.Close()

	return r.scanPackets(rows)
}

// Latest returns the newest packets, oldest first.
func (r *packetsRepo) Latest(ctx context.Context, limit int) ([]domain.FlowPacket, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT packet_id, source_ts, ingest_ts, seq, packet_kind, members, features, join_quality
		FROM (
			SELECT packet_id, source_ts, ingest_ts, seq, packet_kind, members, features, join_quality
			FROM flow_packets
			ORDER BY source_ts DESC, seq DESC
			LIMIT $1
		) newest
		ORDER BY source_ts, seq`

	rows, err := r.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest packets: %w", err)
	}
	defer rows.Close()

	return r.scanPackets(rows)
}

func (r *packetsRepo) scanPackets(rows *sqlx.Rows) ([]domain.FlowPacket, error) {
	var packets []domain.FlowPacket
	for rows.Next() {
		var (
			p               domain.FlowPacket
			members         pq.StringArray
			featuresJSON    []byte
			joinQualityJSON []byte
		)
		err := rows.Scan(&p.ID, &p.SourceTS, &p.IngestTS, &p.Seq, &p.Kind,
			&members, &featuresJSON, &joinQualityJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan packet: %w", err)
		}
		p.Members = []string(members)
		p.TraceID = p.ID
		if err := json.Unmarshal(featuresJSON, &p.Features); err != nil {
			return nil, fmt.Errorf("failed to unmarshal features: %w", err)
		}
		if err := json.Unmarshal(joinQualityJSON, &p.JoinQuality); err != nil {
			return nil, fmt.Errorf("failed to unmarshal join quality: %w", err)
		}
		packets = append(packets, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating packet rows: %w", err)
	}
	return packets, nil
}
