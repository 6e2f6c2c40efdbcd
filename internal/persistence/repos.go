// Package persistence defines the columnar-store boundary. Implementations
// must make Insert idempotent on the record's trace_id (or packet id) so a
// replayed stream never duplicates rows.
package persistence

import (
	"context"

	"github.com/sawpanic/flowrun/internal/domain"
)

// Cursor addresses a position in a (ts, seq) ordered table for replay reads.
type Cursor struct {
	TS  int64
	Seq int64
}

// OptionPrintsRepo stores raw option prints.
type OptionPrintsRepo interface {
	Insert(ctx context.Context, p domain.OptionPrint) error
}

// OptionNBBORepo stores NBBO updates.
type OptionNBBORepo interface {
	Insert(ctx context.Context, q domain.OptionNBBO) error
}

// EquityPrintsRepo stores raw equity prints.
type EquityPrintsRepo interface {
	Insert(ctx context.Context, p domain.EquityPrint) error
}

// EquityQuotesRepo stores equity quote updates.
type EquityQuotesRepo interface {
	Insert(ctx context.Context, q domain.EquityQuote) error
}

// EquityJoinsRepo stores quote-joined equity prints.
type EquityJoinsRepo interface {
	Insert(ctx context.Context, j domain.EquityPrintJoin) error
}

// EquityCandlesRepo stores interval bars.
type EquityCandlesRepo interface {
	Insert(ctx context.Context, c domain.EquityCandle) error
}

// FlowPacketsRepo stores flow packets and serves the gateway's replay reads.
type FlowPacketsRepo interface {
	Insert(ctx context.Context, p domain.FlowPacket) error
	ListAfter(ctx context.Context, cur Cursor, limit int) ([]domain.FlowPacket, error)
	Latest(ctx context.Context, limit int) ([]domain.FlowPacket, error)
}

// ClassifierHitsRepo stores classifier hit events.
type ClassifierHitsRepo interface {
	Insert(ctx context.Context, h domain.ClassifierHitEvent) error
}

// AlertsRepo stores alerts.
type AlertsRepo interface {
	Insert(ctx context.Context, a domain.AlertEvent) error
	Latest(ctx context.Context, limit int) ([]domain.AlertEvent, error)
}

// InferredDarkRepo stores dark inference events.
type InferredDarkRepo interface {
	Insert(ctx context.Context, d domain.InferredDark) error
}

// Repository bundles every table repo.
type Repository struct {
	OptionPrints   OptionPrintsRepo
	OptionNBBO     OptionNBBORepo
	EquityPrints   EquityPrintsRepo
	EquityQuotes   EquityQuotesRepo
	EquityJoins    EquityJoinsRepo
	EquityCandles  EquityCandlesRepo
	FlowPackets    FlowPacketsRepo
	ClassifierHits ClassifierHitsRepo
	Alerts         AlertsRepo
	InferredDark   InferredDarkRepo
}

// Health checks store connectivity for the monitor endpoint.
type Health interface {
	Ping(ctx context.Context) error
}
