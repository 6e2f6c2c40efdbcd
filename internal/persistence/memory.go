package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/sawpanic/flowrun/internal/domain"
)

// MemoryStore is the in-process Repository used by tests and busless dev
// runs. Inserts deduplicate on trace id, matching the columnar store's
// idempotent writes.
type MemoryStore struct {
	mu sync.Mutex

	optionPrints []domain.OptionPrint
	optionNBBO   []domain.OptionNBBO
	equityPrints []domain.EquityPrint
	equityQuotes []domain.EquityQuote
	equityJoins  []domain.EquityPrintJoin
	candles      []domain.EquityCandle
	packets      []domain.FlowPacket
	hits         []domain.ClassifierHitEvent
	alerts       []domain.AlertEvent
	dark         []domain.InferredDark

	seen map[string]bool
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]bool)}
}

// Repository exposes the store through the table interfaces.
func (m *MemoryStore) Repository() *Repository {
	return &Repository{
		OptionPrints:   m,
		OptionNBBO:     (*memoryNBBO)(m),
		EquityPrints:   (*memoryEquityPrints)(m),
		EquityQuotes:   (*memoryEquityQuotes)(m),
		EquityJoins:    (*memoryEquityJoins)(m),
		EquityCandles:  (*memoryCandles)(m),
		FlowPackets:    (*memoryPackets)(m),
		ClassifierHits: (*memoryHits)(m),
		Alerts:         (*memoryAlerts)(m),
		InferredDark:   (*memoryDark)(m),
	}
}

// firstSeen records key and reports whether it was new.
func (m *MemoryStore) firstSeen(key string) bool {
	if m.seen[key] {
		return false
	}
	m.seen[key] = true
	return true
}

// Insert stores an option print.
func (m *MemoryStore) Insert(_ context.Context, p domain.OptionPrint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.firstSeen("op:" + p.TraceID) {
		m.optionPrints = append(m.optionPrints, p)
	}
	return nil
}

type memoryNBBO MemoryStore

func (m *memoryNBBO) Insert(_ context.Context, q domain.OptionNBBO) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if (*MemoryStore)(m).firstSeen("on:" + q.TraceID) {
		m.optionNBBO = append(m.optionNBBO, q)
	}
	return nil
}

type memoryEquityPrints MemoryStore

func (m *memoryEquityPrints) Insert(_ context.Context, p domain.EquityPrint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if (*MemoryStore)(m).firstSeen("ep:" + p.TraceID) {
		m.equityPrints = append(m.equityPrints, p)
	}
	return nil
}

type memoryEquityQuotes MemoryStore

func (m *memoryEquityQuotes) Insert(_ context.Context, q domain.EquityQuote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if (*MemoryStore)(m).firstSeen("eq:" + q.TraceID) {
		m.equityQuotes = append(m.equityQuotes, q)
	}
	return nil
}

type memoryEquityJoins MemoryStore

func (m *memoryEquityJoins) Insert(_ context.Context, j domain.EquityPrintJoin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if (*MemoryStore)(m).firstSeen("ej:" + j.ID) {
		m.equityJoins = append(m.equityJoins, j)
	}
	return nil
}

type memoryCandles MemoryStore

func (m *memoryCandles) Insert(_ context.Context, c domain.EquityCandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if (*MemoryStore)(m).firstSeen("ec:" + c.TraceID) {
		m.candles = append(m.candles, c)
	}
	return nil
}

type memoryPackets MemoryStore

func (m *memoryPackets) Insert(_ context.Context, p domain.FlowPacket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if (*MemoryStore)(m).firstSeen("fp:" + p.ID) {
		m.packets = append(m.packets, p)
	}
	return nil
}

func (m *memoryPackets) ListAfter(_ context.Context, cur Cursor, limit int) ([]domain.FlowPacket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.FlowPacket, 0, limit)
	for _, p := range sortedPackets(m.packets) {
		if p.SourceTS < cur.TS || (p.SourceTS == cur.TS && p.Seq <= cur.Seq) {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memoryPackets) Latest(_ context.Context, limit int) ([]domain.FlowPacket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := sortedPackets(m.packets)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func sortedPackets(in []domain.FlowPacket) []domain.FlowPacket {
	out := append([]domain.FlowPacket(nil), in...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceTS != out[j].SourceTS {
			return out[i].SourceTS < out[j].SourceTS
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

type memoryHits MemoryStore

func (m *memoryHits) Insert(_ context.Context, h domain.ClassifierHitEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if (*MemoryStore)(m).firstSeen("ch:" + h.TraceID) {
		m.hits = append(m.hits, h)
	}
	return nil
}

type memoryAlerts MemoryStore

func (m *memoryAlerts) Insert(_ context.Context, a domain.AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if (*MemoryStore)(m).firstSeen("al:" + a.TraceID) {
		m.alerts = append(m.alerts, a)
	}
	return nil
}

func (m *memoryAlerts) Latest(_ context.Context, limit int) ([]domain.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := append([]domain.AlertEvent(nil), m.alerts...)
	sort.Slice(all, func(i, j int) bool {
		if all[i].SourceTS != all[j].SourceTS {
			return all[i].SourceTS < all[j].SourceTS
		}
		return all[i].Seq < all[j].Seq
	})
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

type memoryDark MemoryStore

func (m *memoryDark) Insert(_ context.Context, d domain.InferredDark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if (*MemoryStore)(m).firstSeen("id:" + d.TraceID) {
		m.dark = append(m.dark, d)
	}
	return nil
}

// Ping satisfies Health; the in-process store is always reachable.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Test accessors. Each returns a copy under the lock.

func (m *MemoryStore) OptionPrintRows() []domain.OptionPrint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OptionPrint(nil), m.optionPrints...)
}

func (m *MemoryStore) EquityJoinRows() []domain.EquityPrintJoin {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.EquityPrintJoin(nil), m.equityJoins...)
}

func (m *MemoryStore) CandleRows() []domain.EquityCandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.EquityCandle(nil), m.candles...)
}

func (m *MemoryStore) PacketRows() []domain.FlowPacket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.FlowPacket(nil), m.packets...)
}

func (m *MemoryStore) HitRows() []domain.ClassifierHitEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ClassifierHitEvent(nil), m.hits...)
}

func (m *MemoryStore) AlertRows() []domain.AlertEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AlertEvent(nil), m.alerts...)
}

func (m *MemoryStore) DarkRows() []domain.InferredDark {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.InferredDark(nil), m.dark...)
}
