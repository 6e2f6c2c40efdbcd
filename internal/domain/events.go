// Package domain holds the event model shared by every pipeline stage.
// All timestamps are Unix milliseconds, UTC.
package domain

// Envelope carries the common metadata every external event has.
type Envelope struct {
	SourceTS int64  `json:"source_ts"`
	IngestTS int64  `json:"ingest_ts"`
	Seq      int64  `json:"seq"`
	TraceID  string `json:"trace_id"`
}

// OptionPrint is a single trade print on an option contract.
// Immutable; keyed by (trace_id, seq).
type OptionPrint struct {
	Envelope
	TS         int64    `json:"ts"`
	ContractID string   `json:"option_contract_id"`
	Price      float64  `json:"price"`
	Size       float64  `json:"size"`
	Exchange   string   `json:"exchange"`
	Conditions []string `json:"conditions,omitempty"`
}

// OptionNBBO is a national best bid/offer update for one contract.
type OptionNBBO struct {
	Envelope
	TS         int64   `json:"ts"`
	ContractID string  `json:"option_contract_id"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	BidSize    float64 `json:"bidSize"`
	AskSize    float64 `json:"askSize"`
}

// EquityPrint is a trade print on an underlying equity.
type EquityPrint struct {
	Envelope
	TS           int64   `json:"ts"`
	UnderlyingID string  `json:"underlying_id"`
	Price        float64 `json:"price"`
	Size         float64 `json:"size"`
	Exchange     string  `json:"exchange"`
	OffExchange  bool    `json:"offExchangeFlag"`
}

// EquityQuote is a top-of-book quote update for an underlying.
type EquityQuote struct {
	Envelope
	TS           int64   `json:"ts"`
	UnderlyingID string  `json:"underlying_id"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
}

// Packet kinds.
const (
	PacketKindContract  = "contract"
	PacketKindStructure = "structure"
)

// FlowPacket is the clustered representation of a burst of prints on one
// contract (or, for packet_kind=structure, a detected multi-leg structure).
type FlowPacket struct {
	Envelope
	ID          string                 `json:"id"`
	Kind        string                 `json:"packet_kind"`
	Members     []string               `json:"members"`
	Features    map[string]interface{} `json:"features"`
	JoinQuality map[string]interface{} `json:"join_quality"`
}

// Feature returns a numeric feature by name.
func (p *FlowPacket) Feature(name string) (float64, bool) {
	v, ok := p.Features[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// FeatureString returns a string feature by name.
func (p *FlowPacket) FeatureString(name string) (string, bool) {
	v, ok := p.Features[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Direction of a classifier hit.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// ClassifierHit is one classifier's verdict on a packet.
type ClassifierHit struct {
	ClassifierID string    `json:"classifier_id"`
	Confidence   float64   `json:"confidence"`
	Direction    Direction `json:"direction"`
	Explanations []string  `json:"explanations"`
}

// ClassifierHitEvent is the published form of a hit.
type ClassifierHitEvent struct {
	Envelope
	ClassifierHit
	PacketID string `json:"packet_id"`
}

// Alert severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// AlertEvent aggregates a packet's hits into one scored alert.
type AlertEvent struct {
	Envelope
	Score        int             `json:"score"`
	Severity     string          `json:"severity"`
	Hits         []ClassifierHit `json:"hits"`
	EvidenceRefs []string        `json:"evidence_refs"`
}

// EquityPrintJoin is an equity print joined against the latest equity quote.
type EquityPrintJoin struct {
	Envelope
	ID           string  `json:"id"`
	TS           int64   `json:"ts"`
	UnderlyingID string  `json:"underlying_id"`
	Price        float64 `json:"price"`
	Size         float64 `json:"size"`
	OffExchange  bool    `json:"offExchangeFlag"`
	Placement    string  `json:"placement"`
	Bid          float64 `json:"bid,omitempty"`
	Ask          float64 `json:"ask,omitempty"`
	Mid          float64 `json:"mid,omitempty"`
	Spread       float64 `json:"spread,omitempty"`
	QuoteAgeMs   int64   `json:"quote_age_ms,omitempty"`
	QuoteStale   bool    `json:"quote_stale,omitempty"`
	QuoteMissing bool    `json:"quote_missing,omitempty"`
}

// Dark inference event types.
const (
	DarkAbsorbedBlock        = "absorbed_block"
	DarkStealthAccumulation  = "stealth_accumulation"
	DarkDistribution         = "distribution"
)

// InferredDark is an off-exchange inference on an underlying.
type InferredDark struct {
	Envelope
	Type         string   `json:"type"`
	UnderlyingID string   `json:"underlying_id"`
	Confidence   float64  `json:"confidence"`
	EvidenceRefs []string `json:"evidence_refs"`
}

// EquityCandle is a fixed-interval OHLCV bar for an underlying.
type EquityCandle struct {
	Envelope
	TS           int64   `json:"ts"`
	UnderlyingID string  `json:"underlying_id"`
	IntervalMs   int64   `json:"interval_ms"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	Volume       float64 `json:"volume"`
	TradeCount   int     `json:"trade_count"`
}
