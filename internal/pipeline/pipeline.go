// Package pipeline wires the consumers, the coordinator and the emitters
// into one process. A single coordinator goroutine owns every piece of
// mutable state (cluster map, quote caches, legs registry, dark windows,
// candle bars); stream handlers hand it closures and wait, so a message is
// acked only after all work it caused has finished.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/flowrun/internal/alert"
	"github.com/sawpanic/flowrun/internal/candles"
	"github.com/sawpanic/flowrun/internal/classify"
	"github.com/sawpanic/flowrun/internal/cluster"
	"github.com/sawpanic/flowrun/internal/dark"
	"github.com/sawpanic/flowrun/internal/domain"
	"github.com/sawpanic/flowrun/internal/domain/contract"
	"github.com/sawpanic/flowrun/internal/enrich"
	"github.com/sawpanic/flowrun/internal/metrics"
	"github.com/sawpanic/flowrun/internal/persistence"
	"github.com/sawpanic/flowrun/internal/quotes"
	"github.com/sawpanic/flowrun/internal/stats"
	"github.com/sawpanic/flowrun/internal/stream"
	"github.com/sawpanic/flowrun/internal/structure"
)

// Config holds the pipeline's tunables.
type Config struct {
	WindowMs            int64
	NBBOMaxAgeMs        int64
	EquityQuoteMaxAgeMs int64
	CandleIntervalMs    int64
	StructureWindowMs   int64
	StructureCapacity   int
	ConsumerGroup       string
	Classify            classify.Config
	Dark                dark.Config
	Retry               stream.RetryConfig
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		WindowMs:            500,
		NBBOMaxAgeMs:        5000,
		EquityQuoteMaxAgeMs: 5000,
		CandleIntervalMs:    60_000,
		StructureWindowMs:   500,
		StructureCapacity:   256,
		ConsumerGroup:       "flowrun",
		Classify:            classify.DefaultConfig(),
		Dark: dark.Config{
			MinBlockSize: 2000,
			MinPrintSize: 200,
			MinCount:     6,
			MinSize:      10000,
			WindowMs:     120_000,
			CooldownMs:   300_000,
			MaxSpreadPct: 0.005,
			MaxEvidence:  12,
		},
		Retry: stream.DefaultRetryConfig(),
	}
}

// Pipeline is the running analytics process.
type Pipeline struct {
	cfg   Config
	bus   stream.Bus
	repos *persistence.Repository
	reg   *metrics.Registry

	optBook   *quotes.OptionBook
	eqBook    *quotes.EquityBook
	engine    *cluster.Engine
	legs      *structure.Registry
	darkEng   *dark.Engine
	candleAgg *candles.Aggregator
	enricher  *enrich.Enricher
	bank      *classify.Bank

	work chan func()

	// flushCtx carries the triggering message's context into engine flush
	// callbacks. Only the coordinator goroutine touches it.
	flushCtx context.Context
}

// New assembles the pipeline around the injected bus, store and rolling
// baseline store.
func New(cfg Config, bus stream.Bus, repos *persistence.Repository, rolling stats.RollingStore, reg *metrics.Registry) *Pipeline {
	p := &Pipeline{
		cfg:   cfg,
		bus:   bus,
		repos: repos,
		reg:   reg,

		optBook:   quotes.NewOptionBook(cfg.NBBOMaxAgeMs),
		eqBook:    quotes.NewEquityBook(cfg.EquityQuoteMaxAgeMs),
		legs:      structure.NewRegistry(cfg.StructureWindowMs, cfg.StructureCapacity),
		candleAgg: candles.NewAggregator(cfg.CandleIntervalMs),
		bank:      classify.NewBank(cfg.Classify),

		work: make(chan func()),
	}
	p.darkEng = dark.NewEngine(cfg.Dark, p.eqBook)
	p.enricher = enrich.NewEnricher(cfg.WindowMs, p.optBook, p.eqBook, rolling)
	p.engine = cluster.NewEngine(cfg.WindowMs, p.optBook, func(c *cluster.Cluster) {
		p.handleFlush(context.Background(), c)
	})
	return p
}

// Run consumes the four input streams until ctx is cancelled, then drains
// open state. The error is the first consumer failure, if any.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	coordCtx, stopCoord := context.WithCancel(context.Background())
	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		for {
			select {
			case fn := <-p.work:
				fn()
			case <-coordCtx.Done():
				return
			}
		}
	}()

	consumers := map[string]stream.Handler{
		stream.StreamOptionPrints: p.handleOptionPrint,
		stream.StreamOptionNBBO:   p.handleOptionNBBO,
		stream.StreamEquityPrints: p.handleEquityPrint,
		stream.StreamEquityQuotes: p.handleEquityQuote,
	}
	for name, handler := range consumers {
		name, handler := name, handler
		g.Go(func() error {
			counted := func(hctx context.Context, msg *stream.Message) error {
				p.reg.MessagesConsumed.WithLabelValues(name).Inc()
				return handler(hctx, msg)
			}
			return p.bus.Consume(gctx, name, p.cfg.ConsumerGroup, counted)
		})
	}

	err := g.Wait()

	// Consumers are stopped; drain open clusters and bars through the
	// coordinator so the final packets still go through the normal path.
	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.dispatch(drainCtx, func() {
		p.engine.FlushAll()
		p.reg.OpenClusters.Set(0)
		for _, c := range p.candleAgg.FlushAll() {
			p.emitCandle(drainCtx, c)
		}
	})
	stopCoord()
	<-coordDone

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// dispatch runs fn on the coordinator goroutine and waits for it.
func (p *Pipeline) dispatch(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}
	select {
	case p.work <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes fn on the coordinator and returns its error.
func (p *Pipeline) run(ctx context.Context, fn func(context.Context) error) error {
	var err error
	if derr := p.dispatch(ctx, func() { err = fn(ctx) }); derr != nil {
		return derr
	}
	return err
}

func (p *Pipeline) handleOptionNBBO(ctx context.Context, msg *stream.Message) error {
	var q domain.OptionNBBO
	if err := json.Unmarshal(msg.Payload, &q); err != nil {
		log.Error().Err(err).Str("stream", msg.Stream).Msg("undecodable NBBO payload")
		return stream.ErrTerminate
	}
	if err := p.persist(ctx, "option_nbbo", func() error {
		return p.repos.OptionNBBO.Insert(ctx, q)
	}); err != nil {
		return err
	}
	return p.run(ctx, func(context.Context) error {
		p.optBook.Absorb(q)
		return nil
	})
}

func (p *Pipeline) handleEquityQuote(ctx context.Context, msg *stream.Message) error {
	var q domain.EquityQuote
	if err := json.Unmarshal(msg.Payload, &q); err != nil {
		log.Error().Err(err).Str("stream", msg.Stream).Msg("undecodable equity quote payload")
		return stream.ErrTerminate
	}
	if err := p.persist(ctx, "equity_quotes", func() error {
		return p.repos.EquityQuotes.Insert(ctx, q)
	}); err != nil {
		return err
	}
	return p.run(ctx, func(context.Context) error {
		p.eqBook.Absorb(q)
		return nil
	})
}

func (p *Pipeline) handleOptionPrint(ctx context.Context, msg *stream.Message) error {
	var pr domain.OptionPrint
	if err := json.Unmarshal(msg.Payload, &pr); err != nil {
		log.Error().Err(err).Str("stream", msg.Stream).Msg("undecodable option print payload")
		return stream.ErrTerminate
	}
	if err := p.persist(ctx, "option_prints", func() error {
		return p.repos.OptionPrints.Insert(ctx, pr)
	}); err != nil {
		return err
	}
	return p.run(ctx, func(rctx context.Context) error {
		p.ingestOptionPrint(rctx, pr)
		return nil
	})
}

func (p *Pipeline) handleEquityPrint(ctx context.Context, msg *stream.Message) error {
	var pr domain.EquityPrint
	if err := json.Unmarshal(msg.Payload, &pr); err != nil {
		log.Error().Err(err).Str("stream", msg.Stream).Msg("undecodable equity print payload")
		return stream.ErrTerminate
	}
	if err := p.persist(ctx, "equity_prints", func() error {
		return p.repos.EquityPrints.Insert(ctx, pr)
	}); err != nil {
		return err
	}
	return p.run(ctx, func(rctx context.Context) error {
		p.ingestEquityPrint(rctx, pr)
		return nil
	})
}

// ingestOptionPrint feeds the cluster engine. Flushes triggered by this
// print run synchronously inside Ingest via the engine callback.
func (p *Pipeline) ingestOptionPrint(ctx context.Context, pr domain.OptionPrint) {
	p.flushCtx = ctx
	p.engine.Ingest(pr)
	p.flushCtx = nil
	p.reg.OpenClusters.Set(float64(p.engine.Open()))
}

// ingestEquityPrint runs the quote join, the dark rules and the candle
// aggregation for one equity print.
func (p *Pipeline) ingestEquityPrint(ctx context.Context, pr domain.EquityPrint) {
	join, darkEvents := p.darkEng.Process(pr)

	if err := p.persist(ctx, "equity_joins", func() error {
		return p.repos.EquityJoins.Insert(ctx, join)
	}); err == nil {
		p.publish(ctx, stream.StreamEquityJoins, join)
	}

	for _, ev := range darkEvents {
		if err := p.persist(ctx, "inferred_dark", func() error {
			return p.repos.InferredDark.Insert(ctx, ev)
		}); err != nil {
			continue
		}
		p.publish(ctx, stream.StreamInferredDark, ev)
		p.reg.DarkEmitted.WithLabelValues(ev.Type).Inc()
	}

	if closed, ok := p.candleAgg.Apply(pr); ok {
		p.emitCandle(ctx, closed)
	}
}

func (p *Pipeline) emitCandle(ctx context.Context, c domain.EquityCandle) {
	if err := p.persist(ctx, "equity_candles", func() error {
		return p.repos.EquityCandles.Insert(ctx, c)
	}); err != nil {
		return
	}
	p.publish(ctx, stream.StreamEquityCandles, c)
}

// handleFlush turns one closed cluster into its packet(s), hits and alert.
func (p *Pipeline) handleFlush(ctx context.Context, c *cluster.Cluster) {
	if p.flushCtx != nil {
		ctx = p.flushCtx
	}
	timer := p.reg.StartFlushTimer()
	defer timer.Stop()

	legs := p.collectLegs(c)
	pkt, structPkt := p.enricher.Enrich(ctx, c, legs)

	p.emitPacket(ctx, pkt)
	if structPkt != nil {
		p.emitPacket(ctx, structPkt)
	}

	// Closed legs stay visible to later anchors within the window.
	if ct, err := contract.Parse(c.ContractID); err == nil {
		p.legs.Record(structure.Leg{
			ContractID: c.ContractID,
			Root:       ct.Root,
			Expiry:     ct.ExpiryKey(),
			Strike:     ct.Strike,
			Right:      ct.Right,
			EndTS:      c.EndTS,
		})
	}
}

// collectLegs gathers the anchor leg, recorded legs near the anchor and legs
// from still-open clusters on the same root.
func (p *Pipeline) collectLegs(c *cluster.Cluster) []structure.Leg {
	ct, err := contract.Parse(c.ContractID)
	if err != nil {
		return nil
	}
	anchor := structure.Leg{
		ContractID: c.ContractID,
		Root:       ct.Root,
		Expiry:     ct.ExpiryKey(),
		Strike:     ct.Strike,
		Right:      ct.Right,
		EndTS:      c.EndTS,
	}

	extra := []structure.Leg{anchor}
	for _, oc := range p.engine.OpenClusters(c.ContractID) {
		oct, err := contract.Parse(oc.ContractID)
		if err != nil || oct.Root != ct.Root {
			continue
		}
		extra = append(extra, structure.Leg{
			ContractID: oc.ContractID,
			Root:       oct.Root,
			Expiry:     oct.ExpiryKey(),
			Strike:     oct.Strike,
			Right:      oct.Right,
			EndTS:      oc.EndTS,
		})
	}
	return p.legs.LegsNear(ct.Root, c.EndTS, extra)
}

// emitPacket persists and publishes one packet, then runs the classifier
// bank over it and emits hits and the scored alert.
func (p *Pipeline) emitPacket(ctx context.Context, pkt *domain.FlowPacket) {
	if err := p.persist(ctx, "flow_packets", func() error {
		return p.repos.FlowPackets.Insert(ctx, *pkt)
	}); err != nil {
		return
	}
	p.publish(ctx, stream.StreamFlowPackets, pkt)
	p.reg.PacketsEmitted.WithLabelValues(pkt.Kind).Inc()

	hits := p.bank.Evaluate(pkt)
	if len(hits) == 0 {
		return
	}
	for _, hit := range hits {
		ev := alert.HitEvent(pkt, hit)
		if err := p.persist(ctx, "classifier_hits", func() error {
			return p.repos.ClassifierHits.Insert(ctx, *ev)
		}); err != nil {
			continue
		}
		p.publish(ctx, stream.StreamClassifierHits, ev)
		p.reg.HitsEmitted.WithLabelValues(hit.ClassifierID).Inc()
	}

	al := alert.Build(pkt, hits)
	if err := p.persist(ctx, "alerts", func() error {
		return p.repos.Alerts.Insert(ctx, *al)
	}); err != nil {
		return
	}
	p.publish(ctx, stream.StreamAlerts, al)
	p.reg.AlertsEmitted.WithLabelValues(al.Severity).Inc()
}

// persist runs one write with bounded retries. The final failure is counted
// and returned; derived-record callers log and continue, raw-event callers
// propagate it into the bus redelivery protocol.
func (p *Pipeline) persist(ctx context.Context, table string, write func() error) error {
	var err error
	for attempt := 0; attempt <= p.cfg.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.cfg.Retry.Delay(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = write(); err == nil {
			return nil
		}
	}
	p.reg.RecordPersistFailure(table, err)
	return err
}

func (p *Pipeline) publish(ctx context.Context, streamName string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("stream", streamName).Msg("payload encode failed")
		return
	}
	if err := p.bus.Publish(ctx, streamName, data); err != nil {
		p.reg.PublishFailures.WithLabelValues(streamName).Inc()
		log.Error().Err(err).Str("stream", streamName).Msg("publish failed")
		return
	}
	p.reg.MessagesPublished.WithLabelValues(streamName).Inc()
}
