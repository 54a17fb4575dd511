package quote

import (
	"context"
	"runtime"
	"weak"

	"github.com/longportwhale/openapi-go/config"
	"github.com/longportwhale/openapi-go/push"
)

// Session is a QuoteContext whose pushes are delivered to per-kind listeners
// by a background forwarder. The forwarder stops once the Session is closed
// or collected.
type Session struct {
	*QuoteContext

	quote       push.Slot[PushEvent]
	depth       push.Slot[PushEvent]
	brokers     push.Slot[PushEvent]
	trades      push.Slot[PushEvent]
	candlestick push.Slot[PushEvent]

	stop    context.CancelFunc
	cleanup runtime.Cleanup
}

// NewSession opens a quote session with listener based push delivery.
func NewSession(ctx context.Context, cfg *config.Config) (*Session, error) {
	qc, rx, err := TryNew(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fctx, cancel := context.WithCancel(context.Background())
	s := &Session{QuoteContext: qc, stop: cancel}
	go push.Forward(fctx, rx, weak.Make(s), (*Session).deliver)
	s.cleanup = runtime.AddCleanup(s, func(cancel context.CancelFunc) { cancel() }, context.CancelFunc(cancel))
	return s, nil
}

func (s *Session) deliver(ev PushEvent) {
	switch ev.Detail.(type) {
	case PushQuote:
		s.quote.Deliver(ev)
	case PushDepth:
		s.depth.Deliver(ev)
	case PushBrokers:
		s.brokers.Deliver(ev)
	case PushTrades:
		s.trades.Deliver(ev)
	case PushCandlestick:
		s.candlestick.Deliver(ev)
	}
}

// OnQuote sets the quote listener; nil clears it.
func (s *Session) OnQuote(l push.Listener[PushEvent]) { s.quote.Set(l) }

func (s *Session) OnDepth(l push.Listener[PushEvent]) { s.depth.Set(l) }

func (s *Session) OnBrokers(l push.Listener[PushEvent]) { s.brokers.Set(l) }

func (s *Session) OnTrades(l push.Listener[PushEvent]) { s.trades.Set(l) }

func (s *Session) OnCandlestick(l push.Listener[PushEvent]) { s.candlestick.Set(l) }

// Close stops push delivery and releases the handle.
func (s *Session) Close() error {
	s.cleanup.Stop()
	s.stop()
	return s.QuoteContext.Close()
}
