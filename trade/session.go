package trade

import (
	"context"
	"runtime"
	"weak"

	"github.com/longportwhale/openapi-go/config"
	"github.com/longportwhale/openapi-go/push"
)

// Session is a TradeContext that hands order changes to a listener.
type Session struct {
	*TradeContext

	orderChanged push.Slot[PushOrderChanged]

	stop    context.CancelFunc
	cleanup runtime.Cleanup
}

// NewSession opens a trade session with listener based push delivery.
func NewSession(ctx context.Context, cfg *config.Config) (*Session, error) {
	tc, rx, err := TryNew(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fctx, cancel := context.WithCancel(context.Background())
	s := &Session{TradeContext: tc, stop: cancel}
	go push.Forward(fctx, rx, weak.Make(s), (*Session).deliver)
	s.cleanup = runtime.AddCleanup(s, func(cancel context.CancelFunc) { cancel() }, context.CancelFunc(cancel))
	return s, nil
}

func (s *Session) deliver(ev PushEvent) {
	switch ev := ev.(type) {
	case PushOrderChanged:
		s.orderChanged.Deliver(ev)
	}
}

// OnOrderChanged sets the order change listener; nil clears it.
func (s *Session) OnOrderChanged(l push.Listener[PushOrderChanged]) {
	s.orderChanged.Set(l)
}

// Close stops push delivery and releases the handle.
func (s *Session) Close() error {
	s.cleanup.Stop()
	s.stop()
	return s.TradeContext.Close()
}
