package wsclient

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/longportwhale/openapi-go/config"
)

// State is the lifecycle of a channel session.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// StateVar is written by a session core and read by its handles.
type StateVar struct {
	v atomic.Int32
}

func (s *StateVar) Load() State   { return State(s.v.Load()) }
func (s *StateVar) Store(v State) { s.v.Store(int32(v)) }

// RedialOptions controls Redial.
type RedialOptions struct {
	Options
	Backoff Backoff
	// MaxAttempts bounds the attempts; zero retries until ctx ends.
	MaxAttempts int
	// Token, when set, is consulted before every attempt so rotated
	// credentials are picked up.
	Token func() string
}

// ConfigOptions derives the dial and redial settings of one channel from cfg.
func ConfigOptions(cfg *config.Config, channel, url string) RedialOptions {
	return RedialOptions{
		Options: Options{
			URL:               url,
			Channel:           channel,
			AppKey:            cfg.AppKey,
			Token:             cfg.Token(),
			Language:          cfg.Language.String(),
			RequestTimeout:    cfg.RequestTimeout,
			HeartbeatInterval: cfg.HeartbeatInterval,
			Logger:            cfg.Log(),
			Metrics:           cfg.Metrics,
		},
		Backoff: Backoff{
			Min:    cfg.ReconnectMin,
			Max:    cfg.ReconnectMax,
			Factor: cfg.ReconnectFactor,
			Jitter: cfg.ReconnectJitter,
		},
		MaxAttempts: cfg.MaxReconnectAttempts,
		Token:       cfg.Token,
	}
}

// Redial reopens a session after a connection loss. Each attempt waits per
// the backoff, resumes opts.SessionID (falling back to auth) and then runs
// replay on the new client. A client is returned only after replay succeeded.
func Redial(ctx context.Context, opts RedialOptions, replay func(context.Context, *Client) error) (*Client, error) {
	logger := opts.Logger
	channel := opts.Channel
	var lastErr error
	for attempt := 1; opts.MaxAttempts <= 0 || attempt <= opts.MaxAttempts; attempt++ {
		wait := opts.Backoff.Next(attempt)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		o := opts.Options
		if opts.Token != nil {
			o.Token = opts.Token()
		}
		c, err := Open(ctx, o)
		if err == nil && replay != nil {
			if err = replay(ctx, c); err != nil {
				_ = c.Close()
				err = fmt.Errorf("replay subscriptions: %w", err)
			}
		}
		if err != nil {
			lastErr = err
			opts.Metrics.Reconnect(channel, false)
			if logger != nil {
				logger.Warn("Reconnect attempt failed", "channel", channel, "attempt", attempt, "wait", wait, "error", err)
			}
			continue
		}

		opts.Metrics.Reconnect(channel, true)
		if logger != nil {
			logger.Info("Reconnected", "channel", channel, "attempt", attempt, "session_id", c.Session().SessionID)
		}
		return c, nil
	}
	return nil, fmt.Errorf("reconnect: gave up after %d attempts: %w", opts.MaxAttempts, lastErr)
}
