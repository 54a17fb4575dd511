package trade

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/longportwhale/openapi-go/metrics"
	"github.com/longportwhale/openapi-go/push"
	"github.com/longportwhale/openapi-go/queue"
	"github.com/longportwhale/openapi-go/wsclient"
)

type command interface {
	fail(err error)
}

type subscribeCmd struct {
	ctx    context.Context
	topics []TopicType
	reply  chan error
}

type unsubscribeCmd struct {
	ctx    context.Context
	topics []TopicType
	reply  chan error
}

func (c *subscribeCmd) fail(err error)   { c.reply <- err }
func (c *unsubscribeCmd) fail(err error) { c.reply <- err }

// SubscribeError lists the topics the server refused, with its reasons.
type SubscribeError struct {
	Failed map[TopicType]string
}

func (e *SubscribeError) Error() string {
	topics := slices.Sorted(maps.Keys(e.Failed))
	parts := make([]string, len(topics))
	for i, t := range topics {
		parts[i] = fmt.Sprintf("%s: %s", t, e.Failed[t])
	}
	return "subscribe failed: " + strings.Join(parts, "; ")
}

// core is the trade session: the shared connection skeleton plus the topic
// set.
type core struct {
	*wsclient.SessionCore[command]

	metrics *metrics.Metrics
	sink    *push.Sink[PushEvent]
	topics  map[TopicType]struct{}
}

func newCore(
	client *wsclient.Client,
	redial wsclient.RedialOptions,
	reconnect bool,
	mailbox *queue.Queue[command],
	sink *push.Sink[PushEvent],
	state *wsclient.StateVar,
) *core {
	c := &core{
		metrics: redial.Metrics,
		sink:    sink,
		topics:  make(map[TopicType]struct{}),
	}
	c.SessionCore = wsclient.NewSessionCore(client, redial, reconnect, mailbox, state, wsclient.Hooks[command]{
		Handle: c.handle,
		Fail:   command.fail,
		Push:   c.onPush,
		Replay: c.replay,
		Gone:   sink.Gone(),
		Closed: sink.Close,
	})
	return c
}

func (c *core) handle(cmd command) {
	switch cmd := cmd.(type) {
	case *subscribeCmd:
		c.subscribe(cmd)
	case *unsubscribeCmd:
		c.unsubscribe(cmd)
	default:
		panic(fmt.Sprintf("trade: unhandled command %T", cmd))
	}
}

func (c *core) subscribe(cmd *subscribeCmd) {
	ok := c.Exec(func(cl *wsclient.Client) func() {
		body, err := cl.Request(cmd.ctx, cmdSubscribe, encodeTopics(cmd.topics))
		var res subscribeResult
		if err == nil {
			res, err = decodeSubscribeResponse(body)
		}
		return func() {
			if err == nil && !c.Current(cl) {
				err = wsclient.ErrConnectionClosed
			}
			if err != nil {
				cmd.reply <- err
				return
			}
			for _, t := range res.success {
				c.topics[t] = struct{}{}
			}
			if len(res.failed) > 0 {
				cmd.reply <- &SubscribeError{Failed: res.failed}
				return
			}
			cmd.reply <- nil
		}
	})
	if !ok {
		cmd.fail(wsclient.ErrConnectionClosed)
	}
}

func (c *core) unsubscribe(cmd *unsubscribeCmd) {
	ok := c.Exec(func(cl *wsclient.Client) func() {
		body, err := cl.Request(cmd.ctx, cmdUnsubscribe, encodeTopics(cmd.topics))
		var current []TopicType
		if err == nil {
			current, err = decodeUnsubscribeResponse(body)
		}
		return func() {
			if err == nil && !c.Current(cl) {
				err = wsclient.ErrConnectionClosed
			}
			if err != nil {
				cmd.reply <- err
				return
			}
			for _, t := range cmd.topics {
				delete(c.topics, t)
			}
			// the server's remaining set wins
			if current != nil {
				clear(c.topics)
				for _, t := range current {
					c.topics[t] = struct{}{}
				}
			}
			cmd.reply <- nil
		}
	})
	if !ok {
		cmd.fail(wsclient.ErrConnectionClosed)
	}
}

func (c *core) onPush(ev wsclient.Event) {
	if ev.Cmd != cmdNotify {
		c.Logger().Debug("Ignoring push", "cmd", ev.Cmd)
		return
	}
	pe, ok, err := decodePush(ev.Body)
	if err != nil {
		c.Logger().Warn("Dropping undecodable push", "cmd", ev.Cmd, "error", err)
		c.metrics.DecodeError("trade")
		return
	}
	if !ok {
		return
	}
	c.sink.Send(pe)
}

// replay resubscribes the current topic set on a new connection.
func (c *core) replay() func(context.Context, *wsclient.Client) error {
	topics := slices.Collect(maps.Keys(c.topics))
	return func(ctx context.Context, cl *wsclient.Client) error {
		if len(topics) == 0 {
			return nil
		}
		body, err := cl.Request(ctx, cmdSubscribe, encodeTopics(topics))
		if err != nil {
			return err
		}
		res, err := decodeSubscribeResponse(body)
		if err != nil {
			return err
		}
		if len(res.failed) > 0 {
			return &SubscribeError{Failed: res.failed}
		}
		return nil
	}
}
