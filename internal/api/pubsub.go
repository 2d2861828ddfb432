package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"selfquiz/internal/domain"
)

// Notification is the envelope pushed to display surfaces over redis pubsub.
type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PublishAttemptRecorded notifies listening views (home, analytics) that the
// history changed and stats should be re-read.
func (a *API) PublishAttemptRecorded(ctx context.Context, e domain.EventAttemptRecorded) error {
	return a.publishNotification(ctx, a.channel("attempts"), e.Name(), e.Attempt)
}

// PublishWrongAnswerLogged notifies the Boost view, both on the global channel
// and on a per-topic channel so topic widgets can subscribe narrowly.
func (a *API) PublishWrongAnswerLogged(ctx context.Context, e domain.EventWrongAnswerLogged) error {
	channels := []string{
		a.channel("wrong-answers"),
		a.channel("topic:" + e.Record.Topic),
	}

	var eg errgroup.Group
	for _, ch := range channels {
		ch := ch
		eg.Go(func() error {
			return a.publishNotification(ctx, ch, e.Name(), e.Record)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}

func (a *API) channel(suffix string) string {
	return fmt.Sprintf("%s:%s", a.prefix, suffix)
}
