package orchestrator

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/client/models"
)

const (
	subscriberBuffer = 16
	publishTimeout   = 100 * time.Millisecond
)

// Subscribe returns a channel receiving every Outcome published after the
// call, and a function that ends the subscription and closes the channel.
// A subscriber that does not drain its channel in time is dropped.
func (o *Orchestrator) Subscribe() (<-chan models.Outcome, func()) {
	ch := make(chan models.Outcome, subscriberBuffer)

	o.subMu.Lock()
	o.subscribers[ch] = struct{}{}
	total := len(o.subscribers)
	o.subMu.Unlock()

	o.logger.Debug(context.Background(), "subscriber added", "subscribers", total)
	return ch, func() { o.removeSubscriber(ch) }
}

func (o *Orchestrator) removeSubscriber(ch chan models.Outcome) {
	o.subMu.Lock()
	_, ok := o.subscribers[ch]
	if ok {
		delete(o.subscribers, ch)
		close(ch)
	}
	o.subMu.Unlock()
}

func (o *Orchestrator) publish(ctx context.Context, out models.Outcome) {
	var slow []chan models.Outcome

	o.subMu.RLock()
	for ch := range o.subscribers {
		select {
		case ch <- out:
		case <-time.After(publishTimeout):
			slow = append(slow, ch)
		}
	}
	o.subMu.RUnlock()

	for _, ch := range slow {
		o.logger.Warn(ctx, "dropping slow subscriber", "request", out.RequestID)
		o.removeSubscriber(ch)
	}
}
