// Package dispatcher holds the host's "safe to suspend" callback and fires
// it once every outstanding request has resolved.
package dispatcher

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/dmitrijs2005/gophshare/internal/logging"
)

type Dispatcher struct {
	mu          sync.Mutex
	outstanding int
	callback    *callback
	logger      logging.Logger
}

type callback struct {
	fn func()
}

func New(logger logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{logger: logger.With("module", "dispatcher")}
}

// Register stores fn. When nothing is outstanding fn runs immediately and
// is not stored. A second registration while one is pending fails with
// common.ErrCallbackPending.
func (d *Dispatcher) Register(fn func()) error {
	_, err := d.RegisterCancelable(fn)
	return err
}

// RegisterCancelable is Register that also returns a function releasing the
// slot. Calling it after fn fired, or after another callback took the slot,
// does nothing.
func (d *Dispatcher) RegisterCancelable(fn func()) (unregister func(), err error) {
	d.mu.Lock()
	if d.callback != nil {
		d.mu.Unlock()
		return nil, common.ErrCallbackPending
	}
	if d.outstanding == 0 {
		d.mu.Unlock()
		fn()
		return func() {}, nil
	}
	cb := &callback{fn: fn}
	d.callback = cb
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.callback == cb {
			d.callback = nil
			d.logger.Debug(context.Background(), "completion callback withdrawn")
		}
	}, nil
}

// Begin records one more outstanding request.
func (d *Dispatcher) Begin() {
	d.mu.Lock()
	d.outstanding++
	d.mu.Unlock()
}

// MarkRequestDone records one resolved request. When the count reaches zero
// the stored callback is taken and invoked outside the lock.
func (d *Dispatcher) MarkRequestDone() {
	d.mu.Lock()
	if d.outstanding == 0 {
		d.mu.Unlock()
		d.logger.Warn(context.Background(), "request done with nothing outstanding")
		return
	}
	d.outstanding--
	var cb *callback
	if d.outstanding == 0 {
		cb = d.callback
		d.callback = nil
	}
	d.mu.Unlock()

	if cb != nil {
		d.logger.Debug(context.Background(), "all requests resolved, firing completion callback")
		cb.fn()
	}
}

func (d *Dispatcher) Outstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outstanding
}

// Pending reports whether a callback is waiting.
func (d *Dispatcher) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callback != nil
}
