package dispatch

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/xdimtech/go-wsevent/pkg/metrics"
	"github.com/xdimtech/go-wsevent/pkg/protocol/envelope"
)

// Listener receives the payload of a routed envelope.
type Listener func(payload any) error

// ListenerID identifies one registration made with On.
type ListenerID uint64

type registration struct {
	id ListenerID
	fn Listener
}

// Dispatcher keeps an ordered listener list per event name and routes
// payloads to them.
type Dispatcher struct {
	mu        sync.RWMutex
	nextID    ListenerID
	listeners map[string][]registration

	log     *log.Entry
	metrics *metrics.Metrics
}

type Option func(*Dispatcher)

func WithLogger(logger *log.Entry) Option {
	return func(d *Dispatcher) {
		d.log = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		listeners: make(map[string][]registration),
		log:       log.WithField("component", "dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// On appends fn to the listeners of event. Registering the same function
// twice delivers twice; each call returns its own id.
func (d *Dispatcher) On(event string, fn Listener) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.listeners[event] = append(d.listeners[event], registration{id: id, fn: fn})
	d.log.Debugf("Registered listener %d for event: %s", id, event)
	return id
}

// Off removes the registration id from event. Unknown ids are ignored.
func (d *Dispatcher) Off(event string, id ListenerID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.listeners[event]
	_, idx, ok := lo.FindIndexOf(list, func(r registration) bool { return r.id == id })
	if !ok {
		return
	}
	list = slices.Delete(list, idx, idx+1)
	if len(list) == 0 {
		delete(d.listeners, event)
		return
	}
	d.listeners[event] = list
}

// OffAll removes every listener of event.
func (d *Dispatcher) OffAll(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.listeners, event)
}

// Len returns the number of listeners registered for event.
func (d *Dispatcher) Len(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.listeners[event])
}

// Events returns the event names with at least one listener, sorted.
func (d *Dispatcher) Events() []string {
	d.mu.RLock()
	events := lo.Keys(d.listeners)
	d.mu.RUnlock()

	sort.Strings(events)
	return events
}

// Route calls every listener of event in registration order. The listener
// list is snapshotted first, so On/Off from inside a listener apply to the
// next Route. A failing or panicking listener does not stop the others; the
// failures are logged and returned together as *ListenerError values.
func (d *Dispatcher) Route(event string, payload any) error {
	d.mu.RLock()
	snapshot := slices.Clone(d.listeners[event])
	d.mu.RUnlock()

	if len(snapshot) == 0 {
		d.log.Debugf("No listeners for event: %s", event)
		d.metrics.Dropped(metrics.DropNoListeners)
		return nil
	}
	d.metrics.Routed()

	var errs error
	for _, r := range snapshot {
		if err := d.invoke(event, r, payload); err != nil {
			d.metrics.ListenerFailed()
			d.log.WithFields(log.Fields{
				"event":    event,
				"listener": r.id,
			}).Errorf("Listener failed: %v", err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (d *Dispatcher) invoke(event string, r registration, payload any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &ListenerError{Event: event, Listener: r.id, Panicked: true, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	if err := r.fn(payload); err != nil {
		return &ListenerError{Event: event, Listener: r.id, Err: err}
	}
	return nil
}

// Typed adapts fn to a Listener by binding the payload into a T first.
func Typed[T any](fn func(T) error) Listener {
	return func(payload any) error {
		var v T
		if err := envelope.BindPayload(payload, &v); err != nil {
			return err
		}
		return fn(v)
	}
}
