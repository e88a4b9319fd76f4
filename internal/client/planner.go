package client

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/saturday/internal/calendar"
)

// ErrSuperseded completes a queued toggle that was abandoned because an earlier toggle on the
// same date failed and its snapshot was restored.
var ErrSuperseded = errors.New("client: superseded by a failed change on the same date")

// Transport is the server side of the availability calendar.
type Transport interface {
	ListAvailability(ctx context.Context, start, end calendar.Date) ([]Record, error)
	SetAvailability(ctx context.Context, date calendar.Date, state calendar.State) (Record, error)
	ClearAvailability(ctx context.Context, date calendar.Date) error
}

// Failure describes a toggle the server rejected after it was shown optimistically.
type Failure struct {
	Date      calendar.Date
	Attempted calendar.State
	Restored  calendar.State
	Err       error
}

// Notifier surfaces failures to the user.
type Notifier interface {
	NotifyFailure(Failure)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Failure)

// NotifyFailure implements Notifier.
func (f NotifierFunc) NotifyFailure(failure Failure) { f(failure) }

// Cell is one Saturday in the calendar view.
type Cell struct {
	Date  calendar.Date
	State calendar.State
}

// Pending tracks the network effect of one toggle.
type Pending struct {
	Date  calendar.Date
	State calendar.State

	done chan struct{}
	err  error
}

// Done is closed once the toggle has settled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err returns the outcome after Done is closed.
func (p *Pending) Err() error {
	<-p.done
	return p.err
}

// Wait blocks until the toggle settles or ctx ends.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pending) finish(err error) {
	p.err = err
	close(p.done)
}

// snapshot is the inverse patch for one date: the exact shadow entry before a toggle.
type snapshot struct {
	record  Record
	present bool
}

type operation struct {
	ctx     context.Context
	pending *Pending
	before  snapshot
}

// Planner keeps a local shadow of the caller's availability and applies toggles to it before
// the server confirms them. Changes to one date are sent one at a time in the order they were
// made; a failure restores the shadow entry captured before the failing change and abandons
// any changes queued behind it. Dates are independent of each other.
type Planner struct {
	transport Transport
	notifier  Notifier
	now       func() time.Time

	mu     sync.Mutex
	shadow map[calendar.Date]Record
	queues map[calendar.Date][]*operation
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithNotifier sets the failure notifier.
func WithNotifier(n Notifier) PlannerOption {
	return func(p *Planner) {
		if n != nil {
			p.notifier = n
		}
	}
}

// WithPlannerClock overrides the source of provisional timestamps and of today.
func WithPlannerClock(now func() time.Time) PlannerOption {
	return func(p *Planner) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPlanner constructs a planner over transport.
func NewPlanner(transport Transport, opts ...PlannerOption) *Planner {
	p := &Planner{
		transport: transport,
		notifier:  NotifierFunc(func(Failure) {}),
		now:       time.Now,
		shadow:    make(map[calendar.Date]Record),
		queues:    make(map[calendar.Date][]*operation),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load fetches the authoritative records and replaces the shadow with them. Dates with changes
// still in flight keep their optimistic entry until those changes settle.
func (p *Planner) Load(ctx context.Context, start, end calendar.Date) error {
	records, err := p.transport.ListAvailability(ctx, start, end)
	if err != nil {
		return err
	}

	shadow := make(map[calendar.Date]Record, len(records))
	for _, r := range records {
		if r.State.Stored() {
			shadow[r.Date] = r
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for date := range p.queues {
		delete(shadow, date)
		if r, ok := p.shadow[date]; ok {
			shadow[date] = r
		}
	}
	p.shadow = shadow
	return nil
}

// State returns the shadow state for date without touching the network.
func (p *Planner) State(date calendar.Date) calendar.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shadow[date].State
}

// Snapshot returns a copy of the shadow.
func (p *Planner) Snapshot() map[calendar.Date]Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[calendar.Date]Record, len(p.shadow))
	for date, r := range p.shadow {
		out[date] = r
	}
	return out
}

// Calendar returns the upcoming Saturdays with their shadow states.
func (p *Planner) Calendar(months int) []Cell {
	days := calendar.UpcomingSaturdays(p.now(), months)
	p.mu.Lock()
	defer p.mu.Unlock()
	cells := make([]Cell, 0, len(days))
	for _, d := range days {
		cells = append(cells, Cell{Date: d, State: p.shadow[d].State})
	}
	return cells
}

// Toggle advances date to the next state in the cycle. The shadow is updated before Toggle
// returns; the server call runs in the background and its outcome is reported on the returned
// Pending.
func (p *Planner) Toggle(ctx context.Context, date calendar.Date) (*Pending, calendar.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, present := p.shadow[date]
	next := current.State.Next()

	op := &operation{
		ctx:     ctx,
		pending: &Pending{Date: date, State: next, done: make(chan struct{})},
		before:  snapshot{record: current, present: present},
	}

	if next == calendar.StateUnset {
		delete(p.shadow, date)
	} else {
		p.shadow[date] = Record{Date: date, State: next, UpdatedAt: p.now().UTC()}
	}

	// A map entry exists exactly while a drainer owns the date.
	_, running := p.queues[date]
	p.queues[date] = append(p.queues[date], op)
	if !running {
		go p.drain(date)
	}
	return op.pending, next
}

// drain runs the queued operations for date one after another. It exits in the same critical
// section that removes the date from p.queues.
func (p *Planner) drain(date calendar.Date) {
	p.mu.Lock()
	op := p.queues[date][0]
	p.mu.Unlock()

	for {
		confirmed, err := p.send(op)

		p.mu.Lock()
		rest := p.queues[date][1:]
		if err != nil {
			delete(p.queues, date)
			if op.before.present {
				p.shadow[date] = op.before.record
			} else {
				delete(p.shadow, date)
			}
			restored := op.before.record.State
			p.mu.Unlock()

			p.notifier.NotifyFailure(Failure{Date: date, Attempted: op.pending.State, Restored: restored, Err: err})
			op.pending.finish(err)
			for _, later := range rest {
				later.pending.finish(ErrSuperseded)
			}
			return
		}

		if len(rest) == 0 {
			delete(p.queues, date)
			// Adopt the server's record only when nothing newer is waiting to be sent.
			if confirmed.State.Stored() {
				p.shadow[date] = confirmed
			}
			p.mu.Unlock()
			op.pending.finish(nil)
			return
		}
		p.queues[date] = rest
		p.mu.Unlock()
		op.pending.finish(nil)
		op = rest[0]
	}
}

func (p *Planner) send(op *operation) (Record, error) {
	if op.pending.State == calendar.StateUnset {
		return Record{}, p.transport.ClearAvailability(op.ctx, op.pending.Date)
	}
	return p.transport.SetAvailability(op.ctx, op.pending.Date, op.pending.State)
}

// Dates returns the dates present in a shadow snapshot in ascending order.
func Dates(shadow map[calendar.Date]Record) []calendar.Date {
	dates := make([]calendar.Date, 0, len(shadow))
	for d := range shadow {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
