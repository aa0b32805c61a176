package board

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/internal/gateway"
	"taskboard/internal/models"
)

// Op is the handle of an asynchronous controller action.
type Op struct {
	done    chan struct{}
	err     error
	skipped bool
	task    *models.Task
}

func newOp() *Op {
	return &Op{done: make(chan struct{})}
}

func finishedOp(err error, skipped bool) *Op {
	o := &Op{done: make(chan struct{}), err: err, skipped: skipped}
	close(o.done)
	return o
}

func (o *Op) finish(err error) {
	o.err = err
	close(o.done)
}

func (o *Op) Done() <-chan struct{} { return o.done }

// Wait blocks until the action has been reconciled with the store.
func (o *Op) Wait() error {
	<-o.done
	return o.err
}

// Skipped reports whether the action was a no-op that never reached the
// gateway, such as a drop onto the card's own column.
func (o *Op) Skipped() bool { return o.skipped }

// Task returns the server's copy of a task added by a finished Create.
func (o *Op) Task() (models.Task, bool) {
	select {
	case <-o.done:
	default:
		return models.Task{}, false
	}
	if o.task == nil {
		return models.Task{}, false
	}
	return *o.task, true
}

// Location is a card slot on the rendered (filtered) board.
type Location struct {
	Column models.Status
	Index  int
}

type Options struct {
	Logger  *log.Logger
	Metrics *Metrics
	// Now is used to validate due dates on creation.
	Now func() time.Time
	// OnSessionExpired is called once when the remote API refuses the
	// session.
	OnSessionExpired func()
}

// Controller turns user intents into store mutations and gateway calls.
// It never blocks its caller on the network: each intent returns an Op.
type Controller struct {
	store   *Store
	gw      gateway.Gateway
	logger  *log.Logger
	metrics *Metrics
	now     func() time.Time
	expired func()

	mu       sync.Mutex
	filter   FilterSpec
	dragging bool
	source   Location
	ended    bool

	wg sync.WaitGroup
}

func NewController(store *Store, gw gateway.Gateway, opts Options) *Controller {
	c := &Controller{
		store:   store,
		gw:      gw,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
		expired: opts.OnSessionExpired,
	}
	if c.logger == nil {
		c.logger = log.StandardLogger()
	}
	if c.metrics == nil {
		c.metrics = NewMetrics()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func (c *Controller) Store() *Store { return c.store }

func (c *Controller) Metrics() *Metrics { return c.metrics }

// Wait blocks until every in-flight action has finished.
func (c *Controller) Wait() { c.wg.Wait() }

// Refresh reloads the whole board. Only the newest refresh may update the
// store; results of older ones are discarded with ErrStaleResponse.
func (c *Controller) Refresh(ctx context.Context, teamID *string) *Op {
	if err := c.checkSession(); err != nil {
		return finishedOp(err, false)
	}

	ticket := c.store.BeginLoad()
	return c.launch(func() error {
		tasks, err := c.gw.List(ctx, teamID)
		if err != nil {
			if c.sessionEnded(err) {
				return err
			}
			c.metrics.RecordFailure()
			if ferr := c.store.LoadFailed(ticket, loadMessage(err)); errors.Is(ferr, ErrStaleResponse) {
				c.discardStale(ticket)
				return ferr
			}
			c.logger.WithFields(log.Fields{"op": gateway.OpList, "error": err}).Warn("board.refresh.failed")
			return err
		}

		if err := c.store.LoadSucceeded(ticket, tasks); err != nil {
			if errors.Is(err, ErrStaleResponse) {
				c.discardStale(ticket)
				return err
			}
			c.logger.WithFields(log.Fields{"op": gateway.OpList, "error": err}).Error("board.refresh.inconsistent")
			return err
		}

		c.logger.WithFields(log.Fields{"tasks": len(tasks), "ticket": ticket}).Debug("board.refresh.loaded")
		return nil
	})
}

// Create validates in and, if it passes, sends it to the remote API.
// Validation errors are returned directly and nothing is sent.
func (c *Controller) Create(ctx context.Context, in models.NewTask) (*Op, error) {
	if err := in.Validate(c.now()); err != nil {
		return nil, err
	}
	if err := c.checkSession(); err != nil {
		return nil, err
	}

	op := newOp()
	c.run(op, func() error {
		task, err := c.gw.Create(ctx, in)
		if err != nil {
			return c.fail(gateway.OpCreate, err)
		}
		if err := c.store.ApplyCreated(task); err != nil {
			c.store.Fail(err.Error())
			return err
		}
		op.task = &task
		return nil
	})
	return op, nil
}

// Update edits a task and applies the server's copy once confirmed.
func (c *Controller) Update(ctx context.Context, id string, patch models.TaskPatch) *Op {
	if err := c.checkSession(); err != nil {
		return finishedOp(err, false)
	}

	return c.launch(func() error {
		task, err := c.gw.Update(ctx, id, patch)
		if err != nil {
			return c.fail(gateway.OpUpdate, err)
		}
		return c.reconcile(task)
	})
}

func (c *Controller) Delete(ctx context.Context, id string) *Op {
	if err := c.checkSession(); err != nil {
		return finishedOp(err, false)
	}

	return c.launch(func() error {
		if err := c.gw.Delete(ctx, id); err != nil {
			return c.fail(gateway.OpDelete, err)
		}
		c.store.ApplyDeleted(id)
		return nil
	})
}

func (c *Controller) SetFilter(f FilterSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = f
}

func (c *Controller) Filter() FilterSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// PickUp starts a drag gesture from a slot of the rendered board.
func (c *Controller) PickUp(src Location) error {
	if !src.Column.Valid() {
		return ErrUnknownColumn
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dragging {
		return ErrDragInProgress
	}
	c.dragging = true
	c.source = src
	return nil
}

// Dragging returns the source of the gesture in progress, if any.
func (c *Controller) Dragging() (Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source, c.dragging
}

func (c *Controller) CancelDrag() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dragging = false
}

// Drop ends the drag gesture. A nil dest means the card was released outside
// every column. Dropping outside or onto the source column changes nothing.
// Otherwise the card moves at once and the remote update runs in the
// background; if it fails the card is put back where it was.
func (c *Controller) Drop(ctx context.Context, dest *Location) (*Op, error) {
	c.mu.Lock()
	if !c.dragging {
		c.mu.Unlock()
		return nil, ErrNotDragging
	}
	src, filter := c.source, c.filter
	c.dragging = false
	c.mu.Unlock()

	if dest == nil || dest.Column == src.Column {
		return finishedOp(nil, true), nil
	}
	if !dest.Column.Valid() {
		return nil, ErrUnknownColumn
	}
	if err := c.checkSession(); err != nil {
		return nil, err
	}

	// The index refers to the rendered list, which is the filtered one.
	visible := Apply(c.store.Columns(), filter)[src.Column]
	if src.Index < 0 || src.Index >= len(visible) {
		return nil, ErrNoSuchCard
	}
	card := visible[src.Index]

	prior, ok := c.store.MoveLocally(card.ID, src.Column, dest.Column)
	if !ok {
		return nil, ErrNoSuchCard
	}
	c.metrics.RecordMove()

	to := dest.Column
	c.logger.WithFields(log.Fields{"task_id": card.ID, "from": src.Column, "to": to}).Debug("board.move.optimistic")

	return c.launch(func() error {
		task, err := c.gw.Update(ctx, card.ID, models.StatusPatch(to))
		if err != nil {
			if c.store.Rollback(prior) {
				c.metrics.RecordRollback()
				c.logger.WithFields(log.Fields{"task_id": card.ID, "column": prior.Column, "error": err}).Warn("board.move.rolled_back")
			}
			return c.fail(gateway.OpUpdate, err)
		}
		err = c.reconcile(task)
		c.store.Settle(prior)
		return err
	}), nil
}

// View is what the rendering layer draws.
type View struct {
	Columns   models.Columns
	Filter    FilterSpec
	Emptiness Emptiness
	Loading   bool
	Error     string
	Terminal  bool
}

func (c *Controller) View() View {
	state := c.store.Snapshot()
	filter := c.Filter()
	filtered := Apply(state.Columns, filter)

	return View{
		Columns:   filtered,
		Filter:    filter,
		Emptiness: EmptinessOf(state.Columns, filtered),
		Loading:   state.Loading,
		Error:     state.Error,
		Terminal:  state.Terminal,
	}
}

// SessionExpired reports whether the remote API has refused the session.
func (c *Controller) SessionExpired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

func (c *Controller) launch(fn func() error) *Op {
	op := newOp()
	c.run(op, fn)
	return op
}

func (c *Controller) run(op *Op, fn func() error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		op.finish(fn())
	}()
}

func (c *Controller) reconcile(task models.Task) error {
	if err := c.store.ApplyUpdated(task); err != nil {
		c.store.Fail(err.Error())
		c.logger.WithFields(log.Fields{"task_id": task.ID, "error": err}).Error("board.reconcile.inconsistent")
		return err
	}
	c.metrics.RecordReconciled()
	return nil
}

// fail routes a gateway error into the store and returns it.
func (c *Controller) fail(op gateway.Op, err error) error {
	if c.sessionEnded(err) {
		return err
	}
	c.metrics.RecordFailure()
	c.store.Fail(gateway.Message(err))
	c.logger.WithFields(log.Fields{"op": op, "error": err}).Warn("board.gateway.failed")
	return err
}

// sessionEnded handles an authorization failure. It reports whether err was
// one.
func (c *Controller) sessionEnded(err error) bool {
	if !errors.Is(err, gateway.ErrSessionExpired) {
		return false
	}

	c.mu.Lock()
	first := !c.ended
	c.ended = true
	c.mu.Unlock()

	c.store.Expire(gateway.SessionExpiredMessage)
	if first {
		c.logger.Warn("board.session.expired")
		if c.expired != nil {
			c.expired()
		}
	}
	return true
}

func (c *Controller) checkSession() error {
	if c.SessionExpired() {
		return gateway.ErrSessionExpired
	}
	return nil
}

func (c *Controller) discardStale(ticket uint64) {
	c.metrics.RecordStale()
	c.logger.WithField("ticket", ticket).Debug("board.refresh.stale_discarded")
}

func loadMessage(err error) string {
	if msg := gateway.Message(err); msg != "" {
		return msg
	}
	return "Error fetching tasks"
}
