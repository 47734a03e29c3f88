package tasksync

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"tasklog/app/models"
	"tasklog/app/services"
)

// ErrClosed is returned by operations on a closed Controller.
var ErrClosed = errors.New("tasksync: controller closed")

// Options configures a Controller.
type Options struct {
	// EditDebounce delays persisting text and remarks edits so that rapid
	// edits to one field are sent as a single update. Zero sends every edit.
	EditDebounce time.Duration

	// Origin is this client's id. Invalidations carrying it are ignored.
	Origin string

	Logger *slog.Logger
}

type field int

const (
	fieldText field = iota
	fieldRemarks
)

type editKey struct {
	id    string
	field field
}

type pendingEdit struct {
	ctx   context.Context
	value string
	timer *time.Timer
}

// Controller owns the client's State and the persistence calls that follow
// local mutations. It is safe for concurrent use.
type Controller struct {
	store    services.Store
	debounce time.Duration
	origin   string
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	closed  bool
	clock   uint64                   // last sequence number handed out
	seq     map[string]uint64        // latest mutation or issued call per record
	loadGen uint64                   // generation of the latest reload
	tails   map[string]chan struct{} // last in-flight call per record
	pending map[editKey]*pendingEdit // debounced edits not yet sent
	subs    map[int]func(State)
	nextSub int

	// notifyMu is taken before mu is released so subscribers observe states in
	// dispatch order.
	notifyMu sync.Mutex

	wg sync.WaitGroup
}

// New creates a Controller over store. Call Load to fetch the initial list.
func New(store services.Store, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:    store,
		debounce: opts.EditDebounce,
		origin:   opts.Origin,
		logger:   logger,
		seq:      make(map[string]uint64),
		tails:    make(map[string]chan struct{}),
		pending:  make(map[editKey]*pendingEdit),
		subs:     make(map[int]func(State)),
	}
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshot(c.state)
}

func snapshot(s State) State {
	s.Tasks = slices.Clone(s.Tasks)
	return s
}

// Subscribe registers fn to receive every new state. fn runs on the goroutine
// that changed the state and must neither block nor call Controller methods.
// The returned func unsubscribes.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// commitLocked applies actions, releases c.mu and notifies subscribers.
// c.mu must be held.
func (c *Controller) commitLocked(actions ...Action) {
	for _, a := range actions {
		c.state = Reduce(c.state, a)
	}
	state := c.state
	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}

	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	for _, fn := range subs {
		fn(snapshot(state))
	}
}

func (c *Controller) dispatch(a Action) {
	c.mu.Lock()
	c.commitLocked(a)
}

// Load replaces the task list with the store's. Edits not yet sent are
// dropped. If a newer Load starts before this one returns, this one's result
// is discarded. Tasks changed locally while the load was in flight keep their
// local version.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	c.loadGen++
	gen, start := c.loadGen, c.clock
	c.dropPendingLocked(func(editKey) bool { return true })
	c.commitLocked(LoadStarted{})

	tasks, err := c.store.ListTasks(ctx)

	c.mu.Lock()
	if gen != c.loadGen {
		c.mu.Unlock()
		return err
	}
	if err != nil {
		c.commitLocked(LoadFailed{Err: err})
		c.logger.Error("failed to load tasks", "err", err)
		return err
	}
	c.commitLocked(LoadFinished{Tasks: c.rebaseLocked(tasks, start)})
	return nil
}

// rebaseLocked overlays local mutations made after sequence start onto
// fetched.
func (c *Controller) rebaseLocked(fetched []models.Task, start uint64) []models.Task {
	local := make(map[string]models.Task, len(c.state.Tasks))
	for _, t := range c.state.Tasks {
		local[t.ID] = t
	}

	out := make([]models.Task, 0, len(fetched))
	seen := make(map[string]bool, len(fetched))
	for _, t := range fetched {
		seen[t.ID] = true
		if c.seq[t.ID] <= start {
			out = append(out, t)
		} else if lt, ok := local[t.ID]; ok {
			out = append(out, lt)
		}
	}
	for _, t := range c.state.Tasks {
		if !seen[t.ID] && c.seq[t.ID] > start {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b models.Task) int {
		if models.Less(a, b) {
			return -1
		}
		if models.Less(b, a) {
			return 1
		}
		return 0
	})
	return out
}

// SetDraft replaces the scratch text and remarks of the next task to add.
func (c *Controller) SetDraft(text, remarks string) {
	c.dispatch(DraftEdited{Text: text, Remarks: remarks})
}

// Add creates a task from the draft and inserts it into the list. A draft
// with blank text is ignored and returns (nil, nil). On failure the list is
// unchanged, the draft is kept and State.Notice is set.
func (c *Controller) Add(ctx context.Context) (*models.Task, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	text, remarks := c.state.DraftText, c.state.DraftRemarks
	c.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	task, err := c.store.CreateTask(ctx, text, remarks)
	if err != nil {
		c.logger.Error("failed to add task", "err", err)
		c.dispatch(AddFailed{Err: err})
		return nil, err
	}

	c.mu.Lock()
	c.bumpLocked(task.ID)
	c.commitLocked(TaskAdded{Task: *task})
	return task, nil
}

// Toggle flips a task's completion flag and persists it.
func (c *Controller) Toggle(ctx context.Context, id string) error {
	c.mu.Lock()
	i, err := c.lookupLocked(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	completed := !c.state.Tasks[i].Completed
	c.bumpLocked(id)
	c.persistLocked(ctx, id, "toggle", func(ctx context.Context) (*models.Task, error) {
		return c.store.UpdateTask(ctx, id, models.SetCompleted(completed))
	})
	c.commitLocked(CompletionToggled{ID: id})
	return nil
}

// EditText sets a task's text and persists it, subject to EditDebounce.
func (c *Controller) EditText(ctx context.Context, id, text string) error {
	return c.edit(ctx, editKey{id: id, field: fieldText}, text)
}

// EditRemarks sets a task's remarks and persists them, subject to EditDebounce.
func (c *Controller) EditRemarks(ctx context.Context, id, remarks string) error {
	return c.edit(ctx, editKey{id: id, field: fieldRemarks}, remarks)
}

func (c *Controller) edit(ctx context.Context, key editKey, value string) error {
	c.mu.Lock()
	if _, err := c.lookupLocked(key.id); err != nil {
		c.mu.Unlock()
		return err
	}
	c.bumpLocked(key.id)

	pe := &pendingEdit{ctx: ctx, value: value}
	if c.debounce <= 0 {
		c.sendEditLocked(key, pe)
	} else {
		if prev := c.pending[key]; prev != nil {
			prev.timer.Stop()
		}
		c.pending[key] = pe
		pe.timer = time.AfterFunc(c.debounce, func() { c.fire(key, pe) })
	}

	if key.field == fieldText {
		c.commitLocked(TextEdited{ID: key.id, Text: value})
	} else {
		c.commitLocked(RemarksEdited{ID: key.id, Remarks: value})
	}
	return nil
}

func (c *Controller) fire(key editKey, pe *pendingEdit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[key] != pe {
		return
	}
	delete(c.pending, key)
	c.sendEditLocked(key, pe)
}

func (c *Controller) sendEditLocked(key editKey, pe *pendingEdit) {
	patch, op := models.SetText(pe.value), "edit text"
	if key.field == fieldRemarks {
		patch, op = models.SetRemarks(pe.value), "edit remarks"
	}
	c.persistLocked(pe.ctx, key.id, op, func(ctx context.Context) (*models.Task, error) {
		return c.store.UpdateTask(ctx, key.id, patch)
	})
}

// Flush sends every debounced edit now.
func (c *Controller) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *Controller) flushLocked() {
	for key, pe := range c.pending {
		pe.timer.Stop()
		delete(c.pending, key)
		c.sendEditLocked(key, pe)
	}
}

// Delete removes a task and persists the removal. Pending edits to the task
// are dropped.
func (c *Controller) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	if _, err := c.lookupLocked(id); err != nil {
		c.mu.Unlock()
		return err
	}
	c.bumpLocked(id)
	c.dropPendingLocked(func(k editKey) bool { return k.id == id })
	c.persistLocked(ctx, id, "delete", func(ctx context.Context) (*models.Task, error) {
		return nil, c.store.DeleteTask(ctx, id)
	})
	c.commitLocked(TaskRemoved{ID: id})
	return nil
}

// DismissNotice clears State.Notice.
func (c *Controller) DismissNotice() {
	c.dispatch(NoticeDismissed{})
}

// Invalidated records that the store changed. Changes made by this client,
// identified by origin, are ignored.
func (c *Controller) Invalidated(origin string) {
	if origin != "" && origin == c.origin {
		return
	}
	c.dispatch(StoreInvalidated{})
}

// Wait blocks until every issued persistence call, and any reload it
// triggered, has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close sends pending edits, waits for in-flight calls and rejects further
// mutations.
func (c *Controller) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.flushLocked()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Controller) lookupLocked(id string) (int, error) {
	if c.closed {
		return -1, ErrClosed
	}
	i := indexOf(c.state.Tasks, id)
	if i < 0 {
		return -1, services.ErrNotFound
	}
	return i, nil
}

func (c *Controller) bumpLocked(id string) {
	c.clock++
	c.seq[id] = c.clock
}

func (c *Controller) dropPendingLocked(match func(editKey) bool) {
	for key, pe := range c.pending {
		if match(key) {
			pe.timer.Stop()
			delete(c.pending, key)
		}
	}
}

func (c *Controller) hasPendingLocked(id string) bool {
	return c.pending[editKey{id, fieldText}] != nil || c.pending[editKey{id, fieldRemarks}] != nil
}

// persistLocked runs call in the background once earlier calls for the same
// record have finished. A success is merged into the view if no newer local
// mutation of the record exists; a failure reloads the list.
func (c *Controller) persistLocked(ctx context.Context, id, op string, call func(context.Context) (*models.Task, error)) {
	// Only the most recently issued call for a record may confirm it.
	c.bumpLocked(id)
	seq := c.seq[id]
	prev := c.tails[id]
	done := make(chan struct{})
	c.tails[id] = done
	ctx = context.WithoutCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}

		task, err := call(ctx)

		c.mu.Lock()
		if c.tails[id] == done {
			delete(c.tails, id)
		}
		if err != nil {
			c.mu.Unlock()
			c.logger.Warn("persist failed, reloading", "op", op, "id", id, "err", err)
			_ = c.Load(ctx)
			return
		}
		if task == nil || c.seq[id] != seq || c.hasPendingLocked(id) {
			c.mu.Unlock()
			return
		}
		c.commitLocked(TaskConfirmed{Task: *task})
	}()
}
