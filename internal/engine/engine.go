// Package engine runs the fixed-rate loop that owns a session. Commands from
// any transport are queued, drained once per tick in arrival order, and
// acknowledged; the resulting state is published as a snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roverscan/rovermap/internal/dispatcher"
	"github.com/roverscan/rovermap/internal/queue"
	"github.com/roverscan/rovermap/internal/rover"
	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/storage"
)

// ErrBusy is returned when the command queue is full.
var ErrBusy = errors.New("command queue full")

// errStaleSave marks an autosave overtaken by a newer save.
var errStaleSave = errors.New("newer save already stored")

const (
	DefaultTickRate  = 30
	DefaultQueueSize = 1024

	persistJob    = "persist"
	persistBuffer = 4
)

// Options configures the loop.
type Options struct {
	TickRate         int
	QueueSize        int
	AutosaveInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.TickRate <= 0 {
		o.TickRate = DefaultTickRate
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	return o
}

// Recorder receives every tick snapshot.
type Recorder interface {
	Record(session.Snapshot) error
}

// CommandRecorder receives the outcome of every command.
type CommandRecorder interface {
	RecordCommand(sessionID string, cmd rover.Command, err error, at time.Time) error
}

type request struct {
	cmd   rover.Command
	reply chan session.Ack
}

// saveRequest is an autosave job. gen orders it against every other save.
type saveRequest struct {
	gen  uint64
	name string
	doc  *session.Document
}

// Engine owns a session and serializes all access to it.
type Engine struct {
	opts  Options
	store storage.Backend
	log   *slog.Logger
	disp  *dispatcher.Dispatcher
	queue *queue.Queue[request]

	// loop state, touched only while mu is held for writing
	mu       sync.RWMutex
	sess     *session.Session
	held     map[rover.Kind]rover.Command
	fresh    map[rover.Kind]bool
	frame    uint64
	snapshot session.Snapshot
	dirty    bool
	lastSave time.Time
	saveGen  uint64

	// persistMu serializes store writes; savedGen is the newest stored save
	persistMu sync.Mutex
	savedGen  uint64

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan session.Snapshot

	recorders []Recorder
	now       func() time.Time
}

// New builds an engine around sess. store may be nil, in which case
// SaveMap fails and autosave is off.
func New(sess *session.Session, store storage.Backend, disp *dispatcher.Dispatcher, log *slog.Logger, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		opts:  opts,
		store: store,
		log:   log,
		disp:  disp,
		queue: queue.NewBounded[request](opts.QueueSize),
		sess:  sess,
		held:  make(map[rover.Kind]rover.Command),
		fresh: make(map[rover.Kind]bool),
		subs:  make(map[int]chan session.Snapshot),
		now:   time.Now,
	}
	e.snapshot = sess.Snapshot()
	e.lastSave = e.now()
	e.registerHandlers()
	disp.ObserveQueue("commands", e.queue.Len)
	return e
}

// AddRecorder registers a telemetry sink. Call before Run.
func (e *Engine) AddRecorder(r Recorder) {
	e.recorders = append(e.recorders, r)
}

// Defaults returns the magnitudes transports fill into commands that omit
// one. Commands reach the engine as given; a zero magnitude is rejected.
func (e *Engine) Defaults() rover.Defaults {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sess.Config().Defaults()
}

// Submit queues cmd and waits for its acknowledgement, which arrives on the
// next tick.
func (e *Engine) Submit(ctx context.Context, cmd rover.Command) (session.Ack, error) {
	reply := make(chan session.Ack, 1)
	if err := e.push(cmd, reply); err != nil {
		return session.Ack{Success: false, Message: err.Error()}, err
	}
	select {
	case ack := <-reply:
		return ack, nil
	case <-ctx.Done():
		return session.Ack{}, ctx.Err()
	}
}

// Enqueue queues cmd without waiting for the acknowledgement.
func (e *Engine) Enqueue(cmd rover.Command) error {
	return e.push(cmd, nil)
}

func (e *Engine) push(cmd rover.Command, reply chan session.Ack) error {
	if err := e.queue.TryPush(request{cmd: cmd, reply: reply}); err != nil {
		e.log.Warn("Dropping command", "kind", cmd.Kind, "queued", e.queue.Len())
		return fmt.Errorf("%w: %s", ErrBusy, cmd.Kind)
	}
	return nil
}

// Pending returns the number of queued commands.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// Snapshot returns the state published by the last tick.
func (e *Engine) Snapshot() session.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// Document captures the live session for export.
func (e *Engine) Document() (*session.Document, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sess.Document()
}

// Subscribe returns a channel receiving every published snapshot. Slow
// subscribers miss snapshots rather than stall the loop. The returned func
// unsubscribes and closes the channel.
func (e *Engine) Subscribe(buffer int) (<-chan session.Snapshot, func()) {
	ch := make(chan session.Snapshot, max(buffer, 1))

	e.subMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subs, id)
			e.subMu.Unlock()
			close(ch)
		})
	}
}

// Run steps the engine at the configured rate until ctx is done. On the
// way out it closes the dispatcher, waiting for queued autosaves, and with
// autosave on saves the session once more.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(e.opts.TickRate))
	defer ticker.Stop()

	e.log.Info("Engine started", "tickRate", e.opts.TickRate, "autosave", e.opts.AutosaveInterval)
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case <-ticker.C:
			e.Step(ctx)
		}
	}
}

func (e *Engine) shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	// unanswered commands get a failed ack
	for _, req := range e.queue.Drain() {
		e.reply(req, session.Ack{Success: false, Message: "engine stopped", Pose: e.sess.LivePose()})
	}
	// pending autosaves finish before the final save and before the
	// caller closes the store
	e.disp.Close()
	if e.opts.AutosaveInterval > 0 && e.dirty && e.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := e.save(ctx, ""); err != nil {
			e.log.Error("Final save failed", "error", err)
		}
	}
	e.log.Info("Engine stopped", "frames", e.frame)
}

// Step runs one tick: queued commands in arrival order, then held
// commands, then the session frame update, then publication.
func (e *Engine) Step(ctx context.Context) session.Snapshot {
	e.mu.Lock()

	for _, req := range e.queue.Drain() {
		e.reply(req, e.handle(ctx, req.cmd))
	}
	for _, k := range rover.Kinds {
		cmd, ok := e.held[k]
		if !ok || e.fresh[k] {
			continue
		}
		if _, err := e.sess.Move(cmd); err != nil {
			e.log.Warn("Held command failed", "kind", cmd.Kind, "error", err)
			delete(e.held, k)
			continue
		}
		e.dirty = true
	}
	clear(e.fresh)

	res, err := e.sess.Tick()
	if err != nil {
		e.log.Error("Tick failed", "frame", e.frame, "error", err)
	}
	if res.NewlyScanned > 0 {
		e.dirty = true
	}
	e.frame++
	e.maybeAutosave()

	snap := e.sess.Snapshot()
	snap.Frame = e.frame
	e.snapshot = snap
	e.mu.Unlock()

	e.publish(snap)
	return snap
}

func (e *Engine) reply(req request, ack session.Ack) {
	if req.reply != nil {
		req.reply <- ack
	}
}

// handle dispatches one command and builds its acknowledgement.
func (e *Engine) handle(ctx context.Context, cmd rover.Command) session.Ack {
	result, err := e.disp.Dispatch(dispatcher.Event{
		Name:      string(cmd.Kind),
		Command:   cmd,
		Payload:   ctx,
		Timestamp: e.now(),
	})
	e.recordCommand(cmd, err)

	ack := session.Ack{Success: err == nil, Pose: e.sess.LivePose()}
	switch {
	case err != nil:
		ack.Message = err.Error()
	case result != nil:
		ack.Message = fmt.Sprint(result)
	default:
		ack.Message = "ok"
	}
	return ack
}

func (e *Engine) recordCommand(cmd rover.Command, err error) {
	id := e.sess.ID()
	for _, r := range e.recorders {
		if cr, ok := r.(CommandRecorder); ok {
			if rerr := cr.RecordCommand(id, cmd, err, e.now()); rerr != nil {
				e.log.Debug("Command telemetry failed", "error", rerr)
			}
		}
	}
}

func (e *Engine) publish(snap session.Snapshot) {
	for _, r := range e.recorders {
		if err := r.Record(snap); err != nil {
			e.log.Debug("Telemetry write failed", "error", err)
		}
	}

	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// maybeAutosave hands a document to the buffered persist handler once the
// interval has passed with unsaved changes.
func (e *Engine) maybeAutosave() {
	if e.opts.AutosaveInterval <= 0 || e.store == nil || !e.dirty {
		return
	}
	now := e.now()
	if now.Sub(e.lastSave) < e.opts.AutosaveInterval {
		return
	}
	doc, err := e.sess.Document()
	if err != nil {
		e.log.Error("Autosave snapshot failed", "error", err)
		return
	}
	name := e.sess.Name()
	if name == "" {
		name = storage.DefaultName(now)
		e.sess.SetName(name)
	}
	e.saveGen++
	job := saveRequest{gen: e.saveGen, name: name, doc: doc}
	if _, err := e.disp.Dispatch(dispatcher.Event{Name: persistJob, Payload: job, Timestamp: now}); err != nil {
		e.log.Warn("Autosave skipped", "error", err)
		return
	}
	e.lastSave = now
	e.dirty = false
}

// save stores the session synchronously under name, the session name, or
// a generated one, and adopts the stored name.
func (e *Engine) save(ctx context.Context, name string) (string, error) {
	if e.store == nil {
		return "", errors.New("no map storage configured")
	}
	doc, err := e.sess.Document()
	if err != nil {
		return "", err
	}
	if name == "" {
		name = e.sess.Name()
	}
	e.saveGen++
	stored, err := e.persist(ctx, e.saveGen, name, doc)
	if err != nil {
		return "", err
	}
	e.sess.SetName(stored)
	e.lastSave = e.now()
	e.dirty = false
	e.log.Info("Map saved", "name", stored)
	return stored, nil
}

// persist writes doc unless a newer save already reached the store, in
// which case it returns errStaleSave. Both SaveMap and the autosave worker
// write through it.
func (e *Engine) persist(ctx context.Context, gen uint64, name string, doc *session.Document) (stored string, err error) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	if gen <= e.savedGen {
		return "", errStaleSave
	}
	stored, err = e.store.Save(ctx, name, doc)
	if err != nil {
		return "", err
	}
	e.savedGen = gen
	return stored, nil
}
