package engine

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/michaelv2/claude-cortex-core/internal/config"
	"github.com/michaelv2/claude-cortex-core/internal/memerr"
	"github.com/michaelv2/claude-cortex-core/internal/store"
)

// coAccessWindow bounds Hebbian reinforcement: two memories link only when
// accessed within this window of each other.
const coAccessWindow = 5 * time.Minute

// Engine owns the database handle and configuration and implements the
// memory lifecycle: insert, search, reinforcement, linking, consolidation.
// The host creates one at startup and disposes it at shutdown.
type Engine struct {
	db  *store.DB
	cfg config.Config
	log *zap.Logger

	// now is the clock; tests swap it to fast-forward decay.
	now func() time.Time

	mu      sync.Mutex
	project string
	// recent tracks access times for the Hebbian co-access window.
	recent map[int64]time.Time
	// lastRun and lastResult cache the consolidation outcome for the 1 h
	// re-entry guard.
	lastRun    time.Time
	lastResult *ConsolidationResult

	tasks  chan func()
	wg     sync.WaitGroup
	cron   *cron.Cron
	closed bool
}

// New creates an Engine over an open database. The background task worker
// starts immediately; the consolidation schedule starts with Start().
func New(db *store.DB, cfg config.Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		db:      db,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		project: cfg.ResolveProject(),
		recent:  make(map[int64]time.Time),
		tasks:   make(chan func(), 64),
	}
	e.wg.Add(1)
	go e.worker()
	return e
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for fn := range e.tasks {
		fn()
	}
}

// submit queues an asynchronous post-processing task. Failures inside the
// task are the task's own to log; a full queue drops the task with a warning
// rather than blocking the caller.
func (e *Engine) submit(name string, fn func() error) {
	task := func() {
		if err := fn(); err != nil {
			e.log.Warn("background task failed", zap.String("task", name), zap.Error(err))
		}
	}
	select {
	case e.tasks <- task:
	default:
		e.log.Warn("background task queue full, dropping", zap.String("task", name))
	}
}

// Start runs the startup consolidation (skipped when the last run was under
// an hour ago) and schedules the periodic loop.
func (e *Engine) Start() {
	e.submit("startup consolidation", func() error {
		_, err := e.Consolidate(context.Background(), ConsolidateOptions{})
		return err
	})

	e.cron = cron.New()
	e.cron.Schedule(cron.Every(e.cfg.Interval()), cron.FuncJob(func() {
		if _, err := e.Consolidate(context.Background(), ConsolidateOptions{}); err != nil {
			e.log.Warn("scheduled consolidation failed", zap.Error(err))
		}
	}))
	e.cron.Start()
}

// Stop shuts down the scheduler and drains the task queue.
func (e *Engine) Stop() {
	if e.cron != nil {
		e.cron.Stop()
	}
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.tasks)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// Project returns the current project scope.
func (e *Engine) Project() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.project
}

// SetProject changes the current project scope.
func (e *Engine) SetProject(project string) {
	if project == "" {
		project = store.GlobalProject
	}
	e.mu.Lock()
	e.project = project
	e.mu.Unlock()
}

// resolveProject maps an empty request project to the engine's current scope.
func (e *Engine) resolveProject(project string) string {
	if project != "" {
		return project
	}
	return e.Project()
}

func (e *Engine) checkDB() error {
	if e == nil || e.db == nil {
		return memerr.NotInitialized()
	}
	return nil
}

// DB exposes the underlying store for the stats and health surfaces.
func (e *Engine) DB() *store.DB { return e.db }
