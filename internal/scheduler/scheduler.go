package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/ec-store-sync/internal/reconcile"
)

const (
	TaskProduct     = "product"
	TaskCart        = "cart"
	TaskHealthCheck = "healthcheck"
)

var (
	// ErrAlreadyRunning is returned to a manual trigger when the task has a
	// run in flight. Scheduled fires skip silently instead.
	ErrAlreadyRunning = errors.New("task is already running")
	ErrUnknownTask    = errors.New("unknown task")
)

// ProductPipeline is the product reconciler surface the scheduler drives.
type ProductPipeline interface {
	Run(ctx context.Context, opts reconcile.Options) (*reconcile.Result, error)
	Validate(ctx context.Context) (*reconcile.Validation, error)
	Stats(ctx context.Context) (*reconcile.Stats, error)
}

// CartPipeline is the cart reconciler surface the scheduler drives.
type CartPipeline interface {
	Run(ctx context.Context, opts reconcile.Options) (*reconcile.Result, error)
	Stats(ctx context.Context) (*reconcile.Stats, error)
}

// Config holds the cron specs and run parameters. All specs are standard
// five-field cron expressions.
type Config struct {
	ProductSpec     string
	CartSpec        string
	HealthCheckSpec string
	Timezone        string
	BatchSize       int
}

// TaskStatus describes one task for the status endpoint.
type TaskStatus struct {
	Schedule  string `json:"schedule"`
	Scheduled bool   `json:"scheduled"`
	Running   bool   `json:"running"`
}

// Status describes the whole scheduler.
type Status struct {
	Started  bool                  `json:"started"`
	Timezone string                `json:"timezone"`
	Tasks    map[string]TaskStatus `json:"tasks"`
}

type task struct {
	name string
	spec string
	run  func(ctx context.Context)

	running   atomic.Bool
	entryID   cron.EntryID
	scheduled bool
}

// Scheduler runs the reconciliation pipelines on cron schedules. Each task
// carries its own running flag so a slow run is never stacked on top of
// itself: a scheduled fire that finds the flag set skips, a manual trigger
// gets ErrAlreadyRunning.
type Scheduler struct {
	cron     *cron.Cron
	products ProductPipeline
	carts    CartPipeline

	batchSize int
	timezone  string

	mu      sync.Mutex
	tasks   map[string]*task
	order   []string
	started bool
}

// New validates every cron spec and the timezone up front, so a broken
// schedule fails at startup rather than at the first fire.
func New(cfg Config, products ProductPipeline, carts CartPipeline) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		products:  products,
		carts:     carts,
		batchSize: cfg.BatchSize,
		timezone:  cfg.Timezone,
		tasks:     make(map[string]*task),
		order:     []string{TaskProduct, TaskCart, TaskHealthCheck},
	}

	specs := map[string]string{
		TaskProduct:     cfg.ProductSpec,
		TaskCart:        cfg.CartSpec,
		TaskHealthCheck: cfg.HealthCheckSpec,
	}
	runs := map[string]func(ctx context.Context){
		TaskProduct:     s.runProductSync,
		TaskCart:        s.runCartSync,
		TaskHealthCheck: s.runHealthCheck,
	}
	for name, spec := range specs {
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("invalid cron expression for %s task %q: %w", name, spec, err)
		}
		s.tasks[name] = &task{name: name, spec: spec, run: runs[name]}
	}
	return s, nil
}

// Start schedules all tasks and starts the cron runner. Safe to call again
// after Stop; task specs are retained.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	for _, name := range s.order {
		t := s.tasks[name]
		id, err := s.cron.AddFunc(t.spec, s.scheduledFire(t))
		if err != nil {
			return fmt.Errorf("failed to schedule %s task: %w", t.name, err)
		}
		t.entryID = id
		t.scheduled = true
		log.Printf("[Scheduler] Scheduled %s task (%s)", t.name, t.spec)
	}
	s.cron.Start()
	s.started = true
	log.Printf("[Scheduler] Started (timezone %s)", s.timezone)
	return nil
}

// Stop halts the cron runner and removes all entries. In-flight runs finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	for _, t := range s.tasks {
		if t.scheduled {
			s.cron.Remove(t.entryID)
			t.scheduled = false
		}
	}
	s.cron.Stop()
	s.started = false
	log.Printf("[Scheduler] Stopped")
}

// TriggerManualSync starts one run of the named task in the background.
func (s *Scheduler) TriggerManualSync(name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if !t.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: %w", name, ErrAlreadyRunning)
	}

	log.Printf("[Scheduler] Manual trigger for %s task", name)
	go func() {
		defer t.running.Store(false)
		t.run(context.Background())
	}()
	return nil
}

// Status reports every task plus the runner state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make(map[string]TaskStatus, len(s.tasks))
	for name, t := range s.tasks {
		tasks[name] = TaskStatus{
			Schedule:  t.spec,
			Scheduled: t.scheduled,
			Running:   t.running.Load(),
		}
	}
	return Status{Started: s.started, Timezone: s.timezone, Tasks: tasks}
}

func (s *Scheduler) scheduledFire(t *task) func() {
	return func() {
		if !t.running.CompareAndSwap(false, true) {
			log.Printf("[Scheduler] Skipping scheduled %s run: previous run still in progress", t.name)
			return
		}
		defer t.running.Store(false)
		t.run(context.Background())
	}
}

func (s *Scheduler) runProductSync(ctx context.Context) {
	result, err := s.products.Run(ctx, reconcile.Options{BatchSize: s.batchSize})
	if err != nil {
		log.Printf("[Scheduler] Product sync failed: %v", err)
		return
	}
	if result.SyncedCount == 0 {
		return
	}
	// A run that moved data gets a follow-up check.
	v, err := s.products.Validate(ctx)
	if err != nil {
		log.Printf("[Scheduler] Post-sync validation failed: %v", err)
		return
	}
	if v.IsValid {
		log.Printf("[Scheduler] Post-sync validation passed (%d products)", v.TargetCount)
	} else {
		log.Printf("[Scheduler] Post-sync validation found %d products still missing", v.MissingCount)
	}
}

func (s *Scheduler) runCartSync(ctx context.Context) {
	if _, err := s.carts.Run(ctx, reconcile.Options{BatchSize: s.batchSize}); err != nil {
		log.Printf("[Scheduler] Cart sync failed: %v", err)
	}
}

func (s *Scheduler) runHealthCheck(ctx context.Context) {
	productStats, err := s.products.Stats(ctx)
	if err != nil {
		log.Printf("[Scheduler] Health check: product stats unavailable: %v", err)
	} else {
		log.Printf("[Scheduler] Health check: products source=%d target=%d", productStats.SourceCount, productStats.TargetCount)
	}

	cartStats, err := s.carts.Stats(ctx)
	if err != nil {
		log.Printf("[Scheduler] Health check: cart stats unavailable: %v", err)
	} else {
		log.Printf("[Scheduler] Health check: carts source=%d target=%d", cartStats.SourceCount, cartStats.TargetCount)
	}
}
