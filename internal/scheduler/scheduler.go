package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/metrics"
)

// Job names used by the application.
const (
	JobSearch      = "search"
	JobPostProcess = "postprocess"
	JobRefresh     = "refresh"
)

var (
	// ErrUnknownJob is returned for a job name that was never registered.
	ErrUnknownJob = errors.New("unknown job")
	// ErrRunning is returned by RunNow while the job is already running.
	ErrRunning = errors.New("job already running")
)

// Func is the work of one job run.
type Func func(ctx context.Context) error

// Options tunes the supervisor that restarts crashed job loops.
type Options struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultOptions returns suture's defaults.
func DefaultOptions() Options {
	return Options{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

type job struct {
	name     string
	fn       Func
	run      sync.Mutex
	interval time.Duration
	token    suture.ServiceToken
	active   bool
	// gen identifies the current ticker; older tickers retire themselves
	gen int
}

// Scheduler runs registered jobs at fixed intervals under a suture
// supervisor. A job never overlaps with itself.
type Scheduler struct {
	sup  *suture.Supervisor
	mu   sync.Mutex
	jobs map[string]*job
	log  *logger.Logger
}

// New creates a scheduler. Jobs start ticking once Serve is called.
func New(opts Options, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Get()
	}
	log = log.Component("scheduler")

	defaults := DefaultOptions()
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = defaults.FailureThreshold
	}
	if opts.FailureDecay == 0 {
		opts.FailureDecay = defaults.FailureDecay
	}
	if opts.FailureBackoff == 0 {
		opts.FailureBackoff = defaults.FailureBackoff
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = defaults.ShutdownTimeout
	}

	sup := suture.New("scheduler", suture.Spec{
		EventHook: func(ev suture.Event) {
			log.Warn(ev.String(), ev.Map())
		},
		FailureThreshold: opts.FailureThreshold,
		FailureDecay:     opts.FailureDecay,
		FailureBackoff:   opts.FailureBackoff,
		Timeout:          opts.ShutdownTimeout,
	})

	return &Scheduler{
		sup:  sup,
		jobs: make(map[string]*job),
		log:  log,
	}
}

// Register adds a job that runs every interval. An interval of 0 registers
// the job without scheduling it, so it can still be run with RunNow.
func (s *Scheduler) Register(name string, interval time.Duration, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[name]; ok && old.active {
		s.unschedule(old)
	}
	j := &job{name: name, fn: fn}
	s.jobs[name] = j
	s.schedule(j, interval)
}

// SetInterval changes how often a job runs. 0 stops scheduling it.
func (s *Scheduler) SetInterval(name string, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if j.interval == interval && j.active == (interval > 0) {
		return nil
	}
	if j.active {
		s.unschedule(j)
	}
	s.schedule(j, interval)
	s.log.Info("Job interval changed", map[string]interface{}{
		"job":      name,
		"interval": interval.String(),
	})
	return nil
}

// ApplyConfig derives job intervals from the scheduler minutes in cfg.
// Jobs that were never registered are ignored.
func (s *Scheduler) ApplyConfig(cfg *config.Config) {
	intervals := map[string]int{
		JobSearch:      cfg.Scheduler.SearchInterval,
		JobPostProcess: cfg.Scheduler.PostProcessInterval,
		JobRefresh:     cfg.Scheduler.RefreshInterval,
	}
	for name, minutes := range intervals {
		if err := s.SetInterval(name, time.Duration(minutes)*time.Minute); err != nil && !errors.Is(err, ErrUnknownJob) {
			s.log.Warn("Failed to apply job interval", map[string]interface{}{"job": name, "error": err.Error()})
		}
	}
}

// Interval returns the current interval of a job, or 0.
func (s *Scheduler) Interval(name string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok && j.active {
		return j.interval
	}
	return 0
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunNow runs a job immediately and returns its error. It fails with
// ErrRunning instead of waiting when the job is already in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, j)
}

// Serve runs the supervisor until ctx is cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	return s.sup.Serve(ctx)
}

// ServeBackground runs the supervisor in a goroutine.
func (s *Scheduler) ServeBackground(ctx context.Context) <-chan error {
	return s.sup.ServeBackground(ctx)
}

// Add supervises an additional long-running service next to the jobs.
func (s *Scheduler) Add(svc suture.Service) suture.ServiceToken {
	return s.sup.Add(svc)
}

func (s *Scheduler) schedule(j *job, interval time.Duration) {
	j.gen++
	j.interval = interval
	j.active = false
	if interval <= 0 {
		return
	}
	j.token = s.sup.Add(&ticker{s: s, j: j, gen: j.gen, every: interval})
	j.active = true
}

func (s *Scheduler) unschedule(j *job) {
	err := s.sup.Remove(j.token)
	if err != nil && !errors.Is(err, suture.ErrSupervisorNotStarted) {
		s.log.Warn("Failed to stop job", map[string]interface{}{"job": j.name, "error": err.Error()})
	}
	j.active = false
}

func (s *Scheduler) current(j *job, gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return j.active && j.gen == gen && s.jobs[j.name] == j
}

// execute runs j once, logging and recording the outcome.
func (s *Scheduler) execute(ctx context.Context, j *job) error {
	if !j.run.TryLock() {
		return fmt.Errorf("%w: %s", ErrRunning, j.name)
	}
	defer j.run.Unlock()

	start := time.Now()
	s.log.Debug("Job started", map[string]interface{}{"job": j.name})
	err := j.fn(ctx)
	metrics.ObserveJob(j.name, start, err)

	fields := map[string]interface{}{
		"job":      j.name,
		"duration": time.Since(start).String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		s.log.Error("Job failed", fields)
		return err
	}
	s.log.Info("Job finished", fields)
	return nil
}

// ticker is the supervised loop that fires one job.
type ticker struct {
	s     *Scheduler
	j     *job
	gen   int
	every time.Duration
}

// Serve implements suture.Service.
func (t *ticker) Serve(ctx context.Context) error {
	tick := time.NewTicker(t.every)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if !t.s.current(t.j, t.gen) {
				return suture.ErrDoNotRestart
			}
			if err := t.s.execute(ctx, t.j); errors.Is(err, ErrRunning) {
				t.s.log.Warn("Skipping job run, previous run still in progress", map[string]interface{}{"job": t.j.name})
			}
		}
	}
}

// String implements fmt.Stringer for suture's logs.
func (t *ticker) String() string {
	return "job:" + t.j.name
}
