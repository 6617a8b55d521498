package bottleneck

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dreamware/swarmcore/internal/logging"
)

var rollupLog = logging.WithComponent("bottleneck.rollup")

// DefaultRollupSchedule runs a detection cycle once per window by default
// (every minute, matching the 60s default window), expressed as a
// seconds-precision cron expression.
const DefaultRollupSchedule = "@every 60s"

// Rollup drives periodic Detect calls on a cron schedule rather than a
// bare ticker, for deployments that want cron-style scheduling (e.g.
// aligning detection cycles to wall-clock minute boundaries, or wiring in
// a non-uniform schedule like "run every 30s during business hours").
// Callers that want a bare ticker instead construct their own loop
// around Detector.Detect directly.
type Rollup struct {
	detector *Detector
	rc       ResourceController
	schedule string
	onResult func([]Finding)

	mu      sync.Mutex
	cronJob *cron.Cron
	entryID cron.EntryID
}

// RollupOption configures a Rollup at construction.
type RollupOption func(*Rollup)

// WithSchedule overrides DefaultRollupSchedule.
func WithSchedule(expr string) RollupOption {
	return func(r *Rollup) { r.schedule = expr }
}

// WithResultHandler registers a callback invoked with each cycle's
// findings (the self-healer wires this).
func WithResultHandler(fn func([]Finding)) RollupOption {
	return func(r *Rollup) { r.onResult = fn }
}

// NewRollup builds a Rollup over an existing Detector and
// ResourceController.
func NewRollup(detector *Detector, rc ResourceController, opts ...RollupOption) *Rollup {
	r := &Rollup{detector: detector, rc: rc, schedule: DefaultRollupSchedule}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start schedules the rollup's detection cycle with robfig/cron, using
// seconds-precision parsing so "@every 60s"-style schedules and classic
// five-field cron expressions both work.
func (r *Rollup) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := cron.New(cron.WithSeconds(), cron.WithParser(cron.NewParser(
		cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor,
	)))
	id, err := c.AddFunc(r.schedule, r.runCycle)
	if err != nil {
		return err
	}
	r.cronJob = c
	r.entryID = id
	c.Start()
	rollupLog.Info().Str("schedule", r.schedule).Msg("bottleneck rollup scheduled")
	return nil
}

// Stop cancels the scheduled job and waits for any in-flight run to
// finish, mirroring the graceful-shutdown idiom used by every other
// background loop in this module.
func (r *Rollup) Stop() {
	r.mu.Lock()
	c := r.cronJob
	r.mu.Unlock()
	if c == nil {
		return
	}
	ctx := c.Stop()
	<-ctx.Done()
}

func (r *Rollup) runCycle() {
	findings := r.detector.Detect(time.Now().UTC(), r.rc)
	if r.onResult != nil && len(findings) > 0 {
		r.onResult(findings)
	}
}
