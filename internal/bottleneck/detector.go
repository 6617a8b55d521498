package bottleneck

import (
	"sort"
	"sync"
	"time"

	"github.com/dreamware/swarmcore/internal/logging"
	"github.com/dreamware/swarmcore/internal/telemetry"
)

var log = logging.WithComponent("bottleneck")

// Kind discriminates the five finding types.
type Kind string

const (
	KindTokenExhaustion  Kind = "token-exhaustion"
	KindQuotaExceeded    Kind = "quota-exceeded"
	KindSlowAgent        Kind = "slow-agent"
	KindQueueBacklog     Kind = "queue-backlog"
	KindConsensusTimeout Kind = "consensus-timeout"
)

// Severity is derived from a finding's impact score.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityFor maps an impact score in [0,1] to a Severity bucket.
func severityFor(impact float64) Severity {
	switch {
	case impact >= 0.8:
		return SeverityCritical
	case impact >= 0.6:
		return SeverityHigh
	case impact >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Finding is one bottleneck observation: what kind of pressure, how bad,
// which resources, and what to do about it.
type Finding struct {
	Kind        Kind
	Severity    Severity
	Resources   []string
	Impact      float64
	Metrics     map[string]any
	Remediation []string
}

// TaskSample is one agent task's observed duration/outcome, fed into the
// rolling window by the caller as tasks complete.
type TaskSample struct {
	AgentID  string
	Duration time.Duration
	Success  bool
	At       time.Time
}

// ProposalOutcome records whether a consensus proposal timed out,
// feeding the consensus-timeout finding: the fraction of proposals
// recorded within the detector's own rolling window that timed out.
type ProposalOutcome struct {
	TimedOut bool
	At       time.Time
}

const defaultWindow = 60 * time.Second
const minSlowAgentSamples = 5

// Detector holds a bounded rolling window of per-agent task samples,
// mailbox depth snapshots, and proposal outcomes, and is otherwise pure:
// Detect run twice against an unmodified window and controller snapshot
// returns identical findings.
type Detector struct {
	mu        sync.Mutex
	window    time.Duration
	tasks     []TaskSample
	depths    map[string]int
	proposals []ProposalOutcome
}

// Option configures a Detector at construction.
type Option func(*Detector)

// WithWindow overrides the default 60s rolling window.
func WithWindow(d time.Duration) Option { return func(det *Detector) { det.window = d } }

// New builds a Detector with the documented 60s default window.
func New(opts ...Option) *Detector {
	d := &Detector{window: defaultWindow, depths: map[string]int{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RecordTask appends a task duration/outcome sample, pruning samples
// older than the window relative to its own timestamp.
func (d *Detector) RecordTask(s TaskSample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, s)
	d.pruneLocked(s.At)
}

// RecordMailboxDepth records the most recently observed depth for an
// agent's mailbox; only the latest value per agent is retained.
func (d *Detector) RecordMailboxDepth(agentID string, depth int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.depths[agentID] = depth
}

// RecordProposalOutcome appends a consensus proposal's timeout outcome.
func (d *Detector) RecordProposalOutcome(o ProposalOutcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.proposals = append(d.proposals, o)
}

func (d *Detector) pruneLocked(now time.Time) {
	cutoff := now.Add(-d.window)
	kept := d.tasks[:0]
	for _, t := range d.tasks {
		if t.At.After(cutoff) {
			kept = append(kept, t)
		}
	}
	d.tasks = kept

	keptProposals := d.proposals[:0]
	for _, p := range d.proposals {
		if p.At.After(cutoff) {
			keptProposals = append(keptProposals, p)
		}
	}
	d.proposals = keptProposals
}

// Detect runs one detection cycle against the current window and a
// ResourceController snapshot, returning every finding whose trigger
// condition holds. now anchors the rolling-window prune so the call is
// reproducible for a fixed window content.
func (d *Detector) Detect(now time.Time, rc ResourceController) []Finding {
	d.mu.Lock()
	d.pruneLocked(now)
	tasks := append([]TaskSample(nil), d.tasks...)
	depths := make(map[string]int, len(d.depths))
	for k, v := range d.depths {
		depths[k] = v
	}
	proposals := append([]ProposalOutcome(nil), d.proposals...)
	d.mu.Unlock()

	var findings []Finding
	if f, ok := detectTokenExhaustion(rc.Tokens()); ok {
		findings = append(findings, f)
	}
	queue := rc.Queue()
	if f, ok := detectQuotaExceeded(rc.Agents(), queue); ok {
		findings = append(findings, f)
	}
	findings = append(findings, detectSlowAgents(tasks)...)
	if f, ok := detectQueueBacklog(queue); ok {
		findings = append(findings, f)
	}
	if f, ok := detectConsensusTimeout(proposals); ok {
		findings = append(findings, f)
	}

	for _, f := range findings {
		telemetry.BottleneckFindings.WithLabelValues(string(f.Kind), string(f.Severity)).Inc()
		telemetry.BottleneckImpact.WithLabelValues(string(f.Kind)).Set(f.Impact)
	}
	log.Debug().Int("findings", len(findings)).Msg("bottleneck detection cycle complete")
	return findings
}

func detectTokenExhaustion(t TokenSnapshot) (Finding, bool) {
	if t.TotalBudget <= 0 {
		return Finding{}, false
	}
	ratio := t.Consumed / t.TotalBudget
	if ratio <= 0.8 {
		return Finding{}, false
	}
	impact := clamp01(ratio)
	return Finding{
		Kind: KindTokenExhaustion, Severity: severityFor(impact), Impact: impact,
		Metrics:     map[string]any{"consumed": t.Consumed, "total_budget": t.TotalBudget, "ratio": ratio},
		Remediation: []string{"raise token budget", "reduce concurrent submissions"},
	}, true
}

func detectQuotaExceeded(a AgentSnapshot, q QueueSnapshot) (Finding, bool) {
	if a.TotalQuotas <= 0 {
		return Finding{}, false
	}
	ratio := float64(a.Active) / float64(a.TotalQuotas)
	if ratio <= 0.9 {
		return Finding{}, false
	}
	pendingPressure := 0.0
	if q.Pending > 0 {
		pendingPressure = clamp01(float64(q.Pending) / 100.0)
	}
	impact := clamp01(ratio*0.7 + pendingPressure*0.3)
	return Finding{
		Kind: KindQuotaExceeded, Severity: severityFor(impact), Impact: impact,
		Metrics:     map[string]any{"active": a.Active, "max": a.TotalQuotas, "ratio": ratio, "pending_queue": q.Pending},
		Remediation: []string{"raise quota", "shed lowest-priority pending work"},
	}, true
}

// detectSlowAgents flags any agent whose mean duration exceeds twice the
// population mean, or whose success rate drops below 0.7, provided it has
// at least minSlowAgentSamples samples in the window.
func detectSlowAgents(tasks []TaskSample) []Finding {
	if len(tasks) == 0 {
		return nil
	}
	type agg struct {
		total    time.Duration
		count    int
		failures int
	}
	byAgent := map[string]*agg{}
	var populationTotal time.Duration
	var populationCount int
	for _, t := range tasks {
		a, ok := byAgent[t.AgentID]
		if !ok {
			a = &agg{}
			byAgent[t.AgentID] = a
		}
		a.total += t.Duration
		a.count++
		if !t.Success {
			a.failures++
		}
		populationTotal += t.Duration
		populationCount++
	}
	populationMean := float64(populationTotal) / float64(populationCount)

	ids := make([]string, 0, len(byAgent))
	for id := range byAgent {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var findings []Finding
	for _, id := range ids {
		a := byAgent[id]
		if a.count < minSlowAgentSamples {
			continue
		}
		mean := float64(a.total) / float64(a.count)
		successRate := 1 - float64(a.failures)/float64(a.count)
		slow := mean > 2*populationMean
		unreliable := successRate < 0.7
		if !slow && !unreliable {
			continue
		}
		impact := clamp01(mean/(2*populationMean)*0.5 + (1-successRate)*0.5)
		findings = append(findings, Finding{
			Kind: KindSlowAgent, Severity: severityFor(impact), Impact: impact,
			Resources: []string{id},
			Metrics: map[string]any{
				"mean_duration_ms":   mean / float64(time.Millisecond),
				"population_mean_ms": populationMean / float64(time.Millisecond),
				"success_rate":       successRate,
				"sample_count":       a.count,
			},
			Remediation: []string{"route new work away from this agent", "investigate slow-agent root cause"},
		})
	}
	return findings
}

func detectQueueBacklog(q QueueSnapshot) (Finding, bool) {
	if q.Pending <= 50 {
		return Finding{}, false
	}
	highPriorityShare := 0.0
	if q.Pending > 0 {
		highPriorityShare = float64(q.ByPriority["critical"]+q.ByPriority["high"]) / float64(q.Pending)
	}
	impact := clamp01(float64(q.Pending)/200.0*0.6 + highPriorityShare*0.4)
	return Finding{
		Kind: KindQueueBacklog, Severity: severityFor(impact), Impact: impact,
		Metrics:     map[string]any{"pending": q.Pending, "by_priority": q.ByPriority},
		Remediation: []string{"scale out consumers", "deprioritize low-priority work"},
	}, true
}

// detectConsensusTimeout fires when more than 10% of the proposals
// recorded in the current rolling window timed out.
func detectConsensusTimeout(proposals []ProposalOutcome) (Finding, bool) {
	if len(proposals) == 0 {
		return Finding{}, false
	}
	timedOut := 0
	for _, p := range proposals {
		if p.TimedOut {
			timedOut++
		}
	}
	ratio := float64(timedOut) / float64(len(proposals))
	if ratio <= 0.10 {
		return Finding{}, false
	}
	impact := clamp01(ratio)
	return Finding{
		Kind: KindConsensusTimeout, Severity: severityFor(impact), Impact: impact,
		Metrics:     map[string]any{"timeout_ratio": ratio, "sample_count": len(proposals)},
		Remediation: []string{"increase proposal timeout budget", "investigate unresponsive participants"},
	}, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
