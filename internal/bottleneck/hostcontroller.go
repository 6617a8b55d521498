package bottleneck

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dreamware/swarmcore/internal/logging"
)

var hostLog = logging.WithComponent("bottleneck.host")

// HostController is a concrete, host-backed ResourceController: it
// derives the opaque token/agent/queue snapshot shape from real
// CPU and memory pressure on the node running the coordinator, for a
// deployment that has no richer external resource accounting system of
// its own. The in-memory StaticController remains the reference/test
// double; this is the alternative a real deployment can reach for.
//
// The mapping is necessarily approximate: "tokens" has no literal host
// analog, so consumed/remaining track memory utilization, and agent
// quota utilization tracks CPU utilization scaled by a configured agent
// capacity.
type HostController struct {
	agentCapacity int
	pendingQueue  func() QueueSnapshot
}

// HostOption configures a HostController at construction.
type HostOption func(*HostController)

// WithAgentCapacity sets the number of agent "slots" CPU utilization is
// scaled against. Default 100.
func WithAgentCapacity(n int) HostOption {
	return func(h *HostController) {
		if n > 0 {
			h.agentCapacity = n
		}
	}
}

// WithQueueSource wires a callback the HostController consults for
// QueueSnapshot, since queue depth has no host-level analog; callers
// typically point this at their own mailbox-depth aggregation.
func WithQueueSource(fn func() QueueSnapshot) HostOption {
	return func(h *HostController) { h.pendingQueue = fn }
}

// NewHostController builds a HostController with a default agent
// capacity of 100 and an empty queue source.
func NewHostController(opts ...HostOption) *HostController {
	h := &HostController{agentCapacity: 100, pendingQueue: func() QueueSnapshot { return QueueSnapshot{} }}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Tokens reports memory utilization as a token budget: TotalBudget is
// total system memory in bytes, Consumed is used bytes.
func (h *HostController) Tokens() TokenSnapshot {
	vm, err := mem.VirtualMemoryWithContext(context.Background())
	if err != nil {
		hostLog.Warn().Err(err).Msg("failed to read host memory, reporting empty token snapshot")
		return TokenSnapshot{}
	}
	return TokenSnapshot{
		TotalBudget: float64(vm.Total),
		Consumed:    float64(vm.Used),
		Remaining:   float64(vm.Available),
	}
}

// Agents reports CPU utilization scaled against the configured agent
// capacity.
func (h *HostController) Agents() AgentSnapshot {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(percents) == 0 {
		hostLog.Warn().Err(err).Msg("failed to read host CPU, reporting empty agent snapshot")
		return AgentSnapshot{TotalQuotas: h.agentCapacity}
	}
	active := int(percents[0] / 100.0 * float64(h.agentCapacity))
	return AgentSnapshot{
		TotalQuotas: h.agentCapacity,
		Active:      active,
		ByType:      map[string]TypeQuota{"host": {Quota: h.agentCapacity, Active: active}},
	}
}

// Queue delegates to the configured queue source, or an empty snapshot
// if none was wired.
func (h *HostController) Queue() QueueSnapshot {
	return h.pendingQueue()
}
