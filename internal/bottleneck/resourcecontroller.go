// Package bottleneck implements the bottleneck detector: a pure analyzer
// over a bounded rolling metrics window that emits typed, severity-scored
// findings. It consumes one external collaborator, the read-only
// ResourceController.
package bottleneck

// TokenSnapshot is the resource controller's token-budget view.
type TokenSnapshot struct {
	TotalBudget float64
	Consumed    float64
	Remaining   float64
}

// TypeQuota is one agent-type's quota/active pair within AgentSnapshot.
type TypeQuota struct {
	Quota  int
	Active int
}

// AgentSnapshot is the resource controller's agent-quota view.
type AgentSnapshot struct {
	TotalQuotas int
	Active      int
	ByType      map[string]TypeQuota
}

// QueueSnapshot is the resource controller's queue-pressure view.
type QueueSnapshot struct {
	Pending    int
	ByPriority map[string]int // keys: critical, high, medium, low
}

// ResourceController is the read-only external collaborator consumed by
// the detector. The core never mutates it and assumes no particular
// refresh cadence beyond "current at call time".
type ResourceController interface {
	Tokens() TokenSnapshot
	Agents() AgentSnapshot
	Queue() QueueSnapshot
}

// StaticController is a fixed-snapshot ResourceController, the in-memory
// reference/test double alongside the gopsutil-backed HostController.
type StaticController struct {
	TokenSnap TokenSnapshot
	AgentSnap AgentSnapshot
	QueueSnap QueueSnapshot
}

func (s StaticController) Tokens() TokenSnapshot { return s.TokenSnap }
func (s StaticController) Agents() AgentSnapshot { return s.AgentSnap }
func (s StaticController) Queue() QueueSnapshot  { return s.QueueSnap }
