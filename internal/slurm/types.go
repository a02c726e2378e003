package slurm

import (
	"sort"
	"strings"
	"time"
)

// GPUTypeAny labels pending GPU requests that name no specific model
// (a bare gres like "gpu:2").
const GPUTypeAny = "any"

// Node is one record from the node report. State keeps the manager's raw
// token, including combined forms like MIXED+DRAIN or DRAIN*IDLE, because
// health classification depends on the full flag set.
type Node struct {
	Name  string
	State string

	GPUType  string
	GPUTotal int
	GPUUsed  int
	HasGPU   bool
}

// Healthy reports whether the node can serve new GPU work. Any DRAIN or DOWN
// flag anywhere in the state token disqualifies it.
func (n Node) Healthy() bool {
	state := strings.ToUpper(n.State)
	return !strings.Contains(state, "DRAIN") && !strings.Contains(state, "DOWN")
}

// RunningJob is a job-report row in RUNNING state with a GPU request, before
// its nodelist expression is expanded into hosts.
type RunningJob struct {
	Nodelist string
	User     string
	JobName  string
	JobID    string
	GPUCount int
}

// JobOccupancy records one running job's share of a single node's GPUs.
type JobOccupancy struct {
	User     string
	JobName  string
	JobID    string
	GPUCount int
}

// Allocation is the running GPU work on one node. Users is a sorted set;
// Jobs keeps encounter order from the job report.
type Allocation struct {
	Node  string
	Users []string
	Jobs  []JobOccupancy
}

func (a *Allocation) addUser(user string) {
	for _, u := range a.Users {
		if u == user {
			return
		}
	}
	a.Users = append(a.Users, user)
}

// QueuedJob is one pending job with a GPU request. Priority, StartTime, and
// TimeLimit carry the manager's raw strings for display.
type QueuedJob struct {
	User      string
	JobName   string
	JobID     string
	GPUType   string
	GPUCount  int
	GPUHours  float64
	Priority  string
	StartTime string
	TimeLimit string
}

// GPUTypeSummary aggregates one GPU model across the fleet. TrueAvailable
// counts free GPUs on healthy nodes only, so drained capacity never looks
// schedulable. Used may exceed Total when the manager reports oversubscription;
// display layers clamp, aggregation does not.
type GPUTypeSummary struct {
	Type          string
	Total         int
	Used          int
	Nodes         int
	DrainedNodes  int
	TrueAvailable int
}

func (s GPUTypeSummary) Available() int {
	return s.Total - s.Used
}

func (s GPUTypeSummary) HealthyNodes() int {
	return s.Nodes - s.DrainedNodes
}

func (s GPUTypeSummary) UsagePercent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Used) / float64(s.Total) * 100.0
}

// UserUsage is one (user, GPU type) slice of current consumption. Jobs counts
// per-node occupancies, so a two-node job contributes two.
type UserUsage struct {
	User     string
	GPUType  string
	GPUCount int
	Nodes    []string
	Jobs     int
}

// QueueTypeSummary aggregates pending demand for one GPU type.
type QueueTypeSummary struct {
	GPUType  string
	Jobs     int
	GPUs     int
	GPUHours float64
	Users    int
}

// UserQueueSummary aggregates one user's pending demand for one GPU type.
type UserQueueSummary struct {
	User     string
	GPUType  string
	Jobs     int
	GPUs     int
	GPUHours float64
}

// Aggregates holds every derived summary for one collection cycle, in
// deterministic order: types ascending, users by descending demand.
type Aggregates struct {
	GPUTypes   []GPUTypeSummary
	Users      []UserUsage
	QueueTypes []QueueTypeSummary
	QueueUsers []UserQueueSummary
}

// TotalTrueAvailable sums schedulable free GPUs across every type.
func (a Aggregates) TotalTrueAvailable() int {
	total := 0
	for _, s := range a.GPUTypes {
		total += s.TrueAvailable
	}
	return total
}

// QueueTotals returns the pending job and GPU counts across every type.
func (a Aggregates) QueueTotals() (jobs, gpus int) {
	for _, s := range a.QueueTypes {
		jobs += s.Jobs
		gpus += s.GPUs
	}
	return jobs, gpus
}

// Snapshot is one immutable view of the cluster. Readers must not mutate it;
// the scheduler replaces the whole value on every successful cycle.
type Snapshot struct {
	Nodes       []Node
	Allocations map[string]*Allocation
	Queue       []QueuedJob
	Aggregates  Aggregates
	CollectedAt time.Time
}

// UsersOn returns the sorted users running on the named node, or nil.
func (s Snapshot) UsersOn(node string) []string {
	alloc, ok := s.Allocations[node]
	if !ok {
		return nil
	}
	return alloc.Users
}

// GPUNodes returns the GPU-bearing nodes sorted by name.
func (s Snapshot) GPUNodes() []Node {
	out := make([]Node, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.HasGPU {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
