package slurm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gpumon/internal/transport"
)

const (
	nodeReportCommand = "scontrol show node -d"
	jobReportCommand  = `squeue -o "%N|%u|%T|%b|%j|%i|%Q|%S|%l"`

	reportTimeout = 10 * time.Second
)

// Collector produces one Snapshot per call: it runs the two report commands,
// parses their output, and expands nodelists for running work.
type Collector struct {
	transport transport.Transport
	expander  *Expander
	timeout   time.Duration
	log       *zap.Logger
}

func NewCollector(t transport.Transport, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		transport: t,
		expander:  NewExpander(t),
		timeout:   reportTimeout,
		log:       log,
	}
}

// Collect runs one full cycle. The two reports run concurrently, each under
// its own timeout; failure of either aborts the cycle so the previous
// snapshot stays current. Parse-level degradation never fails a cycle.
func (c *Collector) Collect(ctx context.Context) (Snapshot, error) {
	var nodesRaw, jobsRaw string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := c.runWithTimeout(gctx, nodeReportCommand)
		if err != nil {
			return fmt.Errorf("node report: %w", err)
		}
		nodesRaw = raw
		return nil
	})
	g.Go(func() error {
		raw, err := c.runWithTimeout(gctx, jobReportCommand)
		if err != nil {
			return fmt.Errorf("job report: %w", err)
		}
		jobsRaw = raw
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("collect snapshot: %w", err)
	}

	nodes := ParseNodeReport(nodesRaw)
	running, queued := ParseJobReport(jobsRaw)
	allocations := c.buildAllocations(ctx, running)

	snap := Snapshot{
		Nodes:       nodes,
		Allocations: allocations,
		Queue:       queued,
		Aggregates:  Aggregate(nodes, allocations, queued),
		CollectedAt: time.Now(),
	}
	c.log.Debug("collected snapshot",
		zap.Int("nodes", len(nodes)),
		zap.Int("allocated_nodes", len(allocations)),
		zap.Int("queued_jobs", len(queued)))
	return snap, nil
}

// buildAllocations expands each running job's nodelist and spreads its GPU
// count across the hosts with integer division. The report carries no
// per-node placement, so the division remainder stays unassigned.
func (c *Collector) buildAllocations(ctx context.Context, running []RunningJob) map[string]*Allocation {
	allocations := make(map[string]*Allocation)
	for _, job := range running {
		hosts := c.expander.Expand(ctx, job.Nodelist)
		if len(hosts) == 0 {
			continue
		}
		perNode := job.GPUCount / len(hosts)
		for _, host := range hosts {
			alloc, ok := allocations[host]
			if !ok {
				alloc = &Allocation{Node: host}
				allocations[host] = alloc
			}
			alloc.addUser(job.User)
			alloc.Jobs = append(alloc.Jobs, JobOccupancy{
				User:     job.User,
				JobName:  job.JobName,
				JobID:    job.JobID,
				GPUCount: perNode,
			})
		}
	}
	for _, alloc := range allocations {
		sort.Strings(alloc.Users)
	}
	return allocations
}

func (c *Collector) runWithTimeout(ctx context.Context, command string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.transport.Run(cmdCtx, command)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(res.Stdout, "\n"), nil
}
