package slurm

import (
	"context"
	"strings"
	"sync"
	"time"

	"gpumon/internal/transport"
)

const expandTimeout = 5 * time.Second

// Expander resolves compressed nodelist expressions such as gpu[01-04],dgx-a01
// into individual host names by delegating to the workload manager. The
// expression-to-hosts mapping never changes, so successful expansions are
// cached for the life of the process.
type Expander struct {
	transport transport.Transport
	timeout   time.Duration

	mu    sync.Mutex
	cache map[string][]string
}

func NewExpander(t transport.Transport) *Expander {
	return &Expander{
		transport: t,
		timeout:   expandTimeout,
		cache:     make(map[string][]string),
	}
}

// Expand returns the hosts behind expr. On any failure (timeout, non-zero
// exit, empty output) it returns expr itself as a single pseudo-host, so the
// caller's record degrades instead of disappearing.
func (e *Expander) Expand(ctx context.Context, expr string) []string {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}

	e.mu.Lock()
	cached, ok := e.cache[expr]
	e.mu.Unlock()
	if ok {
		return cached
	}

	hosts := e.expandRemote(ctx, expr)
	if hosts == nil {
		return []string{expr}
	}

	e.mu.Lock()
	e.cache[expr] = hosts
	e.mu.Unlock()
	return hosts
}

func (e *Expander) expandRemote(ctx context.Context, expr string) []string {
	cmdCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.transport.Run(cmdCtx, "scontrol show hostname "+transport.QuoteArg(expr))
	if err != nil {
		return nil
	}

	var hosts []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		hosts = append(hosts, line)
	}
	return hosts
}
