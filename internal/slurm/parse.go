package slurm

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	nodeNameRe     = regexp.MustCompile(`^NodeName=(\S+)`)
	nodeStateRe    = regexp.MustCompile(`State=(\S+)`)
	nodeGresRe     = regexp.MustCompile(`gpu:(\w+):(\d+)`)
	nodeGresUsedRe = regexp.MustCompile(`gpu:\w+:(\d+)`)
	jobGresRe      = regexp.MustCompile(`gpu:(\w+:)?(\d+)`)
)

// ParseNodeReport extracts node records from detailed node-report output.
// A record begins at a line starting with NodeName=; State, Gres, and
// GresUsed are taken from the first matching line inside the record. Fields
// that fail to match stay absent rather than defaulting, and records without
// a name are dropped. Output is sorted by node name.
func ParseNodeReport(raw string) []Node {
	var out []Node
	var cur *nodeScan

	flush := func() {
		if cur != nil && cur.node.Name != "" {
			out = append(out, cur.node)
		}
		cur = nil
	}

	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, "NodeName=") {
			flush()
			if m := nodeNameRe.FindStringSubmatch(line); m != nil {
				cur = &nodeScan{node: Node{Name: m[1]}}
			}
			continue
		}
		if cur == nil {
			continue
		}
		switch {
		case strings.Contains(line, "State="):
			if cur.sawState {
				continue
			}
			if m := nodeStateRe.FindStringSubmatch(line); m != nil {
				cur.node.State = m[1]
				cur.sawState = true
			}
		case strings.Contains(line, "Gres=gpu:"):
			if cur.node.HasGPU {
				continue
			}
			if m := nodeGresRe.FindStringSubmatch(line); m != nil {
				count, err := strconv.Atoi(m[2])
				if err != nil {
					continue
				}
				cur.node.GPUType = m[1]
				cur.node.GPUTotal = count
				cur.node.HasGPU = true
			}
		case strings.Contains(line, "GresUsed=gpu:"):
			if cur.sawUsed {
				continue
			}
			if m := nodeGresUsedRe.FindStringSubmatch(line); m != nil {
				if count, err := strconv.Atoi(m[1]); err == nil {
					cur.node.GPUUsed = count
					cur.sawUsed = true
				}
			}
		}
	}
	flush()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

type nodeScan struct {
	node     Node
	sawState bool
	sawUsed  bool
}

// Job-report column layout, from the squeue format string in collector.go:
//
//	0 nodelist  1 user  2 state  3 gres  4 name  5 id  6 prio  7 start  8 limit
//
// The first line is squeue's header. Rows with fewer than six columns are
// dropped; the trailing three columns are optional with display fallbacks.
const jobReportMinFields = 6

// ParseJobReport walks the pipe-delimited job listing once and splits it
// into running GPU work and pending GPU requests. Rows without a parseable
// GPU request are ignored, as are states other than RUNNING and PENDING.
func ParseJobReport(raw string) ([]RunningJob, []QueuedJob) {
	lines := strings.Split(raw, "\n")
	if len(lines) > 0 {
		lines = lines[1:]
	}

	var running []RunningJob
	var queued []QueuedJob
	for _, line := range lines {
		if strings.TrimSpace(line) == "" || !strings.Contains(line, "|") {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < jobReportMinFields {
			continue
		}

		nodelist := strings.TrimSpace(parts[0])
		user := strings.TrimSpace(parts[1])
		state := strings.ToUpper(strings.TrimSpace(parts[2]))
		gres := strings.TrimSpace(parts[3])
		jobName := strings.TrimSpace(parts[4])
		jobID := strings.TrimSpace(parts[5])

		gpuType, gpuCount, ok := parseGPURequest(gres)
		if !ok {
			continue
		}

		switch state {
		case "RUNNING":
			if nodelist == "" {
				continue
			}
			running = append(running, RunningJob{
				Nodelist: nodelist,
				User:     user,
				JobName:  jobName,
				JobID:    jobID,
				GPUCount: gpuCount,
			})
		case "PENDING":
			timeLimit := fieldAt(parts, 8, "1:00:00")
			queued = append(queued, QueuedJob{
				User:      user,
				JobName:   jobName,
				JobID:     jobID,
				GPUType:   gpuType,
				GPUCount:  gpuCount,
				GPUHours:  ParseTimeLimitHours(timeLimit) * float64(gpuCount),
				Priority:  fieldAt(parts, 6, "N/A"),
				StartTime: fieldAt(parts, 7, "N/A"),
				TimeLimit: timeLimit,
			})
		}
	}
	return running, queued
}

// parseGPURequest reads a gres column such as gpu:a100:4 or gpu:2. Untyped
// requests report GPUTypeAny. ok is false when the column carries no
// parseable GPU request, which callers treat as "not a GPU job".
func parseGPURequest(gres string) (gpuType string, count int, ok bool) {
	m := jobGresRe.FindStringSubmatch(gres)
	if m == nil {
		return "", 0, false
	}
	count, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	gpuType = strings.TrimSuffix(m[1], ":")
	if gpuType == "" {
		gpuType = GPUTypeAny
	}
	return gpuType, count, true
}

// fieldAt returns the trimmed column at index i, or fallback when the row is
// short. Column count varies across workload-manager versions.
func fieldAt(parts []string, i int, fallback string) string {
	if i >= len(parts) {
		return fallback
	}
	return strings.TrimSpace(parts[i])
}
