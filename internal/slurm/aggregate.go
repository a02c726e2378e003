package slurm

import "sort"

// Aggregate derives every summary for one collection cycle. It is pure and
// deterministic: the same records always produce identically ordered output.
// Zero-defaulting of absent fields happens here, not in the parsers.
func Aggregate(nodes []Node, allocations map[string]*Allocation, queue []QueuedJob) Aggregates {
	return Aggregates{
		GPUTypes:   summarizeGPUTypes(nodes),
		Users:      summarizeUserUsage(nodes, allocations),
		QueueTypes: summarizeQueueTypes(queue),
		QueueUsers: summarizeQueueUsers(queue),
	}
}

func summarizeGPUTypes(nodes []Node) []GPUTypeSummary {
	byType := make(map[string]*GPUTypeSummary)
	for _, n := range nodes {
		if !n.HasGPU {
			continue
		}
		s, ok := byType[n.GPUType]
		if !ok {
			s = &GPUTypeSummary{Type: n.GPUType}
			byType[n.GPUType] = s
		}
		s.Total += n.GPUTotal
		s.Used += n.GPUUsed
		s.Nodes++
		if n.Healthy() {
			s.TrueAvailable += n.GPUTotal - n.GPUUsed
		} else {
			s.DrainedNodes++
		}
	}

	out := make([]GPUTypeSummary, 0, len(byType))
	for _, s := range byType {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Type < out[j].Type
	})
	return out
}

type userTypeKey struct {
	user    string
	gpuType string
}

func summarizeUserUsage(nodes []Node, allocations map[string]*Allocation) []UserUsage {
	nodeTypes := make(map[string]string, len(nodes))
	for _, n := range nodes {
		if n.HasGPU {
			nodeTypes[n.Name] = n.GPUType
		}
	}

	usage := make(map[userTypeKey]*userUsageScan)
	userTotals := make(map[string]int)
	for nodeName, alloc := range allocations {
		gpuType, ok := nodeTypes[nodeName]
		if !ok {
			// Allocation on a node the node report does not know about:
			// there is no type to attribute the usage to.
			continue
		}
		for _, job := range alloc.Jobs {
			key := userTypeKey{user: job.User, gpuType: gpuType}
			u, ok := usage[key]
			if !ok {
				u = &userUsageScan{nodes: make(map[string]struct{})}
				usage[key] = u
			}
			u.gpuCount += job.GPUCount
			u.jobs++
			u.nodes[nodeName] = struct{}{}
			userTotals[job.User] += job.GPUCount
		}
	}

	out := make([]UserUsage, 0, len(usage))
	for key, u := range usage {
		out = append(out, UserUsage{
			User:     key.user,
			GPUType:  key.gpuType,
			GPUCount: u.gpuCount,
			Nodes:    sortedKeys(u.nodes),
			Jobs:     u.jobs,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := userTotals[out[i].User], userTotals[out[j].User]
		if ti != tj {
			return ti > tj
		}
		if out[i].User != out[j].User {
			return out[i].User < out[j].User
		}
		return out[i].GPUType < out[j].GPUType
	})
	return out
}

type userUsageScan struct {
	gpuCount int
	jobs     int
	nodes    map[string]struct{}
}

func summarizeQueueTypes(queue []QueuedJob) []QueueTypeSummary {
	byType := make(map[string]*queueTypeScan)
	for _, job := range queue {
		s, ok := byType[job.GPUType]
		if !ok {
			s = &queueTypeScan{users: make(map[string]struct{})}
			byType[job.GPUType] = s
		}
		s.jobs++
		s.gpus += job.GPUCount
		s.gpuHours += job.GPUHours
		s.users[job.User] = struct{}{}
	}

	out := make([]QueueTypeSummary, 0, len(byType))
	for gpuType, s := range byType {
		out = append(out, QueueTypeSummary{
			GPUType:  gpuType,
			Jobs:     s.jobs,
			GPUs:     s.gpus,
			GPUHours: s.gpuHours,
			Users:    len(s.users),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GPUType < out[j].GPUType
	})
	return out
}

type queueTypeScan struct {
	jobs     int
	gpus     int
	gpuHours float64
	users    map[string]struct{}
}

func summarizeQueueUsers(queue []QueuedJob) []UserQueueSummary {
	byKey := make(map[userTypeKey]*UserQueueSummary)
	userHours := make(map[string]float64)
	for _, job := range queue {
		key := userTypeKey{user: job.User, gpuType: job.GPUType}
		s, ok := byKey[key]
		if !ok {
			s = &UserQueueSummary{User: job.User, GPUType: job.GPUType}
			byKey[key] = s
		}
		s.Jobs++
		s.GPUs += job.GPUCount
		s.GPUHours += job.GPUHours
		userHours[job.User] += job.GPUHours
	}

	out := make([]UserQueueSummary, 0, len(byKey))
	for _, s := range byKey {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		hi, hj := userHours[out[i].User], userHours[out[j].User]
		if hi != hj {
			return hi > hj
		}
		if out[i].User != out[j].User {
			return out[i].User < out[j].User
		}
		return out[i].GPUType < out[j].GPUType
	})
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
