package web

import "time"

// Response shapes for the status API. The internal snapshot types stay
// private to the process; these are the wire contract.

type snapshotDAO struct {
	CollectedAt time.Time      `json:"collected_at"`
	GPUTypes    []gpuTypeDAO   `json:"gpu_types"`
	Users       []userUsageDAO `json:"users"`
	Queue       []queueTypeDAO `json:"queue"`
	Nodes       []nodeDAO      `json:"nodes"`
}

type gpuTypeDAO struct {
	Type          string  `json:"type"`
	Total         int     `json:"total"`
	Used          int     `json:"used"`
	Available     int     `json:"available"`
	TrueAvailable int     `json:"true_available"`
	Nodes         int     `json:"nodes"`
	HealthyNodes  int     `json:"healthy_nodes"`
	UsagePercent  float64 `json:"usage_percent"`
}

type userUsageDAO struct {
	User     string   `json:"user"`
	GPUType  string   `json:"gpu_type"`
	GPUCount int      `json:"gpu_count"`
	Jobs     int      `json:"jobs"`
	Nodes    []string `json:"nodes"`
}

type queueTypeDAO struct {
	GPUType  string  `json:"gpu_type"`
	Jobs     int     `json:"jobs"`
	GPUs     int     `json:"gpus"`
	GPUHours float64 `json:"gpu_hours"`
	Users    int     `json:"users"`
}

type nodeDAO struct {
	Name    string   `json:"name"`
	State   string   `json:"state"`
	GPUType string   `json:"gpu_type"`
	Total   int      `json:"total_gpus"`
	Used    int      `json:"used_gpus"`
	Healthy bool     `json:"healthy"`
	Users   []string `json:"users,omitempty"`
}

type availabilityPointDAO struct {
	Timestamp     time.Time `json:"timestamp"`
	GPUType       string    `json:"gpu_type"`
	Total         int       `json:"total"`
	Used          int       `json:"used"`
	Available     int       `json:"available"`
	TrueAvailable int       `json:"true_available"`
	NodesTotal    int       `json:"nodes_total"`
	NodesHealthy  int       `json:"nodes_healthy"`
}

type availabilityHistoryDAO struct {
	Points []availabilityPointDAO `json:"points"`
}

type healthDAO struct {
	Status      string    `json:"status"`
	CollectedAt time.Time `json:"collected_at,omitempty"`
	AgeSeconds  float64   `json:"age_seconds,omitempty"`
}

type errorDAO struct {
	Error string `json:"error"`
}
