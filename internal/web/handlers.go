package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"gpumon/internal/history"
	"gpumon/internal/slurm"
)

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot := s.store.Current()
	if snapshot == nil {
		writeJSONError(w, "no snapshot collected yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, buildSnapshotDAO(snapshot))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := s.store.Current()
	if snapshot == nil {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(healthDAO{Status: "waiting"})
		return
	}
	writeJSON(w, healthDAO{
		Status:      "ok",
		CollectedAt: snapshot.CollectedAt,
		AgeSeconds:  time.Since(snapshot.CollectedAt).Seconds(),
	})
}

func (s *Server) handleAvailabilityHistory(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONError(w, "hours must be a positive integer", http.StatusBadRequest)
			return
		}
		hours = parsed
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	points, err := s.history.RecentAvailability(r.Context(), r.URL.Query().Get("type"), since)
	if err != nil {
		s.log.Error("availability history query failed", zap.Error(err))
		writeJSONError(w, "history query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, availabilityHistoryDAO{Points: buildAvailabilityDAOs(points)})
}

func buildSnapshotDAO(snapshot *slurm.Snapshot) snapshotDAO {
	dao := snapshotDAO{
		CollectedAt: snapshot.CollectedAt,
		GPUTypes:    make([]gpuTypeDAO, 0, len(snapshot.Aggregates.GPUTypes)),
		Users:       make([]userUsageDAO, 0, len(snapshot.Aggregates.Users)),
		Queue:       make([]queueTypeDAO, 0, len(snapshot.Aggregates.QueueTypes)),
	}
	for _, summary := range snapshot.Aggregates.GPUTypes {
		dao.GPUTypes = append(dao.GPUTypes, gpuTypeDAO{
			Type:          summary.Type,
			Total:         summary.Total,
			Used:          summary.Used,
			Available:     summary.Available(),
			TrueAvailable: summary.TrueAvailable,
			Nodes:         summary.Nodes,
			HealthyNodes:  summary.HealthyNodes(),
			UsagePercent:  summary.UsagePercent(),
		})
	}
	for _, usage := range snapshot.Aggregates.Users {
		dao.Users = append(dao.Users, userUsageDAO{
			User:     usage.User,
			GPUType:  usage.GPUType,
			GPUCount: usage.GPUCount,
			Jobs:     usage.Jobs,
			Nodes:    usage.Nodes,
		})
	}
	for _, queued := range snapshot.Aggregates.QueueTypes {
		dao.Queue = append(dao.Queue, queueTypeDAO{
			GPUType:  queued.GPUType,
			Jobs:     queued.Jobs,
			GPUs:     queued.GPUs,
			GPUHours: queued.GPUHours,
			Users:    queued.Users,
		})
	}
	gpuNodes := snapshot.GPUNodes()
	dao.Nodes = make([]nodeDAO, 0, len(gpuNodes))
	for _, node := range gpuNodes {
		dao.Nodes = append(dao.Nodes, nodeDAO{
			Name:    node.Name,
			State:   node.State,
			GPUType: node.GPUType,
			Total:   node.GPUTotal,
			Used:    node.GPUUsed,
			Healthy: node.Healthy(),
			Users:   snapshot.UsersOn(node.Name),
		})
	}
	return dao
}

func buildAvailabilityDAOs(points []history.AvailabilityPoint) []availabilityPointDAO {
	daos := make([]availabilityPointDAO, 0, len(points))
	for _, point := range points {
		daos = append(daos, availabilityPointDAO{
			Timestamp:     point.Timestamp,
			GPUType:       point.GPUType,
			Total:         point.Total,
			Used:          point.Used,
			Available:     point.Available,
			TrueAvailable: point.TrueAvailable,
			NodesTotal:    point.NodesTotal,
			NodesHealthy:  point.NodesHealthy,
		})
	}
	return daos
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSONError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorDAO{Error: message})
}
