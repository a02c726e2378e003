// Package notify posts snapshot summaries to a Discord-compatible webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gpumon/internal/slurm"
)

const embedColor = 3447003

// Doer executes one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title     string       `json:"title"`
	Color     int          `json:"color"`
	Timestamp string       `json:"timestamp"`
	Fields    []embedField `json:"fields"`
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

// Webhook delivers one embed per call to a fixed URL.
type Webhook struct {
	url    string
	client Doer
	log    *zap.Logger
}

func NewWebhook(url string, log *zap.Logger) *Webhook {
	if log == nil {
		log = zap.NewNop()
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// Send posts a cluster status embed built from the snapshot. Any response
// outside the 2xx range is an error.
func (w *Webhook) Send(ctx context.Context, snapshot *slurm.Snapshot) error {
	body, err := json.Marshal(buildPayload(snapshot))
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	w.log.Debug("sent webhook notification", zap.Int("status", resp.StatusCode))
	return nil
}

func buildPayload(snapshot *slurm.Snapshot) payload {
	fields := make([]embedField, 0, len(snapshot.Aggregates.GPUTypes)+1)
	for _, summary := range snapshot.Aggregates.GPUTypes {
		fields = append(fields, embedField{
			Name: summary.Type + " GPUs",
			Value: fmt.Sprintf("Available: %d/%d (%.1f%% used)",
				summary.TrueAvailable, summary.Total, summary.UsagePercent()),
			Inline: true,
		})
	}
	if jobs, gpus := snapshot.Aggregates.QueueTotals(); jobs > 0 {
		fields = append(fields, embedField{
			Name:   "📋 Queue Status",
			Value:  fmt.Sprintf("%d jobs waiting for %d GPUs", jobs, gpus),
			Inline: false,
		})
	}

	return payload{Embeds: []embed{{
		Title:     "🖥️ GPU Cluster Status Update",
		Color:     embedColor,
		Timestamp: snapshot.CollectedAt.UTC().Format(time.RFC3339),
		Fields:    fields,
	}}}
}
