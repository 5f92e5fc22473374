package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/San-2310/hsbc-hack/internal/rulestore"
	"github.com/San-2310/hsbc-hack/pkg/contracts"
)

// ClientCounter reports connected websocket clients
type ClientCounter interface {
	ClientCount() int
}

// QueueStats reports job queue statistics
type QueueStats interface {
	GetQueueStats() map[string]interface{}
}

// HealthService provides health check functionality
type HealthService struct {
	uploadDir string
	ruleStore rulestore.Store
	hub       ClientCounter
	jobs      QueueStats
	datasets  DatasetStore
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemStats represents system statistics
type SystemStats struct {
	UptimeSeconds    float64                `json:"uptime_seconds"`
	Datasets         int                    `json:"datasets"`
	WebSocketClients int                    `json:"websocket_clients"`
	Jobs             map[string]interface{} `json:"jobs,omitempty"`
	GoVersion        string                 `json:"go_version"`
	OS               string                 `json:"os"`
	Arch             string                 `json:"arch"`
}

// NewHealthService creates a health service. Nil dependencies are reported
// as not configured rather than failing readiness, except the rule store.
func NewHealthService(uploadDir string, ruleStore rulestore.Store, hub ClientCounter, jobs QueueStats, datasets DatasetStore, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		uploadDir: uploadDir,
		ruleStore: ruleStore,
		hub:       hub,
		jobs:      jobs,
		datasets:  datasets,
		startTime: time.Now(),
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// ReadinessCheck checks every dependency and reports "ready" only when all are
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Services: map[string]ServiceHealth{
			"rule_store": hs.checkRuleStore(ctx),
			"uploads":    hs.checkUploadDir(),
			"jobs":       hs.checkJobs(),
		},
	}

	for name, service := range status.Services {
		if service.Status != "ready" {
			status.Status = "not_ready"
			hs.logger.WarnContext(ctx, "dependency not ready",
				slog.String("service", name),
				slog.String("message", service.Message))
		}
	}
	return status
}

// Version returns version information
func (hs *HealthService) Version() contracts.VersionInfo {
	return contracts.GetVersionInfo()
}

// SystemStats returns system statistics
func (hs *HealthService) SystemStats(ctx context.Context) SystemStats {
	stats := SystemStats{
		UptimeSeconds: time.Since(hs.startTime).Seconds(),
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}
	if hs.datasets != nil {
		if list, err := hs.datasets.List(ctx); err == nil {
			stats.Datasets = len(list)
		}
	}
	if hs.hub != nil {
		stats.WebSocketClients = hs.hub.ClientCount()
	}
	if hs.jobs != nil {
		stats.Jobs = hs.jobs.GetQueueStats()
	}
	return stats
}

func (hs *HealthService) checkRuleStore(ctx context.Context) ServiceHealth {
	if hs.ruleStore == nil {
		return ServiceHealth{Status: "not_ready", Message: "rule store not initialized"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := hs.ruleStore.Load(ctx); err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("rule store error: %v", err)}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkUploadDir() ServiceHealth {
	if hs.uploadDir == "" {
		return ServiceHealth{Status: "ready", Message: "uploads disabled"}
	}
	probe, err := os.CreateTemp(hs.uploadDir, ".ready-*")
	if err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("cannot write to upload directory: %v", err)}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(filepath.Clean(name))
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkJobs() ServiceHealth {
	if hs.jobs == nil {
		return ServiceHealth{Status: "ready", Message: "job queue disabled"}
	}
	return ServiceHealth{Status: "ready"}
}
