package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/mcvqe/internal/database"
	"github.com/aristath/mcvqe/internal/scheduler"
)

// SystemStatusResponse represents the host and process status
type SystemStatusResponse struct {
	Status        string                `json:"status"`
	CPUPercent    float64               `json:"cpu_percent"`
	MemoryPercent float64               `json:"memory_percent"`
	DiskPercent   float64               `json:"disk_percent"`
	UptimeSeconds float64               `json:"uptime_seconds"`
	Goroutines    int                   `json:"goroutines"`
	NumCPU        int                   `json:"num_cpu"`
	GoVersion     string                `json:"go_version"`
	Jobs          []scheduler.JobStatus `json:"jobs,omitempty"`
	LastChecked   string                `json:"last_checked"`
}

// JobLister reports background job status.
type JobLister interface {
	Jobs() []scheduler.JobStatus
}

// DatabaseStatsResponse represents run-store statistics
type DatabaseStatsResponse struct {
	Name        string          `json:"name"`
	Path        string          `json:"path"`
	Healthy     bool            `json:"healthy"`
	Error       string          `json:"error,omitempty"`
	Stats       *database.Stats `json:"stats,omitempty"`
	SizeMB      float64         `json:"size_mb"`
	LastChecked string          `json:"last_checked"`
}

// DiskUsageResponse represents data directory usage
type DiskUsageResponse struct {
	DataDirMB float64 `json:"data_dir_mb"`
	LogsDirMB float64 `json:"logs_dir_mb"`
	TotalMB   float64 `json:"total_mb"`
}

// SystemHandlers serves the /api/system endpoints.
type SystemHandlers struct {
	db        *database.DB
	dataDir   string
	startedAt time.Time
	jobs      JobLister
	log       zerolog.Logger
}

// NewSystemHandlers creates system handlers. db may be nil.
func NewSystemHandlers(db *database.DB, dataDir string, startedAt time.Time, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		db:        db,
		dataDir:   dataDir,
		startedAt: startedAt,
		log:       log.With().Str("component", "system_handlers").Logger(),
	}
}

// HandleSystemStatus returns host utilisation and process information
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		DiskPercent:   h.getDiskPercent(),
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		GoVersion:     runtime.Version(),
		LastChecked:   time.Now().Format(time.RFC3339),
	}
	if h.jobs != nil {
		response.Jobs = h.jobs.Jobs()
	}

	writeJSON(w, h.log, http.StatusOK, response)
}

// WithJobs adds scheduler status to the system status response.
func (h *SystemHandlers) WithJobs(jobs JobLister) *SystemHandlers {
	h.jobs = jobs
	return h
}

// HandleDatabaseStats returns run-store statistics and a health probe
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	if h.db == nil {
		writeJSON(w, h.log, http.StatusServiceUnavailable, map[string]string{"error": "database not configured"})
		return
	}

	response := DatabaseStatsResponse{
		Name:        h.db.Name(),
		Path:        h.db.Path(),
		Healthy:     true,
		LastChecked: time.Now().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.db.HealthCheck(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Database health check failed")
		response.Healthy = false
		response.Error = err.Error()
	}

	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get database stats")
	} else {
		response.Stats = stats
		response.SizeMB = float64(stats.SizeBytes+stats.WALSizeBytes) / 1024 / 1024
	}

	status := http.StatusOK
	if !response.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, h.log, status, response)
}

// HandleDiskUsage returns disk usage statistics
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	dataDirSize := h.getDirSize(h.dataDir)
	logsDirSize := h.getDirSize(filepath.Join(h.dataDir, "logs"))

	response := DiskUsageResponse{
		DataDirMB: dataDirSize,
		LogsDirMB: logsDirSize,
		TotalMB:   dataDirSize,
	}

	writeJSON(w, h.log, http.StatusOK, response)
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	if dirPath == "" {
		return 0
	}

	var totalSize int64
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats calculates CPU and RAM usage percentages over a short window
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// getDiskPercent reports usage of the filesystem holding the data directory
func (h *SystemHandlers) getDiskPercent() float64 {
	path := h.dataDir
	if path == "" {
		path = "/"
	}
	usage, err := disk.Usage(path)
	if err != nil {
		h.log.Warn().Err(err).Str("path", path).Msg("Failed to get disk usage")
		return 0
	}
	return usage.UsedPercent
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
