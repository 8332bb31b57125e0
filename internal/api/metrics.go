package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-rrd/internal/process"
	"github.com/nerrad567/gray-logic-rrd/internal/serialqueue"
)

const bytesPerMiB = 1 << 20

// SystemMetrics is the body of GET /metrics. Component sections are
// omitted when the component is not running.
type SystemMetrics struct {
	Timestamp     string              `json:"timestamp"`
	Version       string              `json:"version"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Runtime       RuntimeMetrics      `json:"runtime"`
	WebSocket     WSMetrics           `json:"websocket"`
	Queues        []serialqueue.Stats `json:"queues"`
	RRDTool       *process.Stats      `json:"rrdtool,omitempty"`
	MQTT          *mqtt.Stats         `json:"mqtt,omitempty"`
	InfluxDB      *influxdb.Stats     `json:"influxdb,omitempty"`
}

// RuntimeMetrics samples the Go runtime.
type RuntimeMetrics struct {
	Goroutines   int     `json:"goroutines"`
	HeapAllocMB  float64 `json:"heap_alloc_mb"`
	TotalAllocMB float64 `json:"total_alloc_mb"`
	SysMB        float64 `json:"sys_mb"`
	NumGC        uint32  `json:"num_gc"`
}

// WSMetrics describes the WebSocket hub.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

func readRuntime() RuntimeMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return RuntimeMetrics{
		Goroutines:   runtime.NumGoroutine(),
		HeapAllocMB:  float64(ms.HeapAlloc) / bytesPerMiB,
		TotalAllocMB: float64(ms.TotalAlloc) / bytesPerMiB,
		SysMB:        float64(ms.Sys) / bytesPerMiB,
		NumGC:        ms.NumGC,
	}
}

// snapshot returns a copy of src's counters, or nil when src is unset.
func snapshot[T any](src interface{ Stats() T }) *T {
	if src == nil {
		return nil
	}
	v := src.Stats()
	return &v
}

// handleMetrics reports runtime, WebSocket and per-file queue statistics,
// plus rrdtool, MQTT and InfluxDB counters when those components are wired.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	queues := s.databases.QueueStats()
	if queues == nil {
		queues = []serialqueue.Stats{}
	}

	writeJSON(w, http.StatusOK, SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime) / time.Second),
		Runtime:       readRuntime(),
		WebSocket:     WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Queues:        queues,
		RRDTool:       snapshot[process.Stats](s.tool),
		MQTT:          snapshot[mqtt.Stats](s.broker),
		InfluxDB:      snapshot[influxdb.Stats](s.influx),
	})
}
