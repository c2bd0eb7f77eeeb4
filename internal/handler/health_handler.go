package handler

import (
	"context"
	"net/http"
	"time"

	"spray-machine-monitoring/internal/mqtt"

	"github.com/gin-gonic/gin"
)

// BrokerStatus reports the MQTT connection.
// Implemented by mqtt.Client.
type BrokerStatus interface {
	Status() mqtt.Status
}

// ClientCounter reports connected websocket clients.
// Implemented by realtime.Hub.
type ClientCounter interface {
	Count() int
}

// WatchdogGauge reports machines with a running watchdog.
// Implemented by service.WatchdogRegistry.
type WatchdogGauge interface {
	Len() int
}

// ArchiveHealth checks the reading archive.
// Implemented by influx.Writer.
type ArchiveHealth interface {
	Health(ctx context.Context) error
}

const archiveHealthTimeout = 2 * time.Second

type HealthHandler struct {
	broker   BrokerStatus
	clients  ClientCounter
	watchdog WatchdogGauge
	archive  ArchiveHealth
	shift    string
}

func NewHealthHandler(broker BrokerStatus, clients ClientCounter, watchdog WatchdogGauge, shift string) *HealthHandler {
	return &HealthHandler{
		broker:   broker,
		clients:  clients,
		watchdog: watchdog,
		shift:    shift,
	}
}

// WithArchive adds the reading archive to the report
func (h *HealthHandler) WithArchive(archive ArchiveHealth) *HealthHandler {
	h.archive = archive
	return h
}

// Check reports 503 while the broker connection is down. An unreachable
// archive marks the service degraded but keeps 200, readings are still
// accounted without it.
func (h *HealthHandler) Check(c *gin.Context) {
	broker := h.broker.Status()

	status, code := "healthy", http.StatusOK
	data := gin.H{
		"service":          "spray-machine-monitoring",
		"mqtt":             broker,
		"websocketClients": h.clients.Count(),
		"trackedMachines":  h.watchdog.Len(),
		"shift":            h.shift,
	}

	if h.archive != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), archiveHealthTimeout)
		err := h.archive.Health(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			data["influx"] = gin.H{"connected": false, "error": err.Error()}
		} else {
			data["influx"] = gin.H{"connected": true}
		}
	}

	if !broker.Connected {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	data["status"] = status

	c.JSON(code, gin.H{
		"success": broker.Connected,
		"data":    data,
	})
}
