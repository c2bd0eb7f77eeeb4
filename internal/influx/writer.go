// Package influx archives accepted readings as time series points.
package influx

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"spray-machine-monitoring/internal/models"
)

const measurement = "spray_realtime"

// Writer writes one point per accepted reading.
type Writer struct {
	client influxdb2.Client
	api    api.WriteAPIBlocking
}

// NewWriter creates an InfluxDB write API client. Caller should call Close() when done.
func NewWriter(url, token, org, bucket string) *Writer {
	client := influxdb2.NewClient(url, token)
	return &Writer{client: client, api: client.WriteAPIBlocking(org, bucket)}
}

// Close releases the InfluxDB client.
func (w *Writer) Close() {
	w.client.Close()
}

// Health checks that InfluxDB is reachable and the token is valid.
func (w *Writer) Health(ctx context.Context) error {
	_, err := w.client.Health(ctx)
	return err
}

// Archive saves the reading together with the accumulators it produced.
func (w *Writer) Archive(ctx context.Context, msg models.TelemetryMessage, rec *models.ShiftRecord) error {
	if err := w.api.WritePoint(ctx, Point(msg, rec)); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Point builds the archived point. Point time is the receive time.
func Point(msg models.TelemetryMessage, rec *models.ShiftRecord) *write.Point {
	return influxdb2.NewPointWithMeasurement(measurement).
		AddTag("machineId", msg.MachineID).
		AddTag("date", rec.Date).
		AddField("status", int(msg.Status)).
		AddField("powerConsumption", msg.PowerConsumption).
		AddField("totalEnergyConsumed", rec.TotalEnergyConsumed).
		AddField("activeTime", rec.ActiveTime).
		AddField("stopTime", rec.StopTime).
		AddField("errorTime", rec.ErrorTime).
		AddField("efficiency", rec.Efficiency).
		SetTime(msg.ReceivedAt)
}
