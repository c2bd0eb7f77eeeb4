package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"spray-machine-monitoring/internal/accounting"
	"spray-machine-monitoring/internal/models"
)

// handlerTimeout bounds the processing of one message.
const handlerTimeout = 15 * time.Second

var ErrMalformedPayload = errors.New("malformed telemetry payload")

// Handler processes one decoded reading.
type Handler func(ctx context.Context, msg models.TelemetryMessage) error

type payload struct {
	MachineID        string   `json:"machineId"`
	Status           *float64 `json:"status"`
	PowerConsumption *float64 `json:"powerConsumption"`
}

// Decode parses a telemetry message body. Status codes other than 1 and
// 0 are read as an error signal; a missing field is malformed.
func Decode(body []byte, receivedAt time.Time) (models.TelemetryMessage, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return models.TelemetryMessage{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	switch {
	case p.MachineID == "":
		return models.TelemetryMessage{}, fmt.Errorf("%w: missing machineId", ErrMalformedPayload)
	case p.Status == nil:
		return models.TelemetryMessage{}, fmt.Errorf("%w: missing status", ErrMalformedPayload)
	case p.PowerConsumption == nil:
		return models.TelemetryMessage{}, fmt.Errorf("%w: missing powerConsumption", ErrMalformedPayload)
	}
	return models.TelemetryMessage{
		MachineID:        p.MachineID,
		Status:           accounting.NormalizeStatus(*p.Status),
		PowerConsumption: *p.PowerConsumption,
		ReceivedAt:       receivedAt,
	}, nil
}

func messageHandler(handler Handler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[MQTT] Recovered from panic topic=%s: %v", msg.Topic(), r)
			}
		}()

		data, err := Decode(msg.Payload(), time.Now())
		if err != nil {
			log.Printf("[MQTT] Dropped message topic=%s: %v", msg.Topic(), err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		if err := handler(ctx, data); err != nil {
			log.Printf("[MQTT] Error processing %s topic=%s: %v", data.MachineID, msg.Topic(), err)
		}
	}
}
