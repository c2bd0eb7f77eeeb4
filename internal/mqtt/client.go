// Package mqtt consumes spray machine telemetry from the broker.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"spray-machine-monitoring/internal/config"
)

const (
	// QoS of the telemetry subscription; readings are best-effort.
	QoS = 0
	// ControlQoS is used for messages this service publishes.
	ControlQoS = 1

	connectTimeout = 30 * time.Second
)

// Status describes the broker connection for the health endpoint.
type Status struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Topic     string `json:"topic"`
	ClientID  string `json:"clientId"`
}

// Client wraps a paho client subscribed to the telemetry topic.
type Client struct {
	client   pahomqtt.Client
	broker   string
	topic    string
	clientID string
}

// Connect dials the broker and subscribes to the telemetry topic on
// every (re)connect. Messages are delivered to handler one at a time,
// in arrival order.
func Connect(cfg config.MQTTConfig, handler Handler) (*Client, error) {
	c := &Client{
		broker:   cfg.Broker,
		topic:    cfg.Topic,
		clientID: fmt.Sprintf("%s_%s", cfg.ClientID, uuid.NewString()[:8]),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(c.clientID).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(5 * time.Second).
		SetConnectTimeout(connectTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	onMessage := messageHandler(handler)
	opts.SetOnConnectHandler(func(client pahomqtt.Client) {
		log.Printf("[MQTT] Connected to %s", c.broker)
		if err := subscribe(client, c.topic, onMessage); err != nil {
			log.Printf("[MQTT] %v", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Printf("[MQTT] Connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		log.Println("[MQTT] Reconnecting...")
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out after %s", cfg.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return c, nil
}

func subscribe(client pahomqtt.Client, topic string, onMessage pahomqtt.MessageHandler) error {
	token := client.Subscribe(topic, QoS, onMessage)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	log.Printf("[MQTT] Subscribed to %s QoS=%d", topic, QoS)
	return nil
}

// Publish sends v as JSON to topic.
func (c *Client) Publish(topic string, v interface{}) error {
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt publish %s: not connected", topic)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	token := c.client.Publish(topic, ControlQoS, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, token.Error())
	}
	return nil
}

// Status reports the current connection state.
func (c *Client) Status() Status {
	return Status{
		Connected: c.client.IsConnectionOpen(),
		Broker:    c.broker,
		Topic:     c.topic,
		ClientID:  c.clientID,
	}
}

// Disconnect waits up to 250ms for in-flight work, then closes.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	log.Println("[MQTT] Disconnected")
}
