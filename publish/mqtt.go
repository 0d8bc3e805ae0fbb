package publish

import (
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/andy-wilson/thermostat_dashboard/dashboard"
)

// MQTTPublisher publishes to a real broker.
type MQTTPublisher struct {
	client paho.Client
	topic  string
}

// NewMQTTPublisher connects to broker and publishes on topic.
func NewMQTTPublisher(broker, clientID, topic string) (*MQTTPublisher, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	if err := connect(client, 10*time.Second); err != nil {
		return nil, err
	}
	return &MQTTPublisher{client: client, topic: topic}, nil
}

// connect waits up to timeout for the first connection. On failure the client
// is disconnected so its retry loop stops.
func connect(client paho.Client, timeout time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return errors.New("connection timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return errors.Wrap(err, "connect to broker")
	}
	return nil
}

// PublishHealth sends the report retained at QoS 1 so late subscribers see
// the last known state.
func (p *MQTTPublisher) PublishHealth(report dashboard.HealthReport) error {
	payload, err := FormatPayload(report, time.Now())
	if err != nil {
		return errors.Wrap(err, "format payload")
	}

	token := p.client.Publish(p.topic, 1, true, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		return errors.Wrap(err, "publish")
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *MQTTPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
