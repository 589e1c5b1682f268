package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"dechatter/internal/stats"
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	prefix string
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker, clientID, topicPrefix string) (*RealPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{
		client: client,
		prefix: topicPrefix,
	}, nil
}

// PublishInterval sends a periodic snapshot to the broker.
func (p *RealPublisher) PublishInterval(snap stats.Snapshot) error {
	payload, err := FormatSnapshot(snap)
	if err != nil {
		return fmt.Errorf("format snapshot: %w", err)
	}

	// QoS 0 (at-most-once), not retained: a missed interval dump is
	// replaced by the next one anyway.
	token := p.client.Publish(p.prefix+"/"+TopicInterval, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishFinal sends the end-of-run snapshot to the broker.
func (p *RealPublisher) PublishFinal(snap stats.Snapshot) error {
	payload, err := FormatSnapshot(snap)
	if err != nil {
		return fmt.Errorf("format snapshot: %w", err)
	}

	// QoS 1 (at-least-once) and retained: the last run's report should
	// reach late subscribers.
	token := p.client.Publish(p.prefix+"/"+TopicFinal, 1, true, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish final: timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish final: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
