/**
 * @description
 * This package owns the MQTT connection used to deliver receipt payloads to
 * venue printer bridges. The publisher is an explicitly owned resource with a
 * connect/publish/close lifecycle: the composition root creates it, passes it
 * into the notification fan-out, and closes it on shutdown.
 *
 * @dependencies
 * - github.com/eclipse/paho.mqtt.golang: The MQTT client library.
 */
package mqttprint

import (
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 10 * time.Second
)

// Publisher publishes receipt payloads to per-venue MQTT topics.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
}

// NewPublisher creates a publisher for the given broker. Connect must be
// called before the first Publish.
func NewPublisher(brokerURL, clientID, topicPrefix string) *Publisher {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("level=warn component=mqtt_publisher msg=\"connection lost\" err=%v", err)
		})

	return &Publisher{
		client:      mqtt.NewClient(opts),
		topicPrefix: topicPrefix,
	}
}

// Connect establishes the broker connection.
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return errors.New("mqtt connect timed out")
	}
	return token.Error()
}

// Publish delivers a payload to the venue's receipt topic at QoS 1. A failed
// publish is retried once after forcing a reconnect; persistent failure is
// returned to the caller, who logs it and moves on (receipt printing is
// best-effort).
func (p *Publisher) Publish(venueID string, payload []byte) error {
	topic := fmt.Sprintf("%s/%s", p.topicPrefix, venueID)

	if err := p.publishOnce(topic, payload); err != nil {
		log.Printf("level=warn component=mqtt_publisher msg=\"publish failed; reconnecting\" topic=%s err=%v", topic, err)
		if !p.client.IsConnected() {
			if connErr := p.Connect(); connErr != nil {
				return fmt.Errorf("reconnect failed: %w", connErr)
			}
		}
		return p.publishOnce(topic, payload)
	}
	return nil
}

func (p *Publisher) publishOnce(topic string, payload []byte) error {
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("mqtt publish timed out")
	}
	return token.Error()
}

// Close disconnects from the broker, allowing in-flight messages to drain.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
