// Package mqttreport implements the MQTT report transport collaborator
// (§6): publishing a session's textual and binary reports to its
// configured topic over a broker connection, satisfying session.ReportSink.
//
// Grounded on the teacher's MQTTAdapter (mqtt_adapter.go): the same
// paho.mqtt.golang client-options construction, broker-prefix
// normalisation, and OnConnect/OnConnectionLost logging, repurposed from
// zigbee2mqtt device-discovery subscriptions to a plain publish-only
// report sink.
package mqttreport

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config is the subset of broker connection settings a report sink needs.
type Config struct {
	Broker   string
	Username string
	Password string
	ClientID string
	QoS      byte
}

// Sink publishes reports over MQTT, implementing session.ReportSink.
type Sink struct {
	client mqtt.Client
	qos    byte
}

// New connects to the configured broker and returns a ready Sink.
func New(cfg Config) (*Sink, error) {
	broker := strings.TrimSpace(cfg.Broker)
	if broker == "" {
		return nil, errors.New("mqttreport: empty broker address")
	}
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("iotm-%d", time.Now().UnixNano())
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetKeepAlive(30 * time.Second).
		SetConnectTimeout(8 * time.Second).
		SetOrderMatters(false)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	s := &Sink{qos: cfg.QoS}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("[mqttreport] connection lost: %v", err)
	}
	opts.OnConnect = func(_ mqtt.Client) {
		log.Printf("[mqttreport] connected to %s", broker)
	}

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.New("mqttreport: connect timeout after 10s")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqttreport: connect failed: %w", err)
	}
	return s, nil
}

// SendReport publishes json to topic.
func (s *Sink) SendReport(topic, json string) error {
	if topic == "" {
		return errors.New("mqttreport: empty topic")
	}
	token := s.client.Publish(topic, s.qos, false, json)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqttreport: publish timeout for topic %q", topic)
	}
	return token.Error()
}

// SendPBReport publishes a binary payload to topic.
func (s *Sink) SendPBReport(topic string, payload []byte) error {
	if topic == "" {
		return errors.New("mqttreport: empty topic")
	}
	token := s.client.Publish(topic, s.qos, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqttreport: publish timeout for topic %q", topic)
	}
	return token.Error()
}

// Close disconnects the underlying client.
func (s *Sink) Close() {
	if s.client != nil && s.client.IsConnectionOpen() {
		s.client.Disconnect(250)
	}
}
