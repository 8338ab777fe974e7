package conflate

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Status values published to <prefix>/status.
const (
	StatusWaiting   = "waiting"
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Status is the payload published to <prefix>/status.
type Status struct {
	State     string `json:"state"`
	RunID     string `json:"runId,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Publisher publishes run results to MQTT.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
}

// NewPublisher creates a publisher. If client is nil, publishing is disabled.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "conflate"
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,
	}
}

// MatchesTopic returns the retained topic carrying the latest run.
func (p *Publisher) MatchesTopic() string {
	return p.publishPrefix + "/matches"
}

// StatusTopic returns the topic carrying run status updates.
func (p *Publisher) StatusTopic() string {
	return p.publishPrefix + "/status"
}

// PublishRun publishes run as retained JSON to <prefix>/matches.
func (p *Publisher) PublishRun(run *Run) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	if err := p.publish(p.MatchesTopic(), true, payload); err != nil {
		return err
	}
	log.Printf("[MQTT] Published run %s (%d pairs) to %s", run.ID, len(run.Pairs), p.MatchesTopic())
	return nil
}

// PublishStatus publishes a status update to <prefix>/status.
func (p *Publisher) PublishStatus(state, runID, message string) error {
	payload, err := json.Marshal(Status{
		State:     state,
		RunID:     runID,
		Message:   message,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshaling status: %w", err)
	}
	return p.publish(p.StatusTopic(), false, payload)
}

func (p *Publisher) publish(topic string, retain bool, payload []byte) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	token := p.client.Publish(topic, p.qos, retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}
