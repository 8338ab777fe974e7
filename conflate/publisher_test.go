package conflate

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewPublisher(t *testing.T) {
	p := NewPublisher(nil, "")
	if p.MatchesTopic() != "conflate/matches" {
		t.Errorf("MatchesTopic() = %q, want conflate/matches", p.MatchesTopic())
	}
	if p.StatusTopic() != "conflate/status" {
		t.Errorf("StatusTopic() = %q, want conflate/status", p.StatusTopic())
	}

	p = NewPublisher(nil, "site/a")
	if p.MatchesTopic() != "site/a/matches" {
		t.Errorf("MatchesTopic() = %q, want site/a/matches", p.MatchesTopic())
	}
}

func TestPublisher_NotConnected(t *testing.T) {
	if err := NewPublisher(nil, "x").PublishStatus(StatusRunning, "", ""); err == nil {
		t.Error("nil client should fail to publish")
	}

	broker := newFakeBroker()
	p := NewPublisher(broker, "x")
	if err := p.PublishRun(&Run{ID: "r"}); err == nil {
		t.Error("disconnected client should fail to publish")
	}
	if len(broker.sent()) != 0 {
		t.Error("nothing should be published while disconnected")
	}
}

func TestPublisher_PublishRun(t *testing.T) {
	broker := newFakeBroker()
	broker.setConnected(true)
	p := NewPublisher(broker, "conflate")

	if err := p.PublishRun(sampleRun(t)); err != nil {
		t.Fatalf("PublishRun: %v", err)
	}

	msgs := broker.sent()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.Topic != "conflate/matches" || !msg.Retain || msg.QoS != 1 {
		t.Errorf("message = %s retain=%v qos=%d", msg.Topic, msg.Retain, msg.QoS)
	}

	var decoded struct {
		ID    string `json:"id"`
		Pairs []struct {
			Target    string  `json:"target"`
			Candidate string  `json:"candidate"`
			Score     float64 `json:"score"`
		} `json:"pairs"`
		Unmatched []string `json:"unmatched"`
	}
	if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.ID != "run-1" || len(decoded.Pairs) != 1 {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.Pairs[0].Target != "ref/0" || decoded.Pairs[0].Candidate != "sub/3" || decoded.Pairs[0].Score != 0.8 {
		t.Errorf("pair = %+v", decoded.Pairs[0])
	}
	if len(decoded.Unmatched) != 1 || decoded.Unmatched[0] != "ref/1" {
		t.Errorf("unmatched = %v", decoded.Unmatched)
	}
}

func TestPublisher_PublishStatus(t *testing.T) {
	broker := newFakeBroker()
	broker.setConnected(true)
	p := NewPublisher(broker, "conflate")

	before := time.Now().Unix()
	if err := p.PublishStatus(StatusDone, "run-7", "2 pairs"); err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}

	msgs := broker.sent()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].Topic != "conflate/status" || msgs[0].Retain {
		t.Errorf("status published to %s retain=%v", msgs[0].Topic, msgs[0].Retain)
	}

	var st Status
	if err := json.Unmarshal(msgs[0].Payload, &st); err != nil {
		t.Fatal(err)
	}
	if st.State != StatusDone || st.RunID != "run-7" || st.Message != "2 pairs" {
		t.Errorf("status = %+v", st)
	}
	if st.Timestamp < before {
		t.Errorf("timestamp %d before %d", st.Timestamp, before)
	}
}

func TestPublisher_PublishError(t *testing.T) {
	broker := newFakeBroker()
	broker.setConnected(true)
	broker.publishErr = errors.New("quota exceeded")

	err := NewPublisher(broker, "conflate").PublishStatus(StatusFailed, "", "boom")
	if err == nil || !errors.Is(err, broker.publishErr) {
		t.Errorf("error = %v, want wrapped publish error", err)
	}
}
