package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ericogr/enviro-to-mqtt/pkg/aggregator"
	"github.com/ericogr/enviro-to-mqtt/pkg/config"
	"github.com/ericogr/enviro-to-mqtt/pkg/sensor"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublish(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaOutput{w: w, key: []byte("pi"), logger: zap.NewNop()}
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := aggregator.Snapshot{Timestamp: ts, CO2: &sensor.CO2Reading{CO2: 640}}
	if err := k.Publish(s); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("got %d messages", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "pi" || !msg.Time.Equal(ts) {
		t.Fatalf("unexpected message %+v", msg)
	}
	var got aggregator.Snapshot
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.CO2 == nil || got.CO2.CO2 != 640 || got.Particulate != nil {
		t.Fatalf("decoded %+v", got)
	}
	if err := k.Close(); err != nil || !w.closed {
		t.Fatalf("close: %v closed=%v", err, w.closed)
	}
}

func TestKafkaPublishError(t *testing.T) {
	broker := errors.New("leader not available")
	k := &KafkaOutput{w: &fakeWriter{err: broker}, logger: zap.NewNop()}
	if err := k.Publish(aggregator.Snapshot{}); !errors.Is(err, broker) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}

func TestNewKafkaRequiresBrokers(t *testing.T) {
	if _, err := NewKafka(config.KafkaConfig{Topic: "t"}, zap.NewNop()); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
