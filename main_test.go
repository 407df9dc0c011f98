package main

import (
	"context"
	"testing"
	"time"

	"github.com/ericogr/enviro-to-mqtt/pkg/aggregator"
	"github.com/ericogr/enviro-to-mqtt/pkg/config"
	"github.com/ericogr/enviro-to-mqtt/pkg/output"
	"github.com/ericogr/enviro-to-mqtt/pkg/sensor"
	"go.uber.org/zap"
)

func TestInitOutputs(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{
		{Type: "console"},
		{Type: "display", Display: &config.DisplayConfig{Screens: []string{"co2"}}},
		{Type: "http", HTTP: &config.HTTPConfig{Listen: "127.0.0.1:0"}},
	}}
	entries, err := initOutputs(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("initOutputs: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries len: %d", len(entries))
	}
	if entries[2].Name != "http" {
		t.Fatalf("entry name %q", entries[2].Name)
	}
	if err := output.CloseAll(entries); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
}

func TestInitOutputsUnknownType(t *testing.T) {
	cfg := config.Config{Outputs: []config.OutputConfig{{Type: "console"}, {Type: "carrier-pigeon"}}}
	if _, err := initOutputs(cfg, zap.NewNop()); err == nil {
		t.Fatalf("expected error for unknown output")
	}
}

type recordingOutput struct {
	snapshots []aggregator.Snapshot
}

func (r *recordingOutput) Publish(s aggregator.Snapshot) error {
	r.snapshots = append(r.snapshots, s)
	return nil
}

func (r *recordingOutput) Close() error { return nil }

func TestTickPublishesSnapshot(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.General.SensorType = config.SensorTypeSimulation
	cfg.PM.PowerCyclingEnabled = false
	set := sensor.Open(cfg, zap.NewNop())
	defer set.Close()

	rec := &recordingOutput{}
	agg := aggregator.New(set.CO2, set.Particulate, set.Environment, zap.NewNop())
	tick := newTick(context.Background(), agg, []output.Entry{{Name: "rec", Output: rec}}, 0, zap.NewNop())
	tick()

	if len(rec.snapshots) != 1 {
		t.Fatalf("got %d snapshots", len(rec.snapshots))
	}
	s := rec.snapshots[0]
	if s.CO2 == nil || s.Environment == nil || s.Particulate == nil {
		t.Fatalf("incomplete snapshot %+v", s)
	}
}

type countingCO2 struct {
	reads int
}

func (c *countingCO2) Read() (sensor.CO2Reading, error) {
	c.reads++
	return sensor.CO2Reading{CO2: 400 + c.reads}, nil
}

func (c *countingCO2) Close() error { return nil }

func TestFirstTickSettlesAndRereads(t *testing.T) {
	co2 := &countingCO2{}
	rec := &recordingOutput{}
	agg := aggregator.New(co2, nil, nil, zap.NewNop())
	tick := newTick(context.Background(), agg, []output.Entry{{Name: "rec", Output: rec}}, 10*time.Millisecond, zap.NewNop())

	tick()
	if co2.reads != 2 || len(rec.snapshots) != 1 {
		t.Fatalf("first tick: reads=%d published=%d", co2.reads, len(rec.snapshots))
	}
	if rec.snapshots[0].CO2.CO2 != 402 {
		t.Fatalf("published the settling read: %+v", rec.snapshots[0].CO2)
	}

	tick()
	if co2.reads != 3 || len(rec.snapshots) != 2 {
		t.Fatalf("second tick: reads=%d published=%d", co2.reads, len(rec.snapshots))
	}
}

func TestFirstTickSettleCancelled(t *testing.T) {
	co2 := &countingCO2{}
	rec := &recordingOutput{}
	agg := aggregator.New(co2, nil, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	newTick(ctx, agg, []output.Entry{{Name: "rec", Output: rec}}, time.Hour, zap.NewNop())()
	if co2.reads != 1 || len(rec.snapshots) != 0 {
		t.Fatalf("reads=%d published=%d", co2.reads, len(rec.snapshots))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.General.SensorType = config.SensorTypeSimulation
	cfg.PM.Enabled = false
	cfg.Outputs = nil

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zap.NewNop()) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
}
