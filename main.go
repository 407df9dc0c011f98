package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ericogr/enviro-to-mqtt/pkg/aggregator"
	"github.com/ericogr/enviro-to-mqtt/pkg/config"
	"github.com/ericogr/enviro-to-mqtt/pkg/output"
	"github.com/ericogr/enviro-to-mqtt/pkg/output/console"
	"github.com/ericogr/enviro-to-mqtt/pkg/output/display"
	"github.com/ericogr/enviro-to-mqtt/pkg/output/httpapi"
	"github.com/ericogr/enviro-to-mqtt/pkg/output/kafka"
	"github.com/ericogr/enviro-to-mqtt/pkg/output/mqtt"
	"github.com/ericogr/enviro-to-mqtt/pkg/schedule"
	"github.com/ericogr/enviro-to-mqtt/pkg/sensor"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("enviro-to-mqtt starting")
	cfg.PrintConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	sensors := sensor.Open(cfg, logger.Named("sensor"))
	agg := aggregator.New(sensors.CO2, sensors.Particulate, sensors.Environment, logger.Named("aggregator"))

	entries, err := initOutputs(cfg, logger)
	if err != nil {
		if cerr := sensors.Close(); cerr != nil {
			logger.Error("sensor shutdown failed", zap.Error(cerr))
		}
		return err
	}

	tick := newTick(ctx, agg, entries, cfg.SettleDelay(), logger)
	sched, err := schedule.New(cfg.UpdateInterval(), tick, logger.Named("schedule"))
	if err != nil {
		_ = output.CloseAll(entries)
		_ = sensors.Close()
		return err
	}
	sched.Start()

	<-ctx.Done()
	logger.Info("shutting down")
	sched.Stop()
	if err := sensors.Close(); err != nil {
		logger.Error("sensor shutdown failed", zap.Error(err))
	}
	if err := output.CloseAll(entries); err != nil {
		logger.Error("output shutdown failed", zap.Error(err))
	}
	return nil
}

// newTick returns the scheduled job. The first run reads once, waits settle
// for the sensors to stabilise and publishes a second read instead.
func newTick(ctx context.Context, agg *aggregator.Aggregator, entries []output.Entry, settle time.Duration, logger *zap.Logger) func() {
	first := true
	return func() {
		s := agg.ReadAll()
		if first && settle > 0 {
			first = false
			logger.Info("waiting for sensors to settle", zap.Duration("settle", settle))
			t := time.NewTimer(settle)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			s = agg.ReadAll()
		}
		output.PublishAll(entries, s, logger)
	}
}

// initOutputs builds every configured output. On failure the outputs created
// so far are closed.
func initOutputs(cfg config.Config, logger *zap.Logger) ([]output.Entry, error) {
	var entries []output.Entry
	for i, oc := range cfg.Outputs {
		var (
			o   output.Output
			err error
		)
		switch oc.Type {
		case config.OutputConsole:
			o = console.NewConsole()
		case config.OutputDisplay:
			var screens []string
			if oc.Display != nil {
				screens = oc.Display.Screens
			}
			o = display.New(screens)
		case config.OutputMQTT:
			o, err = mqtt.NewMQTT(*oc.MQTT, logger.Named("mqtt"))
		case config.OutputKafka:
			o, err = kafka.NewKafka(*oc.Kafka, logger.Named("kafka"))
		case config.OutputHTTP:
			o, err = httpapi.NewHTTP(*oc.HTTP, logger.Named("http"))
		default:
			err = fmt.Errorf("unknown output type %q", oc.Type)
		}
		if err != nil {
			_ = output.CloseAll(entries)
			return nil, fmt.Errorf("output %d (%s): %w", i, oc.Type, err)
		}
		entries = append(entries, output.Entry{Name: oc.Type, Output: o})
	}
	return entries, nil
}
