package aggregator

import (
	"errors"
	"fmt"
	"time"

	"github.com/ericogr/enviro-to-mqtt/pkg/sensor"
	"go.uber.org/zap"
)

// Aggregator reads every configured sensor once per tick. A nil source is
// disabled and never read.
type Aggregator struct {
	co2    sensor.CO2Sensor
	pm     sensor.ParticulateSensor
	env    sensor.EnvironmentSensor
	logger *zap.Logger
	now    func() time.Time
}

func New(co2 sensor.CO2Sensor, pm sensor.ParticulateSensor, env sensor.EnvironmentSensor, logger *zap.Logger) *Aggregator {
	a := &Aggregator{co2: co2, pm: pm, env: env, logger: logger, now: time.Now}
	for _, src := range []struct {
		name    string
		enabled bool
	}{{"co2", co2 != nil}, {"particulate", pm != nil}, {"environment", env != nil}} {
		if !src.enabled {
			logger.Warn("sensor disabled", zap.String("sensor", src.name))
		}
	}
	return a
}

// ReadAll reads CO2, then particulate, then the continuous group. It never
// fails: a source that errors or panics is left out of the snapshot.
func (a *Aggregator) ReadAll() Snapshot {
	s := Snapshot{Timestamp: a.now()}
	if a.co2 != nil {
		s.CO2 = guard(a.logger, "co2", a.co2.Read)
	}
	if a.pm != nil {
		s.Particulate = guard(a.logger, "particulate", func() (sensor.ParticulateReading, error) {
			return a.pm.Read(), nil
		})
	}
	if a.env != nil {
		s.Environment = guard(a.logger, "environment", a.env.Read)
	}
	return s
}

func guard[T any](logger *zap.Logger, name string, read func() (T, error)) (out *T) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("sensor read panicked", zap.String("sensor", name), zap.Error(fmt.Errorf("%v", r)))
			out = nil
		}
	}()
	v, err := read()
	switch {
	case errors.Is(err, sensor.ErrNotReady):
		logger.Debug("sensor data not ready", zap.String("sensor", name))
		return nil
	case err != nil:
		logger.Error("error reading sensor", zap.String("sensor", name), zap.Error(err))
		return nil
	}
	return &v
}
