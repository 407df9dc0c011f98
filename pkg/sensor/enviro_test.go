package sensor

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ericogr/enviro-to-mqtt/pkg/config"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

type failingWeather struct{}

func (failingWeather) ReadWeather() (WeatherReading, error) {
	return WeatherReading{}, errors.New("bme280 nack")
}
func (failingWeather) Close() error { return nil }

type failingLight struct{}

func (failingLight) ReadLight() (LightReading, error) { return LightReading{}, errors.New("ltr559 nack") }
func (failingLight) Close() error                      { return nil }

func TestEnviroPartialFailure(t *testing.T) {
	e := NewEnviro(failingWeather{}, FakeLight{}, nil, zap.NewNop())
	r, err := e.Read()
	if err != nil {
		t.Fatalf("partial failure should not error: %v", err)
	}
	if r.Weather != nil || r.Light == nil || r.Gas != nil {
		t.Fatalf("unexpected reading %+v", r)
	}
	if r.MeasuredAt.IsZero() {
		t.Fatalf("measured at not set")
	}
}

func TestEnviroAllFailed(t *testing.T) {
	e := NewEnviro(failingWeather{}, failingLight{}, nil, zap.NewNop())
	if _, err := e.Read(); err == nil {
		t.Fatalf("expected error when every member fails")
	}
}

func TestEnviroEmpty(t *testing.T) {
	e := NewEnviro(nil, nil, nil, zap.NewNop())
	if !e.Empty() {
		t.Fatalf("expected empty group")
	}
	if e.Close() != nil {
		t.Fatalf("close of empty group should succeed")
	}
}

func TestWeatherFromEnv(t *testing.T) {
	env := physic.Env{
		Temperature: physic.ZeroCelsius + 22500*physic.MilliKelvin,
		Pressure:    101325 * physic.Pascal,
		Humidity:    45 * physic.PercentRH,
	}
	w := weatherFromEnv(env)
	if math.Abs(w.Temperature-22.5) > 1e-6 {
		t.Fatalf("temperature %f", w.Temperature)
	}
	if math.Abs(w.Pressure-1013.25) > 1e-6 {
		t.Fatalf("pressure %f", w.Pressure)
	}
	if math.Abs(w.Humidity-45) > 1e-6 {
		t.Fatalf("humidity %f", w.Humidity)
	}
}

func TestOpenSimulated(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.General.SensorType = config.SensorTypeSimulation
	cfg.PM.PowerCyclingEnabled = false
	set := Open(cfg, zap.NewNop())
	if set.CO2 == nil || set.Environment == nil || set.Particulate == nil {
		t.Fatalf("expected every simulated group, got %+v", set)
	}
	if _, err := set.CO2.Read(); err != nil {
		t.Fatalf("co2: %v", err)
	}
	env, err := set.Environment.Read()
	if err != nil || env.Weather == nil || env.Light == nil || env.Gas != nil {
		t.Fatalf("env %+v err %v", env, err)
	}
	if err := set.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpenSimulatedDisabledGroups(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.General.SensorType = config.SensorTypeSimulation
	cfg.SCD41.Enabled = false
	cfg.Enviro.Enabled = false
	cfg.PM.Enabled = false
	set := Open(cfg, zap.NewNop())
	if set.CO2 != nil || set.Environment != nil || set.Particulate != nil {
		t.Fatalf("expected all groups disabled, got %+v", set)
	}
}

func TestFakeSerialSilentWhileAsleep(t *testing.T) {
	line := &FakeLine{}
	p := newPMS5003(NewFakeSerial(line, 0), time.Second)
	if _, err := p.ReadFrame(); !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("expected timeout with line low, got %v", err)
	}
	_ = line.Out(gpio.High)
	f, err := p.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Standard[1] < 5 {
		t.Fatalf("unexpected frame %+v", f)
	}
}
