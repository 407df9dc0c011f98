package sensor

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ericogr/enviro-to-mqtt/pkg/config"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
)

// FakeLine is an in-memory enable line.
type FakeLine struct {
	mu    sync.Mutex
	level gpio.Level
	Err   error
}

func (l *FakeLine) Out(level gpio.Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	l.level = level
	return nil
}

func (l *FakeLine) Level() gpio.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// FakeSerial streams well-formed PMS5003 frames while its line is high and
// stays silent otherwise. DropRate is the chance that a read times out.
type FakeSerial struct {
	Line     *FakeLine
	DropRate float64

	mu      sync.Mutex
	pending []byte
	rnd     *rand.Rand
}

func NewFakeSerial(line *FakeLine, dropRate float64) *FakeSerial {
	return &FakeSerial{Line: line, DropRate: dropRate, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (f *FakeSerial) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Line != nil && f.Line.Level() == gpio.Low {
		f.pending = nil
		return 0, nil
	}
	if len(f.pending) == 0 {
		if f.rnd.Float64() < f.DropRate {
			return 0, nil
		}
		pm25 := uint16(5 + f.rnd.Intn(30))
		f.pending = encodePMSFrame(PMSFrame{
			Standard:    [3]uint16{pm25 * 2 / 3, pm25, pm25 + uint16(f.rnd.Intn(10))},
			Atmospheric: [3]uint16{pm25 * 2 / 3, pm25, pm25 + 3},
			Counts:      [6]uint16{uint16(300 + f.rnd.Intn(500)), 120, 40, 8, 2, 1},
		})
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *FakeSerial) Close() error { return nil }

// FakeCO2 drifts around a typical indoor level.
type FakeCO2 struct {
	mu  sync.Mutex
	co2 float64
}

func (f *FakeCO2) Read() (CO2Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.co2 == 0 {
		f.co2 = 600
	}
	f.co2 += rand.Float64()*60 - 30
	if f.co2 < 400 {
		f.co2 = 400
	}
	return CO2Reading{
		CO2:         int(f.co2),
		Temperature: 21 + rand.Float64()*2,
		Humidity:    40 + rand.Float64()*10,
		MeasuredAt:  time.Now(),
	}, nil
}

func (f *FakeCO2) Close() error { return nil }

type FakeWeather struct{}

func (FakeWeather) ReadWeather() (WeatherReading, error) {
	return WeatherReading{
		Temperature: 20 + rand.Float64()*3,
		Humidity:    38 + rand.Float64()*12,
		Pressure:    1005 + rand.Float64()*15,
	}, nil
}

func (FakeWeather) Close() error { return nil }

type FakeLight struct{}

func (FakeLight) ReadLight() (LightReading, error) {
	return LightReading{Lux: rand.Float64() * 400, Proximity: rand.Intn(50)}, nil
}

func (FakeLight) Close() error { return nil }

type FakeGas struct{}

func (FakeGas) ReadGas() (GasReading, error) {
	return GasReading{
		Oxidising: gasResistance(0.4 + rand.Float64()*0.2),
		Reducing:  gasResistance(1.8 + rand.Float64()*0.4),
		NH3:       gasResistance(1.2 + rand.Float64()*0.3),
	}, nil
}

func (FakeGas) Close() error { return nil }

// openSimulated mirrors Open with in-memory devices. The particulate path still
// runs the real frame parser and duty cycle.
func openSimulated(cfg config.Config, logger *zap.Logger) *Set {
	set := &Set{}
	if cfg.SCD41.Enabled {
		set.CO2 = &FakeCO2{}
	}
	if cfg.Enviro.Enabled {
		env := NewEnviro(nil, nil, nil, logger)
		if cfg.Enviro.TemperatureHumidity {
			env.Weather = FakeWeather{}
		}
		if cfg.Enviro.Light {
			env.Light = FakeLight{}
		}
		if cfg.Enviro.GasSensors {
			env.Gas = FakeGas{}
		}
		if !env.Empty() {
			set.Environment = env
		}
	}
	if cfg.PM.Enabled {
		line := &FakeLine{}
		frames := newPMS5003(NewFakeSerial(line, 0.1), cfg.PM.ReadTimeout())
		pm, err := NewPowerControlledSensor(line, frames, PowerConfig{
			CyclingEnabled: cfg.PM.PowerCyclingEnabled,
			Warmup:         cfg.PM.Warmup(),
			Sleep:          cfg.PM.Sleep(),
		}, logger.Named("pms5003"), WithRetryPolicy(RetryPolicy{MaxAttempts: 3, Backoff: 100 * time.Millisecond}))
		if err != nil {
			logger.Error("failed to initialize simulated pm sensor", zap.Error(err))
		} else {
			set.Particulate = pm
		}
	}
	logger.Info("using simulated sensors")
	return set
}
