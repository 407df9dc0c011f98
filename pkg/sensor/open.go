package sensor

import (
	"errors"
	"fmt"

	"github.com/ericogr/enviro-to-mqtt/pkg/config"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Set holds the sensors that came up at start. A nil member is disabled for
// the lifetime of the process.
type Set struct {
	CO2         CO2Sensor
	Particulate ParticulateSensor
	Environment EnvironmentSensor

	bus i2c.BusCloser
}

// Open initializes every configured sensor. Hardware that cannot be reached
// is reported once here and left out of the set.
func Open(cfg config.Config, logger *zap.Logger) *Set {
	if cfg.General.SensorType == config.SensorTypeSimulation {
		return openSimulated(cfg, logger)
	}

	set := &Set{}
	if _, err := host.Init(); err != nil {
		logger.Error("host init failed, all sensors disabled", zap.Error(err))
		return set
	}

	if cfg.SCD41.Enabled || cfg.Enviro.Enabled {
		bus, err := i2creg.Open(cfg.I2C.Bus)
		if err != nil {
			logger.Error("failed to open i2c bus, co2 and enviro sensors disabled",
				zap.String("bus", cfg.I2C.Bus), zap.Error(err))
		} else {
			set.bus = bus
		}
	}

	if cfg.SCD41.Enabled && set.bus != nil {
		co2, err := NewSCD41(set.bus, cfg.SCD41)
		if err != nil {
			logger.Error("failed to initialize scd41, disabled", zap.Error(err))
		} else {
			logger.Info("scd41 initialized", zap.Int("altitude", cfg.SCD41.Altitude))
			set.CO2 = co2
		}
	}

	if cfg.Enviro.Enabled && set.bus != nil {
		if env := openEnviro(set.bus, cfg.Enviro, logger); env != nil {
			set.Environment = env
		}
	}

	if cfg.PM.Enabled {
		pm, err := openParticulate(cfg.PM, logger)
		if err != nil {
			logger.Error("failed to initialize pms5003, disabled", zap.Error(err))
		} else {
			set.Particulate = pm
		}
	}
	return set
}

func openEnviro(bus i2c.Bus, cfg config.EnviroConfig, logger *zap.Logger) *Enviro {
	env := NewEnviro(nil, nil, nil, logger)
	if cfg.TemperatureHumidity {
		if b, err := NewBME280(bus, uint16(cfg.BME280Address)); err != nil {
			logger.Error("failed to initialize bme280", zap.Error(err))
		} else {
			logger.Info("bme280 initialized (temp, humidity, pressure)")
			env.Weather = b
		}
	}
	if cfg.Light {
		if l, err := NewLTR559(bus, uint16(cfg.LTR559Address)); err != nil {
			logger.Error("failed to initialize light sensor", zap.Error(err))
		} else {
			logger.Info("ltr559 initialized (light, proximity)")
			env.Light = l
		}
	}
	if cfg.GasSensors {
		var heater gpio.PinOut
		if cfg.GasHeaterPin != "" {
			if p := gpioreg.ByName(cfg.GasHeaterPin); p != nil {
				heater = p
			} else {
				logger.Warn("gas heater pin not found", zap.String("pin", cfg.GasHeaterPin))
			}
		}
		if g, err := NewMICS6814(bus, uint16(cfg.ADS1015Address), heater); err != nil {
			logger.Error("failed to initialize gas sensors", zap.Error(err))
		} else {
			logger.Info("gas sensors initialized")
			env.Gas = g
		}
	}
	if env.Empty() {
		logger.Error("no enviro sensor could be initialized, group disabled")
		return nil
	}
	return env
}

func openParticulate(cfg config.PMConfig, logger *zap.Logger) (*PowerControlledSensor, error) {
	pin := gpioreg.ByName(cfg.EnablePin)
	if pin == nil {
		return nil, fmt.Errorf("enable pin %q not found", cfg.EnablePin)
	}
	frames, err := OpenPMS5003(cfg.DevicePath, cfg.BaudRate, cfg.ReadTimeout())
	if err != nil {
		return nil, err
	}
	pm, err := NewPowerControlledSensor(pin, frames, PowerConfig{
		CyclingEnabled: cfg.PowerCyclingEnabled,
		Warmup:         cfg.Warmup(),
		Sleep:          cfg.Sleep(),
	}, logger.Named("pms5003"))
	if err != nil {
		_ = frames.Close()
		return nil, err
	}
	logger.Info("pms5003 initialized (particulate matter)", zap.String("device", cfg.DevicePath))
	return pm, nil
}

// Close shuts every sensor down, leaving the PM sensor powered, then releases
// the shared bus.
func (s *Set) Close() error {
	var errs []error
	if s.Particulate != nil {
		errs = append(errs, s.Particulate.Shutdown())
	}
	if s.CO2 != nil {
		errs = append(errs, s.CO2.Close())
	}
	if s.Environment != nil {
		errs = append(errs, s.Environment.Close())
	}
	if s.bus != nil {
		errs = append(errs, s.bus.Close())
	}
	return errors.Join(errs...)
}
