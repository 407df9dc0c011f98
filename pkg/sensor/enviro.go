package sensor

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type WeatherSensor interface {
	ReadWeather() (WeatherReading, error)
	Close() error
}

type LightSensor interface {
	ReadLight() (LightReading, error)
	Close() error
}

type GasSensor interface {
	ReadGas() (GasReading, error)
	Close() error
}

// Enviro is the always-on sensor group. Any member may be nil.
type Enviro struct {
	Weather WeatherSensor
	Light   LightSensor
	Gas     GasSensor

	logger *zap.Logger
	now    func() time.Time
}

func NewEnviro(weather WeatherSensor, light LightSensor, gas GasSensor, logger *zap.Logger) *Enviro {
	return &Enviro{Weather: weather, Light: light, Gas: gas, logger: logger, now: time.Now}
}

// Empty reports whether no member is configured.
func (e *Enviro) Empty() bool {
	return e.Weather == nil && e.Light == nil && e.Gas == nil
}

// Read polls every configured member. Failing members are left nil in the
// result; an error is returned only when all of them failed.
func (e *Enviro) Read() (EnvironmentReading, error) {
	out := EnvironmentReading{MeasuredAt: e.now()}
	var errs []error
	tried := 0

	if e.Weather != nil {
		tried++
		if w, err := e.Weather.ReadWeather(); err != nil {
			e.logger.Error("error reading bme280", zap.Error(err))
			errs = append(errs, fmt.Errorf("weather: %w", err))
		} else {
			out.Weather = &w
		}
	}
	if e.Light != nil {
		tried++
		if l, err := e.Light.ReadLight(); err != nil {
			e.logger.Error("error reading light sensor", zap.Error(err))
			errs = append(errs, fmt.Errorf("light: %w", err))
		} else {
			out.Light = &l
		}
	}
	if e.Gas != nil {
		tried++
		if g, err := e.Gas.ReadGas(); err != nil {
			e.logger.Error("error reading gas sensors", zap.Error(err))
			errs = append(errs, fmt.Errorf("gas: %w", err))
		} else {
			out.Gas = &g
		}
	}

	if tried > 0 && len(errs) == tried {
		return EnvironmentReading{}, errors.Join(errs...)
	}
	return out, nil
}

func (e *Enviro) Close() error {
	var errs []error
	if e.Weather != nil {
		errs = append(errs, e.Weather.Close())
	}
	if e.Light != nil {
		errs = append(errs, e.Light.Close())
	}
	if e.Gas != nil {
		errs = append(errs, e.Gas.Close())
	}
	return errors.Join(errs...)
}
