package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

// BME280 wraps the periph bmxx80 driver.
type BME280 struct {
	dev *bmxx80.Dev
}

func NewBME280(bus i2c.Bus, addr uint16) (*BME280, error) {
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("bme280: %w", err)
	}
	return &BME280{dev: dev}, nil
}

func (b *BME280) ReadWeather() (WeatherReading, error) {
	var env physic.Env
	if err := b.dev.Sense(&env); err != nil {
		return WeatherReading{}, fmt.Errorf("bme280 sense: %w", err)
	}
	return weatherFromEnv(env), nil
}

func weatherFromEnv(env physic.Env) WeatherReading {
	return WeatherReading{
		Temperature: env.Temperature.Celsius(),
		Humidity:    float64(env.Humidity) / float64(physic.PercentRH),
		Pressure:    float64(env.Pressure) / float64(100*physic.Pascal),
	}
}

func (b *BME280) Close() error { return b.dev.Halt() }
