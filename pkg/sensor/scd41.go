package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/enviro-to-mqtt/pkg/config"
	"periph.io/x/conn/v3/i2c"
)

const (
	scd41StartPeriodic   = 0x21B1
	scd41StopPeriodic    = 0x3F86
	scd41ReadMeasurement = 0xEC05
	scd41DataReady       = 0xE4B8
	scd41SetAltitude     = 0x2427
)

// SCD41 reads CO2, temperature and humidity from a Sensirion SCD41 running in
// periodic measurement mode. A new sample is available roughly every 5 seconds.
type SCD41 struct {
	dev        *i2c.Dev
	tempOffset float64
	sleep      func(time.Duration)
	now        func() time.Time
}

// NewSCD41 stops any running measurement, sets the altitude and starts
// periodic measurement.
func NewSCD41(bus i2c.Bus, cfg config.SCD41Config) (*SCD41, error) {
	return newSCD41(bus, cfg, time.Sleep)
}

func newSCD41(bus i2c.Bus, cfg config.SCD41Config, sleep func(time.Duration)) (*SCD41, error) {
	s := &SCD41{
		dev:        &i2c.Dev{Addr: uint16(cfg.Address), Bus: bus},
		tempOffset: cfg.TemperatureOffset,
		sleep:      sleep,
		now:        time.Now,
	}
	if err := sendCommand(s.dev, scd41StopPeriodic); err != nil {
		return nil, fmt.Errorf("scd41 stop: %w", err)
	}
	s.sleep(500 * time.Millisecond)
	if err := sendCommand(s.dev, scd41SetAltitude, uint16(cfg.Altitude)); err != nil {
		return nil, fmt.Errorf("scd41 altitude: %w", err)
	}
	s.sleep(time.Millisecond)
	if err := sendCommand(s.dev, scd41StartPeriodic); err != nil {
		return nil, fmt.Errorf("scd41 start: %w", err)
	}
	return s, nil
}

// Read returns ErrNotReady while no new sample is waiting.
func (s *SCD41) Read() (CO2Reading, error) {
	if err := sendCommand(s.dev, scd41DataReady); err != nil {
		return CO2Reading{}, err
	}
	s.sleep(time.Millisecond)
	status, err := readWords(s.dev, 1)
	if err != nil {
		return CO2Reading{}, fmt.Errorf("scd41 data ready: %w", err)
	}
	if status[0]&0x07FF == 0 {
		return CO2Reading{}, ErrNotReady
	}

	if err := sendCommand(s.dev, scd41ReadMeasurement); err != nil {
		return CO2Reading{}, err
	}
	s.sleep(time.Millisecond)
	words, err := readWords(s.dev, 3)
	if err != nil {
		return CO2Reading{}, fmt.Errorf("scd41 measurement: %w", err)
	}
	temp := -45 + 175*float64(words[1])/65535
	return CO2Reading{
		CO2:         int(words[0]),
		Temperature: temp - s.tempOffset,
		Humidity:    100 * float64(words[2]) / 65535,
		MeasuredAt:  s.now(),
	}, nil
}

// Close stops periodic measurement. The bus is owned by the caller.
func (s *SCD41) Close() error {
	if err := sendCommand(s.dev, scd41StopPeriodic); err != nil {
		return fmt.Errorf("scd41 stop: %w", err)
	}
	s.sleep(500 * time.Millisecond)
	return nil
}
