package sensor

import (
	"errors"
	"time"
)

var (
	// ErrNotReady is returned by a periodic sensor that has no new measurement yet.
	ErrNotReady = errors.New("sensor: measurement not ready")
	// ErrReadTimeout marks a transient, retryable read failure.
	ErrReadTimeout = errors.New("sensor: read timeout")
)

// ParticulateReading holds mass concentrations in µg/m³ taken from a single frame.
// A zero MeasuredAt means no frame was ever read and the magnitudes carry no data.
type ParticulateReading struct {
	PM1        float64   `json:"pm1"`
	PM25       float64   `json:"pm25"`
	PM10       float64   `json:"pm10"`
	MeasuredAt time.Time `json:"measured_at"`
}

// HasData reports whether the reading came from a real frame.
func (r ParticulateReading) HasData() bool { return !r.MeasuredAt.IsZero() }

type CO2Reading struct {
	CO2         int       `json:"co2"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	MeasuredAt  time.Time `json:"measured_at"`
}

type WeatherReading struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
}

type LightReading struct {
	Lux       float64 `json:"lux"`
	Proximity int     `json:"proximity"`
}

// GasReading holds MICS6814 sensing resistances in Ohms.
type GasReading struct {
	Oxidising float64 `json:"oxidising"`
	Reducing  float64 `json:"reducing"`
	NH3       float64 `json:"nh3"`
}

// EnvironmentReading is the output of the always-on sensor group. A nil member
// was either not configured or failed this tick.
type EnvironmentReading struct {
	Weather    *WeatherReading `json:"weather,omitempty"`
	Light      *LightReading   `json:"light,omitempty"`
	Gas        *GasReading     `json:"gas,omitempty"`
	MeasuredAt time.Time       `json:"measured_at"`
}

// CO2Sensor polls a sensor that measures on its own schedule.
type CO2Sensor interface {
	Read() (CO2Reading, error)
	Close() error
}

// EnvironmentSensor reads the always-on group.
type EnvironmentSensor interface {
	Read() (EnvironmentReading, error)
	Close() error
}

// ParticulateSensor never fails: it falls back to its last good reading.
type ParticulateSensor interface {
	Read() ParticulateReading
	Shutdown() error
}
