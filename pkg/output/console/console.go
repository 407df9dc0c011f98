package console

import (
	"fmt"
	"time"

	"github.com/ericogr/enviro-to-mqtt/pkg/aggregator"
	"github.com/ericogr/enviro-to-mqtt/pkg/output"
)

type ConsoleOutput struct {
	lastPM time.Time
}

func NewConsole() output.Output { return &ConsoleOutput{} }

// Publish prints one line per sensor. Particulate values are printed only when
// a new frame was read since the previous call.
func (c *ConsoleOutput) Publish(s aggregator.Snapshot) error {
	ts := s.Timestamp.Format(time.RFC3339)
	if r := s.CO2; r != nil {
		fmt.Printf("%s scd41 co2=%dppm temperature=%.1fC humidity=%.1f%%\n", ts, r.CO2, r.Temperature, r.Humidity)
	}
	if r := s.Particulate; r != nil && r.HasData() && !r.MeasuredAt.Equal(c.lastPM) {
		c.lastPM = r.MeasuredAt
		fmt.Printf("%s pms5003 pm1=%.0f pm25=%.0f pm10=%.0f\n", ts, r.PM1, r.PM25, r.PM10)
	}
	if e := s.Environment; e != nil {
		if w := e.Weather; w != nil {
			fmt.Printf("%s bme280 temperature=%.1fC humidity=%.1f%% pressure=%.1fhPa\n", ts, w.Temperature, w.Humidity, w.Pressure)
		}
		if l := e.Light; l != nil {
			fmt.Printf("%s ltr559 lux=%.1f proximity=%d\n", ts, l.Lux, l.Proximity)
		}
		if g := e.Gas; g != nil {
			fmt.Printf("%s mics6814 oxidising=%.0fkOhm reducing=%.0fkOhm nh3=%.0fkOhm\n", ts, g.Oxidising/1000, g.Reducing/1000, g.NH3/1000)
		}
	}
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
