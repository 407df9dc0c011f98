package aggregator

import (
	"time"

	"github.com/ericogr/enviro-to-mqtt/pkg/sensor"
)

// Snapshot is the result of one tick. A nil member means the reading was not
// available. Consumers must treat it as read-only.
type Snapshot struct {
	Timestamp   time.Time                  `json:"timestamp"`
	CO2         *sensor.CO2Reading         `json:"co2,omitempty"`
	Particulate *sensor.ParticulateReading `json:"particulate,omitempty"`
	Environment *sensor.EnvironmentReading `json:"environment,omitempty"`
}
