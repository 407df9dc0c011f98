package output

import (
	"errors"
	"math"

	"github.com/ericogr/enviro-to-mqtt/pkg/aggregator"
	"go.uber.org/zap"
)

// Output consumes one snapshot per tick. Implementations must not modify it.
type Output interface {
	Publish(aggregator.Snapshot) error
	Close() error
}

// Entry pairs an output with the name it is logged under.
type Entry struct {
	Name   string
	Output Output
}

// PublishAll hands the snapshot to every output. A failing output is logged
// and does not keep the others from publishing.
func PublishAll(entries []Entry, s aggregator.Snapshot, logger *zap.Logger) {
	for _, e := range entries {
		if err := e.Output.Publish(s); err != nil {
			logger.Error("output publish failed", zap.String("output", e.Name), zap.Error(err))
		}
	}
}

// CloseAll closes outputs in reverse order of creation.
func CloseAll(entries []Entry) error {
	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		errs = append(errs, entries[i].Output.Close())
	}
	return errors.Join(errs...)
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 { return math.Round(v*10) / 10 }
