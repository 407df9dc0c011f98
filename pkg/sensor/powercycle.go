package sensor

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
)

// PowerState is the duty-cycle phase of a power controlled sensor.
type PowerState int

const (
	Asleep PowerState = iota
	WarmingUp
	Ready
)

func (s PowerState) String() string {
	switch s {
	case Asleep:
		return "asleep"
	case WarmingUp:
		return "warming_up"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("PowerState(%d)", int(s))
}

// EnableLine is the digital output gating the sensor's power. gpio.PinOut
// satisfies it.
type EnableLine interface {
	Out(l gpio.Level) error
}

// PowerConfig controls duty cycling.
type PowerConfig struct {
	CyclingEnabled bool
	Warmup         time.Duration
	Sleep          time.Duration
}

// DefaultPowerConfig wakes the sensor every 3 minutes for 30 seconds.
var DefaultPowerConfig = PowerConfig{CyclingEnabled: true, Warmup: 30 * time.Second, Sleep: 180 * time.Second}

type cycleAction int

const (
	actionNone cycleAction = iota
	actionWake
	actionRead
)

// dutyCycle is the timing state. advance is pure; the caller performs the
// returned action.
type dutyCycle struct {
	state       PowerState
	lastWake    time.Time
	lastSuccess time.Time
}

func (c dutyCycle) advance(now time.Time, cfg PowerConfig) (dutyCycle, cycleAction) {
	if !cfg.CyclingEnabled {
		c.state = Ready
		return c, actionRead
	}
	due := c.lastSuccess.IsZero() || now.Sub(c.lastSuccess) >= cfg.Sleep
	switch c.state {
	case Asleep:
		if !due {
			return c, actionNone
		}
		c.state = WarmingUp
		c.lastWake = now
		return c, actionWake
	case WarmingUp:
		if now.Sub(c.lastWake) < cfg.Warmup {
			return c, actionNone
		}
		c.state = Ready
		return c, actionRead
	default:
		return c, actionRead
	}
}

// afterRead returns the state following a read attempt.
func (c dutyCycle) afterRead(now time.Time, ok bool, cfg PowerConfig) dutyCycle {
	if ok {
		c.lastSuccess = now
	}
	if cfg.CyclingEnabled {
		c.state = Asleep
	}
	return c
}

// PowerControlledSensor duty-cycles a particulate sensor and serves its last
// good reading while the sensor sleeps, warms up or fails. It is not safe for
// concurrent use; the caller must not overlap Read calls.
type PowerControlledSensor struct {
	line   EnableLine
	frames FrameReader
	cfg    PowerConfig
	retry  RetryPolicy
	clock  clockwork.Clock
	logger *zap.Logger

	cycle dutyCycle
	cache ParticulateReading
}

type PowerOption func(*PowerControlledSensor)

func WithClock(c clockwork.Clock) PowerOption {
	return func(s *PowerControlledSensor) { s.clock = c }
}

func WithRetryPolicy(p RetryPolicy) PowerOption {
	return func(s *PowerControlledSensor) { s.retry = p }
}

// NewPowerControlledSensor takes ownership of line and frames. The line is
// driven low when cycling is enabled and high otherwise.
func NewPowerControlledSensor(line EnableLine, frames FrameReader, cfg PowerConfig, logger *zap.Logger, opts ...PowerOption) (*PowerControlledSensor, error) {
	s := &PowerControlledSensor{
		line:   line,
		frames: frames,
		cfg:    cfg,
		retry:  DefaultRetryPolicy,
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
	for _, o := range opts {
		o(s)
	}
	initial, level := Ready, gpio.High
	if cfg.CyclingEnabled {
		initial, level = Asleep, gpio.Low
	}
	if err := line.Out(level); err != nil {
		return nil, fmt.Errorf("drive enable line: %w", err)
	}
	s.cycle.state = initial
	if cfg.CyclingEnabled {
		logger.Info("pm sensor power cycling enabled",
			zap.Duration("warmup", cfg.Warmup),
			zap.Duration("sleep", cfg.Sleep),
		)
	} else {
		logger.Info("pm sensor power cycling disabled, always on")
	}
	return s, nil
}

// State returns the current duty-cycle phase.
func (s *PowerControlledSensor) State() PowerState { return s.cycle.state }

// Read advances the duty cycle by wall-clock time and returns the cached reading,
// refreshed if a hardware read happened and succeeded during this call.
func (s *PowerControlledSensor) Read() ParticulateReading {
	now := s.clock.Now()
	next, action := s.cycle.advance(now, s.cfg)
	switch action {
	case actionNone:
		s.cycle = next
		if s.cycle.state == Asleep {
			s.logger.Debug("pm sensor sleeping, using cached values")
		} else {
			s.logger.Debug("pm sensor warming up, using cached values")
		}
		return s.cache
	case actionWake:
		if err := s.line.Out(gpio.High); err != nil {
			s.logger.Error("failed to wake pm sensor", zap.Error(err))
			return s.cache
		}
		s.cycle = next
		s.logger.Debug("pm sensor woken up")
		return s.cache
	}

	s.cycle = next
	frame, err := retry(s.retry, s.frames.ReadFrame, isTimeout, func(attempt uint, err error) {
		s.logger.Debug("pm sensor read timeout, retrying", zap.Uint("attempt", attempt), zap.Error(err))
	})
	done := s.clock.Now()
	switch {
	case err == nil:
		s.cache = ParticulateReading{
			PM1:        float64(frame.Standard[0]),
			PM25:       float64(frame.Standard[1]),
			PM10:       float64(frame.Standard[2]),
			MeasuredAt: done,
		}
		s.logger.Debug("pm sensor read", zap.Float64("pm25", s.cache.PM25))
	case isTimeout(err):
		s.logger.Warn("pm sensor read timed out, keeping cached values", zap.Error(err))
	default:
		s.logger.Error("pm sensor read failed, keeping cached values", zap.Error(err))
	}
	s.cycle = s.cycle.afterRead(done, err == nil, s.cfg)
	if s.cfg.CyclingEnabled {
		if err := s.line.Out(gpio.Low); err != nil {
			s.logger.Error("failed to put pm sensor to sleep", zap.Error(err))
		} else {
			s.logger.Debug("pm sensor sleeping", zap.Duration("sleep", s.cfg.Sleep))
		}
	}
	return s.cache
}

// Shutdown leaves the sensor powered so the next start finds it in a known
// state, then releases the serial link.
func (s *PowerControlledSensor) Shutdown() error {
	var lineErr error
	if s.cfg.CyclingEnabled {
		if err := s.line.Out(gpio.High); err != nil {
			lineErr = fmt.Errorf("wake on shutdown: %w", err)
		}
	}
	if err := s.frames.Close(); err != nil && lineErr == nil {
		return fmt.Errorf("close pm serial: %w", err)
	}
	return lineErr
}
