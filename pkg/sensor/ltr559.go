package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
)

const (
	ltr559ALSControl  = 0x80
	ltr559PSControl   = 0x81
	ltr559ALSMeasRate = 0x85
	ltr559PartID      = 0x86
	ltr559ALSData     = 0x88
	ltr559PSData      = 0x8D

	ltr559ExpectedID = 0x92
	ltr559Gain       = 4
	ltr559IntegMs    = 50
)

var (
	ltr559Ch0Coeff = [4]float64{17743, 42785, 5926, 0}
	ltr559Ch1Coeff = [4]float64{-11059, 19548, -1185, 0}
)

// LTR559 is the Enviro+ ambient light and proximity sensor.
type LTR559 struct {
	dev *i2c.Dev
}

func NewLTR559(bus i2c.Bus, addr uint16) (*LTR559, error) {
	l := &LTR559{dev: &i2c.Dev{Addr: addr, Bus: bus}}
	id := make([]byte, 1)
	if err := readRegister(l.dev, ltr559PartID, id); err != nil {
		return nil, fmt.Errorf("ltr559 probe: %w", err)
	}
	if id[0] != ltr559ExpectedID {
		return nil, fmt.Errorf("ltr559: unexpected part id %02X", id[0])
	}
	// gain 4x, active mode
	if err := writeRegister(l.dev, ltr559ALSControl, 0x02<<2|0x01); err != nil {
		return nil, err
	}
	if err := writeRegister(l.dev, ltr559PSControl, 0x03); err != nil {
		return nil, err
	}
	// 50ms integration, 50ms repeat
	if err := writeRegister(l.dev, ltr559ALSMeasRate, 0x01<<3); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *LTR559) ReadLight() (LightReading, error) {
	als := make([]byte, 4)
	if err := readRegister(l.dev, ltr559ALSData, als); err != nil {
		return LightReading{}, err
	}
	ps := make([]byte, 2)
	if err := readRegister(l.dev, ltr559PSData, ps); err != nil {
		return LightReading{}, err
	}
	ch1 := uint16(als[1])<<8 | uint16(als[0])
	ch0 := uint16(als[3])<<8 | uint16(als[2])
	return LightReading{
		Lux:       ltr559Lux(ch0, ch1),
		Proximity: int(ps[1]&0x07)<<8 | int(ps[0]),
	}, nil
}

// ltr559Lux applies the datasheet's piecewise channel ratio formula.
func ltr559Lux(ch0, ch1 uint16) float64 {
	sum := float64(ch0) + float64(ch1)
	ratio := 101.0
	if sum > 0 {
		ratio = float64(ch1) * 100 / sum
	}
	idx := 3
	switch {
	case ratio < 45:
		idx = 0
	case ratio < 64:
		idx = 1
	case ratio < 85:
		idx = 2
	}
	lux := float64(ch0)*ltr559Ch0Coeff[idx] - float64(ch1)*ltr559Ch1Coeff[idx]
	lux /= ltr559IntegMs / 100.0
	lux /= ltr559Gain
	lux /= 10000
	if lux < 0 {
		return 0
	}
	return lux
}

// Close puts both channels in standby.
func (l *LTR559) Close() error {
	if err := writeRegister(l.dev, ltr559ALSControl, 0x00); err != nil {
		return err
	}
	return writeRegister(l.dev, ltr559PSControl, 0x00)
}
