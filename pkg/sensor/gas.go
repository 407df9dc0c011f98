package sensor

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01

	// MICS6814 channels on the Enviro+ ADS1015
	gasChannelOxidising = 0
	gasChannelReducing  = 1
	gasChannelNH3       = 2

	gasSampleRate   = 1600
	gasSupplyVolts  = 3.3
	gasLoadResistor = 56000.0
)

// MICS6814 reads the three gas sensing elements through an ADS1015 ADC in
// single-shot mode and converts the voltages into sensing resistances.
type MICS6814 struct {
	dev        *i2c.Dev
	sampleRate int
	pgaFS      float64
	sleep      func(time.Duration)
}

// NewMICS6814 drives the heater pin high when one is given.
func NewMICS6814(bus i2c.Bus, addr uint16, heater gpio.PinOut) (*MICS6814, error) {
	if heater != nil {
		if err := heater.Out(gpio.High); err != nil {
			return nil, fmt.Errorf("gas heater: %w", err)
		}
	}
	return &MICS6814{
		dev:        &i2c.Dev{Addr: addr, Bus: bus},
		sampleRate: gasSampleRate,
		pgaFS:      6.144,
		sleep:      time.Sleep,
	}, nil
}

func (s *MICS6814) ReadGas() (GasReading, error) {
	var out GasReading
	for _, ch := range []struct {
		channel int
		dst     *float64
	}{
		{gasChannelOxidising, &out.Oxidising},
		{gasChannelReducing, &out.Reducing},
		{gasChannelNH3, &out.NH3},
	} {
		v, err := s.readVoltage(ch.channel)
		if err != nil {
			return GasReading{}, err
		}
		*ch.dst = gasResistance(v)
	}
	return out, nil
}

func (s *MICS6814) readVoltage(channel int) (float64, error) {
	msb, lsb, err := configForChannel(channel, s.sampleRate)
	if err != nil {
		return 0, err
	}
	if err := s.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}
	// wait for conversion
	delayMs := int(1000.0/float64(s.sampleRate)) + 2
	s.sleep(time.Duration(delayMs) * time.Millisecond)
	readBuf := make([]byte, 2)
	if err := s.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	// 12-bit result left aligned in a 16-bit register
	raw := int16(readBuf[0])<<8 | int16(readBuf[1])
	return float64(raw) * s.pgaFS / 32768.0, nil
}

// gasResistance converts the divider voltage across the load resistor.
func gasResistance(v float64) float64 {
	if v >= gasSupplyVolts {
		return 0
	}
	return v * gasLoadResistor / (gasSupplyVolts - v)
}

func (s *MICS6814) Close() error { return nil }

// configForChannel builds the ADS1015 config register for a single-ended,
// single-shot conversion at ±6.144V.
func configForChannel(channel int, sampleRate int) (byte, byte, error) {
	var mux byte
	switch channel {
	case 0:
		mux = 0x4
	case 1:
		mux = 0x5
	case 2:
		mux = 0x6
	case 3:
		mux = 0x7
	default:
		return 0, 0, fmt.Errorf("invalid channel %d", channel)
	}
	pga := byte(0x0)
	var dr byte
	switch sampleRate {
	case 128:
		dr = 0x0
	case 250:
		dr = 0x1
	case 490:
		dr = 0x2
	case 920:
		dr = 0x3
	case 1600:
		dr = 0x4
	case 2400:
		dr = 0x5
	case 3300:
		dr = 0x6
	default:
		dr = 0x4
	}
	var config uint16 = 0x8000 // OS = 1 (start single conversion)
	config |= uint16(mux) << 12
	config |= uint16(pga) << 9
	config |= 1 << 8 // single-shot mode
	config |= uint16(dr) << 5
	// comparator disabled
	config |= 0x3
	return byte(config >> 8), byte(config & 0xFF), nil
}
