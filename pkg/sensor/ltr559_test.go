package sensor

import (
	"math"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"
)

func ltr559InitOps(id byte) []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: 0x23, W: []byte{0x86}, R: []byte{id}},
		{Addr: 0x23, W: []byte{0x80, 0x09}},
		{Addr: 0x23, W: []byte{0x81, 0x03}},
		{Addr: 0x23, W: []byte{0x85, 0x08}},
	}
}

func TestLTR559Read(t *testing.T) {
	ops := append(ltr559InitOps(0x92),
		// ch1=0x0010, ch0=0x0064
		i2ctest.IO{Addr: 0x23, W: []byte{0x88}, R: []byte{0x10, 0x00, 0x64, 0x00}},
		i2ctest.IO{Addr: 0x23, W: []byte{0x8D}, R: []byte{0x2C, 0x01}},
	)
	bus := &i2ctest.Playback{Ops: ops, DontPanic: true}
	l, err := NewLTR559(bus, 0x23)
	if err != nil {
		t.Fatalf("NewLTR559: %v", err)
	}
	r, err := l.ReadLight()
	if err != nil {
		t.Fatalf("ReadLight: %v", err)
	}
	if want := ltr559Lux(100, 16); math.Abs(r.Lux-want) > 1e-9 {
		t.Fatalf("lux %f; want %f", r.Lux, want)
	}
	if r.Proximity != 300 {
		t.Fatalf("proximity %d; want 300", r.Proximity)
	}
}

func TestLTR559WrongPartID(t *testing.T) {
	bus := &i2ctest.Playback{Ops: ltr559InitOps(0x00)[:1], DontPanic: true}
	if _, err := NewLTR559(bus, 0x23); err == nil {
		t.Fatalf("expected error for unknown part id")
	}
}

func TestLTR559Lux(t *testing.T) {
	tests := []struct {
		name     string
		ch0, ch1 uint16
		want     float64
	}{
		{"dark", 0, 0, 0},
		// ratio 13.8 -> first coefficient pair
		{"low ratio", 100, 16, (100*17743 + 16*11059) / 0.5 / 4 / 10000},
		// ratio 50 -> second pair
		{"mid ratio", 100, 100, (100*42785 - 100*19548) / 0.5 / 4 / 10000},
		// ratio above 85 -> zero coefficients
		{"ir only", 10, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ltr559Lux(tt.ch0, tt.ch1); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("got %f; want %f", got, tt.want)
			}
		})
	}
}
