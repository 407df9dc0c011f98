package sensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

const (
	pmsStart1      = 0x42
	pmsStart2      = 0x4D
	pmsFrameLength = 28 // 13 data words + checksum
	pmsDataWords   = 13
)

var (
	ErrChecksum    = errors.New("pms5003: checksum mismatch")
	ErrFrameLength = errors.New("pms5003: invalid frame length")
)

// PMSFrame is a decoded PMS5003 data frame.
type PMSFrame struct {
	// Standard holds PM1.0, PM2.5 and PM10 with CF=1 (standard particle).
	Standard [3]uint16
	// Atmospheric holds the same size cuts under atmospheric environment.
	Atmospheric [3]uint16
	// Counts holds particles per 0.1L beyond 0.3, 0.5, 1.0, 2.5, 5.0 and 10 µm.
	Counts [6]uint16
}

// FrameReader reads one complete frame from a particulate sensor.
type FrameReader interface {
	ReadFrame() (PMSFrame, error)
	Close() error
}

// PMS5003 reads frames from the sensor's serial link.
type PMS5003 struct {
	port    io.ReadCloser
	timeout time.Duration
	now     func() time.Time
}

// OpenPMS5003 opens the serial device at 9600 8N1 (or the given baud rate).
func OpenPMS5003(path string, baud int, timeout time.Duration) (*PMS5003, error) {
	if baud <= 0 {
		baud = 9600
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serial read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serial reset input: %w", err)
	}
	return newPMS5003(port, timeout), nil
}

func newPMS5003(port io.ReadCloser, timeout time.Duration) *PMS5003 {
	return &PMS5003{port: port, timeout: timeout, now: time.Now}
}

func (p *PMS5003) Close() error { return p.port.Close() }

// ReadFrame scans for the start-of-frame marker and decodes the frame after it.
// Failing to read a whole frame within the timeout is reported as
// ErrReadTimeout.
func (p *PMS5003) ReadFrame() (PMSFrame, error) {
	deadline := p.now().Add(p.timeout)
	one := make([]byte, 1)
	matched := 0
	for matched < 2 {
		if err := p.readFull(one, deadline); err != nil {
			return PMSFrame{}, err
		}
		switch {
		case matched == 0 && one[0] == pmsStart1:
			matched = 1
		case matched == 1 && one[0] == pmsStart2:
			matched = 2
		case one[0] == pmsStart1:
			matched = 1
		default:
			matched = 0
		}
	}

	header := make([]byte, 2)
	if err := p.readFull(header, deadline); err != nil {
		return PMSFrame{}, err
	}
	if n := binary.BigEndian.Uint16(header); n != pmsFrameLength {
		return PMSFrame{}, fmt.Errorf("%w: %d", ErrFrameLength, n)
	}
	body := make([]byte, pmsFrameLength)
	if err := p.readFull(body, deadline); err != nil {
		return PMSFrame{}, err
	}
	raw := make([]byte, 0, 4+pmsFrameLength)
	raw = append(raw, pmsStart1, pmsStart2)
	raw = append(raw, header...)
	raw = append(raw, body...)
	return decodePMSFrame(raw)
}

// readTimeouter is implemented by serial.Port.
type readTimeouter interface {
	SetReadTimeout(t time.Duration) error
}

// readFull reads len(buf) bytes before deadline. The serial port returns 0, nil
// when its read timeout expires, so each read is given only the time left.
func (p *PMS5003) readFull(buf []byte, deadline time.Time) error {
	for off := 0; off < len(buf); {
		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			return fmt.Errorf("read deadline exceeded: %w", ErrReadTimeout)
		}
		if rt, ok := p.port.(readTimeouter); ok {
			if err := rt.SetReadTimeout(remaining); err != nil {
				return fmt.Errorf("serial read timeout: %w", err)
			}
		}
		n, err := p.port.Read(buf[off:])
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("serial drained: %w", ErrReadTimeout)
			}
			return fmt.Errorf("serial read: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("serial idle: %w", ErrReadTimeout)
		}
		off += n
	}
	return nil
}

// decodePMSFrame validates a full frame including its start bytes.
func decodePMSFrame(raw []byte) (PMSFrame, error) {
	if len(raw) != 4+pmsFrameLength {
		return PMSFrame{}, fmt.Errorf("%w: %d bytes", ErrFrameLength, len(raw))
	}
	var sum uint16
	for _, b := range raw[:len(raw)-2] {
		sum += uint16(b)
	}
	if want := binary.BigEndian.Uint16(raw[len(raw)-2:]); sum != want {
		return PMSFrame{}, fmt.Errorf("%w: got %04X want %04X", ErrChecksum, sum, want)
	}
	var words [pmsDataWords]uint16
	for i := range words {
		words[i] = binary.BigEndian.Uint16(raw[4+2*i:])
	}
	var f PMSFrame
	copy(f.Standard[:], words[0:3])
	copy(f.Atmospheric[:], words[3:6])
	copy(f.Counts[:], words[6:12])
	return f, nil
}

// encodePMSFrame builds a valid frame; used by the simulator and tests.
func encodePMSFrame(f PMSFrame) []byte {
	raw := make([]byte, 4+pmsFrameLength)
	raw[0], raw[1] = pmsStart1, pmsStart2
	binary.BigEndian.PutUint16(raw[2:], pmsFrameLength)
	words := make([]uint16, 0, pmsDataWords)
	words = append(words, f.Standard[:]...)
	words = append(words, f.Atmospheric[:]...)
	words = append(words, f.Counts[:]...)
	words = append(words, 0)
	for i, w := range words {
		binary.BigEndian.PutUint16(raw[4+2*i:], w)
	}
	var sum uint16
	for _, b := range raw[:len(raw)-2] {
		sum += uint16(b)
	}
	binary.BigEndian.PutUint16(raw[len(raw)-2:], sum)
	return raw
}
