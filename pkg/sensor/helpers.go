package sensor

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// sensirionCRC is the CRC-8 (poly 0x31, init 0xFF) protecting every 16-bit
// word exchanged with Sensirion sensors.
func sensirionCRC(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// readWords reads n CRC-protected big-endian words.
func readWords(dev *i2c.Dev, n int) ([]uint16, error) {
	buf := make([]byte, 3*n)
	if err := dev.Tx(nil, buf); err != nil {
		return nil, fmt.Errorf("read words: %w", err)
	}
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		chunk := buf[3*i : 3*i+3]
		if c := sensirionCRC(chunk[:2]); c != chunk[2] {
			return nil, fmt.Errorf("word %d: crc %02X want %02X", i, c, chunk[2])
		}
		out[i] = uint16(chunk[0])<<8 | uint16(chunk[1])
	}
	return out, nil
}

// sendCommand writes a 16-bit command, optionally followed by one argument word.
func sendCommand(dev *i2c.Dev, cmd uint16, arg ...uint16) error {
	w := []byte{byte(cmd >> 8), byte(cmd)}
	for _, a := range arg {
		word := []byte{byte(a >> 8), byte(a)}
		w = append(w, word[0], word[1], sensirionCRC(word))
	}
	if err := dev.Tx(w, nil); err != nil {
		return fmt.Errorf("command %04X: %w", cmd, err)
	}
	return nil
}

// readRegister reads len(buf) bytes starting at reg.
func readRegister(dev *i2c.Dev, reg byte, buf []byte) error {
	if err := dev.Tx([]byte{reg}, buf); err != nil {
		return fmt.Errorf("read reg %02X: %w", reg, err)
	}
	return nil
}

func writeRegister(dev *i2c.Dev, reg, value byte) error {
	if err := dev.Tx([]byte{reg, value}, nil); err != nil {
		return fmt.Errorf("write reg %02X: %w", reg, err)
	}
	return nil
}

func noSleep(time.Duration) {}
