package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ericogr/enviro-to-mqtt/pkg/aggregator"
	"github.com/ericogr/enviro-to-mqtt/pkg/sensor"
)

func TestCO2Band(t *testing.T) {
	tests := []struct {
		ppm  int
		want string
	}{
		{420, "GOOD"},
		{799, "GOOD"},
		{800, "MODERATE"},
		{999, "MODERATE"},
		{1000, "POOR"},
		{1499, "POOR"},
		{1500, "UNHEALTHY"},
	}
	for _, tt := range tests {
		if got, _ := CO2Band(tt.ppm); got != tt.want {
			t.Fatalf("CO2Band(%d) = %s; want %s", tt.ppm, got, tt.want)
		}
	}
}

func TestPMAge(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		age  time.Duration
		want string
	}{
		{10 * time.Second, "Live"},
		{90 * time.Second, "90s"},
		{5 * time.Minute, "5m"},
	}
	for _, tt := range tests {
		if got := pmAge(now.Add(-tt.age), now); got != tt.want {
			t.Fatalf("pmAge(%v) = %s; want %s", tt.age, got, tt.want)
		}
	}
}

func TestDisplayRotatesAndSkipsUnavailable(t *testing.T) {
	var buf bytes.Buffer
	d := newDisplay(&buf, []string{"co2", "pm", "env", "summary"})
	s := aggregator.Snapshot{
		Timestamp:   time.Now(),
		CO2:         &sensor.CO2Reading{CO2: 1200, Temperature: 22, Humidity: 40},
		Particulate: &sensor.ParticulateReading{},
	}

	var got []string
	for i := 0; i < 4; i++ {
		got = append(got, d.nextScreen(s))
	}
	want := []string{"co2", "summary", "co2", "summary"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("screens %v; want %v", got, want)
		}
	}

	if err := d.Publish(s); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "1200") || !strings.Contains(out, "POOR") {
		t.Fatalf("co2 screen missing values:\n%s", out)
	}
}

func TestRenderPM(t *testing.T) {
	now := time.Now()
	s := aggregator.Snapshot{Particulate: &sensor.ParticulateReading{PM1: 3, PM25: 8, PM10: 11, MeasuredAt: now}}
	out := renderPM(s, now)
	for _, want := range []string{"Live", "8", "PM1: 3", "PM10: 11"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
