package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/ericogr/enviro-to-mqtt/pkg/aggregator"
	"github.com/ericogr/enviro-to-mqtt/pkg/output"
)

var (
	colorTitle  = lipgloss.Color("250")
	colorDim    = lipgloss.Color("243")
	colorBorder = lipgloss.Color("238")
	colorGood   = lipgloss.Color("42")
	colorWarn   = lipgloss.Color("220")
	colorPoor   = lipgloss.Color("214")
	colorCrit   = lipgloss.Color("196")
)

// CO2Band classifies a CO2 concentration.
func CO2Band(ppm int) (string, lipgloss.Color) {
	switch {
	case ppm < 800:
		return "GOOD", colorGood
	case ppm < 1000:
		return "MODERATE", colorWarn
	case ppm < 1500:
		return "POOR", colorPoor
	default:
		return "UNHEALTHY", colorCrit
	}
}

func pm25Color(v float64) lipgloss.Color {
	switch {
	case v < 12:
		return colorGood
	case v < 35:
		return colorWarn
	default:
		return colorCrit
	}
}

// Display renders one screen per snapshot and rotates through the configured
// screens, skipping those whose sensor has no data.
type Display struct {
	w       io.Writer
	screens []string
	current int
	now     func() time.Time
}

func New(screens []string) output.Output {
	return newDisplay(os.Stdout, screens)
}

func newDisplay(w io.Writer, screens []string) *Display {
	if len(screens) == 0 {
		screens = []string{"summary"}
	}
	return &Display{w: w, screens: screens, now: time.Now}
}

func (d *Display) Publish(s aggregator.Snapshot) error {
	screen := d.nextScreen(s)
	_, err := fmt.Fprintln(d.w, d.render(screen, s))
	return err
}

func (d *Display) Close() error { return nil }

// nextScreen returns the first available screen at or after the cursor and
// moves the cursor past it.
func (d *Display) nextScreen(s aggregator.Snapshot) string {
	avail := aggregator.AvailabilityOf(s)
	for i := 0; i < len(d.screens); i++ {
		name := d.screens[(d.current+i)%len(d.screens)]
		if screenAvailable(name, avail) {
			d.current = (d.current + i + 1) % len(d.screens)
			return name
		}
	}
	d.current = (d.current + 1) % len(d.screens)
	return "summary"
}

func screenAvailable(name string, a aggregator.Availability) bool {
	switch name {
	case "co2":
		return a.CO2
	case "pm":
		return a.Particulate
	case "env":
		return a.Environment
	}
	return true
}

func (d *Display) render(screen string, s aggregator.Snapshot) string {
	var body string
	switch screen {
	case "co2":
		body = renderCO2(s)
	case "pm":
		body = renderPM(s, d.now())
	case "env":
		body = renderEnv(s)
	default:
		body = renderSummary(s)
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Render(body)
}

func title(s string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(colorTitle).Render(s)
}

func dim(s string) string {
	return lipgloss.NewStyle().Foreground(colorDim).Render(s)
}

func renderCO2(s aggregator.Snapshot) string {
	if s.CO2 == nil {
		return title("CO2") + "\n" + dim("No SCD41 data")
	}
	label, color := CO2Band(s.CO2.CO2)
	val := lipgloss.NewStyle().Bold(true).Foreground(color)
	return lipgloss.JoinVertical(lipgloss.Left,
		title("CO2"),
		val.Render(fmt.Sprintf("%d", s.CO2.CO2))+" "+dim("ppm"),
		val.Render(label)+"  "+dim(fmt.Sprintf("%.1f°C  %.0f%%", s.CO2.Temperature, s.CO2.Humidity)),
	)
}

// pmAge describes how old the particulate reading is.
func pmAge(measured, now time.Time) string {
	age := now.Sub(measured)
	switch {
	case age < time.Minute:
		return "Live"
	case age < 3*time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	default:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	}
}

func renderPM(s aggregator.Snapshot, now time.Time) string {
	if s.Particulate == nil || !s.Particulate.HasData() {
		return title("Particulate Matter") + "\n" + dim("No PM data")
	}
	p := s.Particulate
	return lipgloss.JoinVertical(lipgloss.Left,
		title("Particulate Matter")+"  "+dim(pmAge(p.MeasuredAt, now)),
		dim("PM2.5: ")+lipgloss.NewStyle().Bold(true).Foreground(pm25Color(p.PM25)).Render(fmt.Sprintf("%.0f", p.PM25))+dim(" µg/m³"),
		dim(fmt.Sprintf("PM1: %.0f  PM10: %.0f", p.PM1, p.PM10)),
	)
}

func renderEnv(s aggregator.Snapshot) string {
	if s.Environment == nil {
		return title("Environment") + "\n" + dim("No data")
	}
	lines := []string{title("Environment")}
	if w := s.Environment.Weather; w != nil {
		lines = append(lines, fmt.Sprintf("%.1f°C  %.0f%%  %.0f hPa", w.Temperature, w.Humidity, w.Pressure))
	}
	if l := s.Environment.Light; l != nil {
		lines = append(lines, fmt.Sprintf("Light: %.0f lux", l.Lux))
	}
	if g := s.Environment.Gas; g != nil {
		lines = append(lines,
			fmt.Sprintf("Oxidising: %.0f Ω", g.Oxidising),
			fmt.Sprintf("Reducing:  %.0f Ω", g.Reducing),
			fmt.Sprintf("NH3:       %.0f Ω", g.NH3),
		)
	}
	return strings.Join(lines, "\n")
}

func renderSummary(s aggregator.Snapshot) string {
	lines := []string{title("Summary")}
	if s.CO2 != nil {
		_, color := CO2Band(s.CO2.CO2)
		lines = append(lines,
			lipgloss.NewStyle().Foreground(color).Render(fmt.Sprintf("CO2: %dppm", s.CO2.CO2)),
			fmt.Sprintf("Temp: %.1f°C", s.CO2.Temperature),
			fmt.Sprintf("RH: %.0f%%", s.CO2.Humidity),
		)
	}
	if p := s.Particulate; p != nil && p.HasData() {
		lines = append(lines, lipgloss.NewStyle().Foreground(pm25Color(p.PM25)).Render(fmt.Sprintf("PM2.5: %.0f µg/m³", p.PM25)))
	}
	if len(lines) == 1 {
		lines = append(lines, dim("No data"))
	}
	return strings.Join(lines, "\n")
}
