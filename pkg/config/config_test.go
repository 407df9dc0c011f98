package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.PM.Enabled || !cfg.PM.PowerCyclingEnabled {
		t.Fatalf("pm defaults: %+v", cfg.PM)
	}
	if cfg.PM.Warmup() != 30*time.Second || cfg.PM.Sleep() != 180*time.Second {
		t.Fatalf("pm timing: warmup=%s sleep=%s", cfg.PM.Warmup(), cfg.PM.Sleep())
	}
	if cfg.PM.DevicePath != "/dev/ttyAMA0" {
		t.Fatalf("device path: %q", cfg.PM.DevicePath)
	}
	if cfg.UpdateInterval() != 5*time.Second {
		t.Fatalf("update interval: %s", cfg.UpdateInterval())
	}
	if cfg.SettleDelay() != 10*time.Second {
		t.Fatalf("settle delay: %s", cfg.SettleDelay())
	}
	if len(cfg.Outputs) != 1 || cfg.Outputs[0].Type != OutputConsole {
		t.Fatalf("outputs: %+v", cfg.Outputs)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
general:
  update_interval: 10
  sensor_type: simulation
scd41:
  altitude: 120
pm:
  power_cycling_enabled: false
  warmup_seconds: 15
  sleep_seconds: 60
  device_path: /dev/serial0
outputs:
  - type: mqtt
    mqtt:
      server: tcp://broker:1883
      temp_humidity_mode: average
  - type: display
logging:
  log_format: json
  log_level: DEBUG
`)
	cfg, err := Load([]string{"-config", path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.UpdateInterval != 10 || cfg.General.SensorType != SensorTypeSimulation {
		t.Fatalf("general: %+v", cfg.General)
	}
	if cfg.SCD41.Altitude != 120 || !cfg.SCD41.Enabled || cfg.SCD41.TemperatureOffset != 4.0 {
		t.Fatalf("scd41 should keep defaults for missing keys: %+v", cfg.SCD41)
	}
	if cfg.PM.PowerCyclingEnabled {
		t.Fatalf("power cycling should be disabled")
	}
	if cfg.PM.WarmupSeconds != 15 || cfg.PM.SleepSeconds != 60 || cfg.PM.DevicePath != "/dev/serial0" {
		t.Fatalf("pm: %+v", cfg.PM)
	}
	if cfg.PM.EnablePin != "GPIO22" {
		t.Fatalf("enable pin default lost: %q", cfg.PM.EnablePin)
	}
	if len(cfg.Outputs) != 2 {
		t.Fatalf("outputs len: %d", len(cfg.Outputs))
	}
	m := cfg.Outputs[0].MQTT
	if m.Server != "tcp://broker:1883" || m.TempHumidityMode != ModeAverage || m.BaseTopic != "airsensor" || !m.DiscoveryEnabled() {
		t.Fatalf("mqtt: %+v", m)
	}
	if got := cfg.Outputs[1].Display.Screens; !reflect.DeepEqual(got, []string{"co2", "pm", "env", "summary"}) {
		t.Fatalf("display screens: %v", got)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging: %+v", cfg.Logging)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
        "i2c": { "bus": "3" },
        "enviro": { "gas_sensors": true, "light": false },
        "pm": { "pm_sensor": false },
        "outputs": [{"type":"kafka","kafka":{"brokers":["k1:9092"],"topic":"air"}}, {"type":"http"}]
    }`)
	cfg, err := Load([]string{"-config", path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.I2C.Bus != "3" {
		t.Fatalf("i2c bus: %q", cfg.I2C.Bus)
	}
	if !cfg.Enviro.GasSensors || cfg.Enviro.Light || !cfg.Enviro.TemperatureHumidity {
		t.Fatalf("enviro: %+v", cfg.Enviro)
	}
	if cfg.PM.Enabled {
		t.Fatalf("pm should be disabled")
	}
	if k := cfg.Outputs[0].Kafka; k.Topic != "air" || !reflect.DeepEqual(k.Brokers, []string{"k1:9092"}) {
		t.Fatalf("kafka: %+v", k)
	}
	if cfg.Outputs[1].HTTP.Listen != ":8080" {
		t.Fatalf("http listen: %q", cfg.Outputs[1].HTTP.Listen)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PM_SLEEP_SECONDS", "240")
	t.Setenv("PM_DEVICE_PATH", "/dev/ttyS0")
	t.Setenv("LOG_LEVEL", "warn")
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PM.SleepSeconds != 240 || cfg.PM.DevicePath != "/dev/ttyS0" {
		t.Fatalf("pm env overrides: %+v", cfg.PM)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("log level: %q", cfg.Logging.Level)
	}
}

func TestLoadFlagsOverride(t *testing.T) {
	cfg, err := Load([]string{
		"-interval", "2",
		"-pm-power-cycling", "false",
		"-pm-warmup", "5",
		"-outputs", "console, mqtt",
		"-mqtt-server", "tcp://10.0.0.2:1883",
		"-mqtt-topic", "office",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.UpdateInterval != 2 || cfg.PM.PowerCyclingEnabled || cfg.PM.WarmupSeconds != 5 {
		t.Fatalf("flags not applied: %+v %+v", cfg.General, cfg.PM)
	}
	if len(cfg.Outputs) != 2 || cfg.Outputs[1].Type != OutputMQTT {
		t.Fatalf("outputs: %+v", cfg.Outputs)
	}
	m := cfg.Outputs[1].MQTT
	if m.Server != "tcp://10.0.0.2:1883" || m.BaseTopic != "office" || m.DiscoveryPrefix != "homeassistant" {
		t.Fatalf("mqtt: %+v", m)
	}
}

func TestLoadMQTTFlagsCreateOutput(t *testing.T) {
	cfg, err := Load([]string{"-mqtt-server", "tcp://b:1883"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Outputs) != 2 || cfg.Outputs[1].MQTT.Server != "tcp://b:1883" {
		t.Fatalf("outputs: %+v", cfg.Outputs)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"interval", func(c *Config) { c.General.UpdateInterval = 0 }},
		{"negative settle", func(c *Config) { c.General.SettleSeconds = -1 }},
		{"sensor type", func(c *Config) { c.General.SensorType = "mock" }},
		{"negative warmup", func(c *Config) { c.PM.WarmupSeconds = -1 }},
		{"empty device", func(c *Config) { c.PM.DevicePath = "" }},
		{"output type", func(c *Config) { c.Outputs = []OutputConfig{{Type: "lcd"}} }},
		{"mqtt mode", func(c *Config) {
			c.Outputs = []OutputConfig{{Type: OutputMQTT, MQTT: &MQTTConfig{TempHumidityMode: "median"}}}
		}},
		{"screen", func(c *Config) {
			c.Outputs = []OutputConfig{{Type: OutputDisplay, Display: &DisplayConfig{Screens: []string{"gas"}}}}
		}},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(&cfg)
		cfg.applyOutputDefaults()
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tt.name)
		}
	}
}

func TestLoadBadBoolFlag(t *testing.T) {
	if _, err := Load([]string{"-pm-power-cycling", "sometimes"}); err == nil {
		t.Fatalf("expected error for bad bool")
	}
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"console,mqtt", []string{"console", "mqtt"}},
		{" console , ,http ", []string{"console", "http"}},
	}
	for _, tt := range tests {
		if got := parseCSV(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("parseCSV(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}
