package config

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"
)

const (
	SensorTypeReal       = "real"
	SensorTypeSimulation = "simulation"

	OutputConsole = "console"
	OutputDisplay = "display"
	OutputMQTT    = "mqtt"
	OutputKafka   = "kafka"
	OutputHTTP    = "http"
)

// Temperature/humidity reporting modes for the MQTT output.
const (
	ModeBoth         = "both"
	ModeSCD41Only    = "scd41_only"
	ModeBME280Only   = "bme280_only"
	ModeAverage      = "average"
	ModeSCD41Primary = "scd41_primary"
)

type GeneralConfig struct {
	UpdateInterval int    `yaml:"update_interval" json:"update_interval" env:"UPDATE_INTERVAL"`
	SensorType     string `yaml:"sensor_type" json:"sensor_type" env:"SENSOR_TYPE"`
	SettleSeconds  int    `yaml:"settle_seconds" json:"settle_seconds" env:"SETTLE_SECONDS"`
}

type I2CConfig struct {
	Bus string `yaml:"bus" json:"bus" env:"I2C_BUS"`
}

type SCD41Config struct {
	Enabled           bool    `yaml:"enabled" json:"enabled" env:"SCD41_ENABLED"`
	Address           int     `yaml:"address" json:"address"`
	Altitude          int     `yaml:"altitude" json:"altitude" env:"SCD41_ALTITUDE"`
	TemperatureOffset float64 `yaml:"temperature_offset" json:"temperature_offset" env:"SCD41_TEMPERATURE_OFFSET"`
}

type EnviroConfig struct {
	Enabled             bool   `yaml:"enabled" json:"enabled" env:"ENVIRO_ENABLED"`
	TemperatureHumidity bool   `yaml:"temperature_humidity" json:"temperature_humidity"`
	Light               bool   `yaml:"light" json:"light"`
	GasSensors          bool   `yaml:"gas_sensors" json:"gas_sensors"`
	BME280Address       int    `yaml:"bme280_address" json:"bme280_address"`
	LTR559Address       int    `yaml:"ltr559_address" json:"ltr559_address"`
	ADS1015Address      int    `yaml:"ads1015_address" json:"ads1015_address"`
	GasHeaterPin        string `yaml:"gas_heater_pin" json:"gas_heater_pin"`
}

// PMConfig configures the duty-cycled particulate sensor.
type PMConfig struct {
	Enabled             bool   `yaml:"pm_sensor" json:"pm_sensor" env:"PM_ENABLED"`
	PowerCyclingEnabled bool   `yaml:"power_cycling_enabled" json:"power_cycling_enabled" env:"PM_POWER_CYCLING_ENABLED"`
	WarmupSeconds       int    `yaml:"warmup_seconds" json:"warmup_seconds" env:"PM_WARMUP_SECONDS"`
	SleepSeconds        int    `yaml:"sleep_seconds" json:"sleep_seconds" env:"PM_SLEEP_SECONDS"`
	DevicePath          string `yaml:"device_path" json:"device_path" env:"PM_DEVICE_PATH"`
	EnablePin           string `yaml:"enable_pin" json:"enable_pin" env:"PM_ENABLE_PIN"`
	BaudRate            int    `yaml:"baud_rate" json:"baud_rate"`
	ReadTimeoutMs       int    `yaml:"read_timeout_ms" json:"read_timeout_ms"`
}

func (c PMConfig) Warmup() time.Duration { return time.Duration(c.WarmupSeconds) * time.Second }
func (c PMConfig) Sleep() time.Duration  { return time.Duration(c.SleepSeconds) * time.Second }
func (c PMConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

type DeviceConfig struct {
	Identifier   string `yaml:"identifier" json:"identifier"`
	Name         string `yaml:"name" json:"name"`
	Manufacturer string `yaml:"manufacturer" json:"manufacturer"`
	Model        string `yaml:"model" json:"model"`
}

type MQTTConfig struct {
	Server           string       `yaml:"server" json:"server"`
	Username         string       `yaml:"username" json:"username"`
	Password         string       `yaml:"password" json:"password"`
	ClientID         string       `yaml:"client_id" json:"client_id"`
	BaseTopic        string       `yaml:"base_topic" json:"base_topic"`
	DiscoveryPrefix  string       `yaml:"discovery_prefix" json:"discovery_prefix"`
	Discovery        *bool        `yaml:"discovery" json:"discovery"`
	TempHumidityMode string       `yaml:"temp_humidity_mode" json:"temp_humidity_mode"`
	Device           DeviceConfig `yaml:"device" json:"device"`
}

// DiscoveryEnabled defaults to true when unset.
func (m MQTTConfig) DiscoveryEnabled() bool { return m.Discovery == nil || *m.Discovery }

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers"`
	Topic   string   `yaml:"topic" json:"topic"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen" json:"listen"`
}

type DisplayConfig struct {
	Screens []string `yaml:"screens" json:"screens"`
}

type OutputConfig struct {
	Type    string         `yaml:"type" json:"type"`
	MQTT    *MQTTConfig    `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	Kafka   *KafkaConfig   `yaml:"kafka,omitempty" json:"kafka,omitempty"`
	HTTP    *HTTPConfig    `yaml:"http,omitempty" json:"http,omitempty"`
	Display *DisplayConfig `yaml:"display,omitempty" json:"display,omitempty"`
}

type Config struct {
	General GeneralConfig  `yaml:"general" json:"general"`
	Logging LoggingConfig  `yaml:"logging" json:"logging"`
	I2C     I2CConfig      `yaml:"i2c" json:"i2c"`
	SCD41   SCD41Config    `yaml:"scd41" json:"scd41"`
	Enviro  EnviroConfig   `yaml:"enviro" json:"enviro"`
	PM      PMConfig       `yaml:"pm" json:"pm"`
	Outputs []OutputConfig `yaml:"outputs" json:"outputs"`
}

func (c Config) UpdateInterval() time.Duration {
	return time.Duration(c.General.UpdateInterval) * time.Second
}

// SettleDelay is the wait before the second read of the first tick; 0 disables it.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.General.SettleSeconds) * time.Second
}

func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{UpdateInterval: 5, SensorType: SensorTypeReal, SettleSeconds: 10},
		Logging: LoggingConfig{Format: "console", Level: "info"},
		I2C:     I2CConfig{Bus: "1"},
		SCD41:   SCD41Config{Enabled: true, Address: 0x62, TemperatureOffset: 4.0},
		Enviro: EnviroConfig{
			Enabled:             true,
			TemperatureHumidity: true,
			Light:               true,
			GasSensors:          false,
			BME280Address:       0x76,
			LTR559Address:       0x23,
			ADS1015Address:      0x49,
			GasHeaterPin:        "GPIO24",
		},
		PM: PMConfig{
			Enabled:             true,
			PowerCyclingEnabled: true,
			WarmupSeconds:       30,
			SleepSeconds:        180,
			DevicePath:          "/dev/ttyAMA0",
			EnablePin:           "GPIO22",
			BaudRate:            9600,
			ReadTimeoutMs:       5000,
		},
		Outputs: []OutputConfig{{Type: OutputConsole}},
	}
}

func defaultMQTT() MQTTConfig {
	return MQTTConfig{
		Server:           "tcp://localhost:1883",
		BaseTopic:        "airsensor",
		DiscoveryPrefix:  "homeassistant",
		TempHumidityMode: ModeBME280Only,
		Device: DeviceConfig{
			Identifier:   "airsensor_01",
			Name:         "Air Quality Sensor",
			Manufacturer: "artyzan.net",
			Model:        "Enviro+ SCD41",
		},
	}
}

// Load reads the optional config file (YAML or JSON, chosen by extension),
// applies environment overrides and then command line flags.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("enviro-to-mqtt", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to YAML or JSON config file")
	flagInterval := fs.Int("interval", -1, "Update interval in seconds")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|simulation")
	flagI2CBus := fs.String("i2c-bus", "", "I2C bus (e.g., '1' -> /dev/i2c-1)")
	flagPMDevice := fs.String("pm-device", "", "PMS5003 serial device path")
	flagPMCycling := fs.String("pm-power-cycling", "", "Enable PM sensor power cycling (true|false)")
	flagPMWarmup := fs.Int("pm-warmup", -1, "PM sensor warmup in seconds")
	flagPMSleep := fs.Int("pm-sleep", -1, "PM sensor sleep in seconds")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,display,mqtt,kafka,http)")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT base topic")
	flagLogLevel := fs.String("log-level", "", "Log level: debug|info|warn|error")
	flagLogFormat := fs.String("log-format", "", "Log format: console|json|logfmt")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	if *cfgPath != "" {
		if err := cleanenv.ReadConfig(*cfgPath, &cfg); err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read env: %w", err)
	}

	if *flagInterval != -1 {
		cfg.General.UpdateInterval = *flagInterval
	}
	if *flagSensorType != "" {
		cfg.General.SensorType = *flagSensorType
	}
	if *flagI2CBus != "" {
		cfg.I2C.Bus = *flagI2CBus
	}
	if *flagPMDevice != "" {
		cfg.PM.DevicePath = *flagPMDevice
	}
	if *flagPMCycling != "" {
		v, err := strconv.ParseBool(*flagPMCycling)
		if err != nil {
			return cfg, fmt.Errorf("pm-power-cycling: %w", err)
		}
		cfg.PM.PowerCyclingEnabled = v
	}
	if *flagPMWarmup != -1 {
		cfg.PM.WarmupSeconds = *flagPMWarmup
	}
	if *flagPMSleep != -1 {
		cfg.PM.SleepSeconds = *flagPMSleep
	}
	if *flagOutputs != "" {
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}
	// mqtt flags apply to every mqtt output; one is created if missing
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" {
		apply := func(m *MQTTConfig) {
			if *flagMQTTServer != "" {
				m.Server = *flagMQTTServer
			}
			if *flagMQTTUser != "" {
				m.Username = *flagMQTTUser
			}
			if *flagMQTTPass != "" {
				m.Password = *flagMQTTPass
			}
			if *flagClientID != "" {
				m.ClientID = *flagClientID
			}
			if *flagTopic != "" {
				m.BaseTopic = *flagTopic
			}
		}
		applied := false
		for i := range cfg.Outputs {
			if cfg.Outputs[i].Type == OutputMQTT {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				apply(cfg.Outputs[i].MQTT)
				applied = true
			}
		}
		if !applied {
			out := OutputConfig{Type: OutputMQTT, MQTT: &MQTTConfig{}}
			apply(out.MQTT)
			cfg.Outputs = append(cfg.Outputs, out)
		}
	}
	if *flagLogLevel != "" {
		cfg.Logging.Level = *flagLogLevel
	}
	if *flagLogFormat != "" {
		cfg.Logging.Format = *flagLogFormat
	}

	cfg.applyOutputDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyOutputDefaults fills unset per-output options.
func (c *Config) applyOutputDefaults() {
	for i := range c.Outputs {
		o := &c.Outputs[i]
		o.Type = strings.ToLower(strings.TrimSpace(o.Type))
		switch o.Type {
		case OutputMQTT:
			def := defaultMQTT()
			if o.MQTT == nil {
				o.MQTT = &def
				continue
			}
			if o.MQTT.Server == "" {
				o.MQTT.Server = def.Server
			}
			if o.MQTT.BaseTopic == "" {
				o.MQTT.BaseTopic = def.BaseTopic
			}
			if o.MQTT.DiscoveryPrefix == "" {
				o.MQTT.DiscoveryPrefix = def.DiscoveryPrefix
			}
			if o.MQTT.TempHumidityMode == "" {
				o.MQTT.TempHumidityMode = def.TempHumidityMode
			}
			if o.MQTT.Device.Identifier == "" {
				o.MQTT.Device.Identifier = def.Device.Identifier
			}
			if o.MQTT.Device.Name == "" {
				o.MQTT.Device.Name = def.Device.Name
			}
			if o.MQTT.Device.Manufacturer == "" {
				o.MQTT.Device.Manufacturer = def.Device.Manufacturer
			}
			if o.MQTT.Device.Model == "" {
				o.MQTT.Device.Model = def.Device.Model
			}
		case OutputKafka:
			if o.Kafka == nil {
				o.Kafka = &KafkaConfig{}
			}
			if len(o.Kafka.Brokers) == 0 {
				o.Kafka.Brokers = []string{"localhost:9092"}
			}
			if o.Kafka.Topic == "" {
				o.Kafka.Topic = "airsensor.snapshots"
			}
		case OutputHTTP:
			if o.HTTP == nil {
				o.HTTP = &HTTPConfig{}
			}
			if o.HTTP.Listen == "" {
				o.HTTP.Listen = ":8080"
			}
		case OutputDisplay:
			if o.Display == nil {
				o.Display = &DisplayConfig{}
			}
			if len(o.Display.Screens) == 0 {
				o.Display.Screens = []string{"co2", "pm", "env", "summary"}
			}
		}
	}
}

var validModes = map[string]bool{
	ModeBoth:         true,
	ModeSCD41Only:    true,
	ModeBME280Only:   true,
	ModeAverage:      true,
	ModeSCD41Primary: true,
}

var validScreens = map[string]bool{"co2": true, "pm": true, "env": true, "summary": true}

// Validate checks ranges and output settings.
func (c *Config) Validate() error {
	if c.General.UpdateInterval < 1 {
		return errors.New("update interval must be at least 1 second")
	}
	if c.General.SettleSeconds < 0 {
		return errors.New("settle seconds must not be negative")
	}
	switch c.General.SensorType {
	case SensorTypeReal, SensorTypeSimulation:
	default:
		return fmt.Errorf("sensor type must be %q or %q, got %q", SensorTypeReal, SensorTypeSimulation, c.General.SensorType)
	}
	if c.PM.WarmupSeconds < 0 || c.PM.SleepSeconds < 0 {
		return errors.New("pm warmup and sleep must not be negative")
	}
	if c.PM.Enabled && c.PM.DevicePath == "" {
		return errors.New("pm device path is required")
	}
	if c.PM.ReadTimeoutMs <= 0 {
		return errors.New("pm read timeout must be > 0")
	}
	for i, o := range c.Outputs {
		switch o.Type {
		case OutputConsole:
		case OutputDisplay:
			for _, s := range o.Display.Screens {
				if !validScreens[s] {
					return fmt.Errorf("output %d: unknown display screen %q", i, s)
				}
			}
		case OutputMQTT:
			if o.MQTT.Server == "" {
				return fmt.Errorf("output %d: mqtt server is required", i)
			}
			if !validModes[o.MQTT.TempHumidityMode] {
				return fmt.Errorf("output %d: unknown temp_humidity_mode %q", i, o.MQTT.TempHumidityMode)
			}
		case OutputKafka:
			if len(o.Kafka.Brokers) == 0 || o.Kafka.Topic == "" {
				return fmt.Errorf("output %d: kafka brokers and topic are required", i)
			}
		case OutputHTTP:
		default:
			return fmt.Errorf("output %d: unknown type %q", i, o.Type)
		}
	}
	return ValidateLogging(&c.Logging)
}

// PrintConfig logs the effective configuration with secrets masked.
func (c *Config) PrintConfig(logger *zap.Logger) {
	outputs := make([]string, 0, len(c.Outputs))
	for _, o := range c.Outputs {
		outputs = append(outputs, o.Type)
	}
	logger.Info("configuration loaded",
		zap.Int("update_interval_seconds", c.General.UpdateInterval),
		zap.Int("settle_seconds", c.General.SettleSeconds),
		zap.String("sensor_type", c.General.SensorType),
		zap.String("i2c_bus", c.I2C.Bus),
		zap.Bool("scd41_enabled", c.SCD41.Enabled),
		zap.Int("scd41_altitude", c.SCD41.Altitude),
		zap.Float64("scd41_temperature_offset", c.SCD41.TemperatureOffset),
		zap.Bool("enviro_enabled", c.Enviro.Enabled),
		zap.Bool("pm_enabled", c.PM.Enabled),
		zap.Bool("pm_power_cycling_enabled", c.PM.PowerCyclingEnabled),
		zap.Int("pm_warmup_seconds", c.PM.WarmupSeconds),
		zap.Int("pm_sleep_seconds", c.PM.SleepSeconds),
		zap.String("pm_device_path", c.PM.DevicePath),
		zap.Strings("outputs", outputs),
		zap.String("log_format", c.Logging.Format),
		zap.String("log_level", c.Logging.Level),
	)
	for _, o := range c.Outputs {
		if o.Type == OutputMQTT {
			logger.Info("mqtt output",
				zap.String("server", o.MQTT.Server),
				zap.String("username", o.MQTT.Username),
				zap.Bool("password_set", o.MQTT.Password != ""),
				zap.String("base_topic", o.MQTT.BaseTopic),
				zap.String("temp_humidity_mode", o.MQTT.TempHumidityMode),
			)
		}
	}
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
