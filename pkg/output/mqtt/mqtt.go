package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/enviro-to-mqtt/pkg/aggregator"
	"github.com/ericogr/enviro-to-mqtt/pkg/config"
	"github.com/ericogr/enviro-to-mqtt/pkg/output"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"

	groupCO2         = "co2"
	groupParticulate = "particulate"
	groupEnvironment = "environment"

	unitCelsius  = "°C"
	unitPercent  = "%"
	unitPM       = "µg/m³"
	stateClassMs = "measurement"
	publishWait  = 5 * time.Second
)

// publisher is the subset of mqtt.Client used to send messages.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type message struct {
	Topic    string
	Payload  string
	Retained bool
}

type MQTTOutput struct {
	client    mqtt.Client
	pub       publisher
	cfg       config.MQTTConfig
	logger    *zap.Logger
	discovery []message

	mu        sync.Mutex
	lastAvail *aggregator.Availability
}

// NewMQTT connects to the broker. The status and Home Assistant discovery
// messages are sent from the connect handler, so every reconnect restores
// them after the broker has published the will.
func NewMQTT(cfg config.MQTTConfig, logger *zap.Logger) (output.Output, error) {
	m := &MQTTOutput{cfg: cfg, logger: logger}
	if cfg.DiscoveryEnabled() {
		msgs, err := discoveryMessages(cfg)
		if err != nil {
			return nil, err
		}
		m.discovery = msgs
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "enviro-" + uuid.NewString()[:8]
	}
	client := mqtt.NewClient(m.clientOptions(clientID))
	m.client = client
	m.pub = client

	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	logger.Info("mqtt connected", zap.String("server", cfg.Server), zap.String("client_id", clientID))
	return m, nil
}

func (m *MQTTOutput) clientOptions(clientID string) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.Server).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetWill(statusTopic(m.cfg.BaseTopic), payloadOffline, 1, true).
		SetOnConnectHandler(func(mqtt.Client) { m.onConnect() }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.logger.Warn("mqtt connection lost", zap.Error(err))
		})
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
	}
	if m.cfg.Password != "" {
		opts.SetPassword(m.cfg.Password)
	}
	return opts
}

// onConnect runs after the first connect and after every reconnect.
func (m *MQTTOutput) onConnect() {
	m.mu.Lock()
	m.lastAvail = nil
	m.mu.Unlock()

	if err := m.send(message{Topic: statusTopic(m.cfg.BaseTopic), Payload: payloadOnline, Retained: true}); err != nil {
		m.logger.Error("mqtt status publish error", zap.Error(err))
	}
	if len(m.discovery) == 0 {
		return
	}
	for _, msg := range m.discovery {
		if err := m.send(msg); err != nil {
			m.logger.Error("mqtt discovery publish error", zap.String("topic", msg.Topic), zap.Error(err))
		}
	}
	m.logger.Info("sent home assistant discovery", zap.Int("entities", len(m.discovery)))
}

// Publish sends availability changes followed by the state values. The
// availability is remembered only once all of its messages were delivered.
func (m *MQTTOutput) Publish(s aggregator.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	avail := aggregator.AvailabilityOf(s)
	sent := 0
	if m.lastAvail == nil || *m.lastAvail != avail {
		for _, msg := range availabilityMessages(m.cfg.BaseTopic, avail) {
			if err := m.send(msg); err != nil {
				return fmt.Errorf("publish %s: %w", msg.Topic, err)
			}
			sent++
		}
		m.lastAvail = &avail
	}
	for _, msg := range stateMessages(m.cfg, s) {
		if err := m.send(msg); err != nil {
			return fmt.Errorf("publish %s: %w", msg.Topic, err)
		}
		sent++
	}
	m.logger.Debug("published sensor data to mqtt", zap.Int("messages", sent))
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		_ = m.send(message{Topic: statusTopic(m.cfg.BaseTopic), Payload: payloadOffline, Retained: true})
		m.client.Disconnect(250)
	}
	return nil
}

func (m *MQTTOutput) send(msg message) error {
	token := m.pub.Publish(msg.Topic, 0, msg.Retained, msg.Payload)
	if !token.WaitTimeout(publishWait) {
		return fmt.Errorf("timed out after %s", publishWait)
	}
	return token.Error()
}

func statusTopic(base string) string { return base + "/status" }

func groupStatusTopic(base, group string) string { return base + "/" + group + "/status" }

func availabilityMessages(base string, a aggregator.Availability) []message {
	state := func(ok bool) string {
		if ok {
			return payloadOnline
		}
		return payloadOffline
	}
	return []message{
		{Topic: groupStatusTopic(base, groupCO2), Payload: state(a.CO2), Retained: true},
		{Topic: groupStatusTopic(base, groupParticulate), Payload: state(a.Particulate), Retained: true},
		{Topic: groupStatusTopic(base, groupEnvironment), Payload: state(a.Environment), Retained: true},
	}
}

func formatValue(v float64) string { return strconv.FormatFloat(output.Round1(v), 'f', 1, 64) }

// stateMessages maps a snapshot to state topics. Temperature and humidity
// follow the configured reporting mode.
func stateMessages(cfg config.MQTTConfig, s aggregator.Snapshot) []message {
	base := cfg.BaseTopic
	var msgs []message
	add := func(key string, v float64) {
		msgs = append(msgs, message{Topic: base + "/" + key, Payload: formatValue(v)})
	}

	if s.CO2 != nil {
		msgs = append(msgs, message{Topic: base + "/co2", Payload: strconv.Itoa(s.CO2.CO2)})
	}

	scd := s.CO2
	var bme *weather
	if s.Environment != nil && s.Environment.Weather != nil {
		bme = &weather{s.Environment.Weather.Temperature, s.Environment.Weather.Humidity}
	}
	switch cfg.TempHumidityMode {
	case config.ModeBoth:
		if scd != nil {
			add("temperature_scd41", scd.Temperature)
			add("humidity_scd41", scd.Humidity)
		}
		if bme != nil {
			add("temperature_enviro", bme.temperature)
			add("humidity_enviro", bme.humidity)
		}
	case config.ModeSCD41Only:
		if scd != nil {
			add("temperature", scd.Temperature)
			add("humidity", scd.Humidity)
		}
	case config.ModeAverage:
		switch {
		case scd != nil && bme != nil:
			add("temperature", (scd.Temperature+bme.temperature)/2)
			add("humidity", (scd.Humidity+bme.humidity)/2)
		case scd != nil:
			add("temperature", scd.Temperature)
			add("humidity", scd.Humidity)
		case bme != nil:
			add("temperature", bme.temperature)
			add("humidity", bme.humidity)
		}
	case config.ModeSCD41Primary:
		if scd != nil {
			add("temperature", scd.Temperature)
			add("humidity", scd.Humidity)
		}
		if bme != nil {
			add("temperature_diagnostic", bme.temperature)
			add("humidity_diagnostic", bme.humidity)
		}
	default:
		if bme != nil {
			add("temperature", bme.temperature)
			add("humidity", bme.humidity)
		}
	}

	if s.Environment != nil && s.Environment.Weather != nil {
		add("pressure", s.Environment.Weather.Pressure)
	}
	if p := s.Particulate; p != nil && p.HasData() {
		add("pm1", p.PM1)
		add("pm25", p.PM25)
		add("pm10", p.PM10)
	}
	if s.Environment != nil && s.Environment.Light != nil {
		add("lux", s.Environment.Light.Lux)
	}
	return msgs
}

type weather struct {
	temperature float64
	humidity    float64
}

// entity is one Home Assistant sensor announced via discovery.
type entity struct {
	key            string
	name           string
	unit           string
	deviceClass    string
	icon           string
	entityCategory string
	group          string
}

func climateEntities(mode string) []entity {
	temp := func(key, name, group, category string) entity {
		return entity{key: key, name: name, unit: unitCelsius, deviceClass: "temperature", group: group, entityCategory: category}
	}
	hum := func(key, name, group, category string) entity {
		return entity{key: key, name: name, unit: unitPercent, deviceClass: "humidity", group: group, entityCategory: category}
	}
	switch mode {
	case config.ModeBoth:
		return []entity{
			temp("temperature_scd41", "Temperature (SCD41)", groupCO2, ""),
			hum("humidity_scd41", "Humidity (SCD41)", groupCO2, ""),
			temp("temperature_enviro", "Temperature (Enviro)", groupEnvironment, ""),
			hum("humidity_enviro", "Humidity (Enviro)", groupEnvironment, ""),
		}
	case config.ModeSCD41Only:
		return []entity{temp("temperature", "Temperature", groupCO2, ""), hum("humidity", "Humidity", groupCO2, "")}
	case config.ModeAverage:
		return []entity{temp("temperature", "Temperature", "", ""), hum("humidity", "Humidity", "", "")}
	case config.ModeSCD41Primary:
		return []entity{
			temp("temperature", "Temperature", groupCO2, ""),
			hum("humidity", "Humidity", groupCO2, ""),
			temp("temperature_diagnostic", "Temperature (Enviro)", groupEnvironment, "diagnostic"),
			hum("humidity_diagnostic", "Humidity (Enviro)", groupEnvironment, "diagnostic"),
		}
	default:
		return []entity{temp("temperature", "Temperature", groupEnvironment, ""), hum("humidity", "Humidity", groupEnvironment, "")}
	}
}

func entities(mode string) []entity {
	var out []entity
	if mode != config.ModeBME280Only {
		out = append(out, entity{key: "co2", name: "CO2", unit: "ppm", deviceClass: "carbon_dioxide", icon: "mdi:molecule-co2", group: groupCO2})
	}
	out = append(out, climateEntities(mode)...)
	out = append(out,
		entity{key: "pressure", name: "Pressure", unit: "hPa", deviceClass: "pressure", group: groupEnvironment},
		entity{key: "pm1", name: "PM1", unit: unitPM, deviceClass: "pm1", icon: "mdi:air-filter", group: groupParticulate},
		entity{key: "pm25", name: "PM2.5", unit: unitPM, deviceClass: "pm25", icon: "mdi:air-filter", group: groupParticulate},
		entity{key: "pm10", name: "PM10", unit: unitPM, deviceClass: "pm10", icon: "mdi:air-filter", group: groupParticulate},
		entity{key: "lux", name: "Light Level", unit: "lx", deviceClass: "illuminance", group: groupEnvironment},
	)
	return out
}

type availabilityRef struct {
	Topic string `json:"topic"`
}

type deviceRef struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model,omitempty"`
}

type discoveryPayload struct {
	Name              string            `json:"name"`
	UniqueID          string            `json:"unique_id"`
	StateTopic        string            `json:"state_topic"`
	UnitOfMeasurement string            `json:"unit_of_measurement"`
	DeviceClass       string            `json:"device_class"`
	StateClass        string            `json:"state_class"`
	Icon              string            `json:"icon,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	Availability      []availabilityRef `json:"availability"`
	AvailabilityMode  string            `json:"availability_mode"`
	Device            deviceRef         `json:"device"`
}

// discoveryMessages builds the retained Home Assistant configuration for every
// entity the reporting mode produces.
func discoveryMessages(cfg config.MQTTConfig) ([]message, error) {
	dev := deviceRef{
		Identifiers:  []string{cfg.Device.Identifier},
		Name:         cfg.Device.Name,
		Manufacturer: cfg.Device.Manufacturer,
		Model:        cfg.Device.Model,
	}
	var msgs []message
	for _, e := range entities(cfg.TempHumidityMode) {
		uid := cfg.Device.Identifier + "_" + e.key
		avail := []availabilityRef{{Topic: statusTopic(cfg.BaseTopic)}}
		if e.group != "" {
			avail = append(avail, availabilityRef{Topic: groupStatusTopic(cfg.BaseTopic, e.group)})
		}
		b, err := json.Marshal(discoveryPayload{
			Name:              e.name,
			UniqueID:          uid,
			StateTopic:        cfg.BaseTopic + "/" + e.key,
			UnitOfMeasurement: e.unit,
			DeviceClass:       e.deviceClass,
			StateClass:        stateClassMs,
			Icon:              e.icon,
			EntityCategory:    e.entityCategory,
			Availability:      avail,
			AvailabilityMode:  "all",
			Device:            dev,
		})
		if err != nil {
			return nil, fmt.Errorf("discovery %s: %w", e.key, err)
		}
		msgs = append(msgs, message{
			Topic:    fmt.Sprintf("%s/sensor/%s/config", cfg.DiscoveryPrefix, uid),
			Payload:  string(b),
			Retained: true,
		})
	}
	return msgs, nil
}
