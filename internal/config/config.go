package config

import "time"

// Config is the complete runtime configuration of the gateway.
type Config struct {
	HTTP   HTTPConfig
	Auth   AuthConfig
	Audit  AuditConfig
	ADC    ADCConfig
	LIN    LINConfig
	CAN    CANConfig
	PWM    PWMConfig
	MQTT   MQTTConfig
	Timing TimingConfig
}

// HTTPConfig configures the dashboard API server.
type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// AuthConfig configures API authentication. An empty secret disables auth.
type AuthConfig struct {
	TokenSecret string
}

// AuditConfig configures the actuation audit trail.
type AuditConfig struct {
	Dir string
}

// ADCConfig configures the SPI-attached MCP3008 sampler.
type ADCConfig struct {
	Bus     string
	SpeedHz int

	VRef               float64
	Resolution         float64
	VoltageMultiplier  float64
	ResistanceRefOhms  float64
	VoltageThreshold   float64
	VoltageChannels    int
	ResistanceChannels int
}

// LINSensor maps a LIN protected identifier to a named channel.
type LINSensor struct {
	Name string
	PID  byte
	Unit string
}

// LINConfig configures the LIN master.
type LINConfig struct {
	Port            string
	BaudRate        int
	ResponseTimeout time.Duration
	Sensors         []LINSensor
}

// CANProbe is one request/response exchange on the CAN bus.
type CANProbe struct {
	Name       string
	RequestID  uint32
	ResponseID uint32
	Scale      float64
	Unit       string
}

// CANConfig configures the CAN client.
type CANConfig struct {
	Interface string
	Probes    []CANProbe
}

// PWMPin declares a pin the gateway manages through the daemon.
type PWMPin struct {
	Pin         int
	FrequencyHz int
}

// PWMConfig configures the privileged PWM daemon client.
type PWMConfig struct {
	DaemonURL      string
	RequestTimeout time.Duration
	RetryBudget    int
	RetryDelay     time.Duration
	Pins           []PWMPin
}

// MQTTConfig configures the telemetry publisher.
type MQTTConfig struct {
	BrokerURL       string
	ClientID        string
	Username        string
	Password        string
	TopicPrefix     string
	DiscoveryPrefix string
	DeviceName      string
}

// TimingConfig carries every interval, timeout and retry knob in one place.
type TimingConfig struct {
	ADCInterval       time.Duration
	LINInterval       time.Duration
	CANInterval       time.Duration
	PWMStatusInterval time.Duration

	RetryBudget   int
	RetryDelay    time.Duration
	BackoffFactor float64
	BackoffMax    time.Duration

	CommandTimeout time.Duration
	ShutdownGrace  time.Duration
}

// Defaults returns the baseline configuration. Every value can be
// overridden by file or environment.
func Defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:         ":8099",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Audit: AuditConfig{
			Dir: "logs",
		},
		ADC: ADCConfig{
			Bus:                "SPI1.1",
			SpeedHz:            1_000_000,
			VRef:               3.3,
			Resolution:         1023,
			VoltageMultiplier:  3.31,
			ResistanceRefOhms:  10_000,
			VoltageThreshold:   0.02,
			VoltageChannels:    4,
			ResistanceChannels: 2,
		},
		LIN: LINConfig{
			Port:            "/dev/ttyAMA2",
			BaudRate:        9600,
			ResponseTimeout: 2 * time.Second,
			Sensors: []LINSensor{
				{Name: "temp1", PID: 0x50, Unit: "°C"},
				{Name: "hum1", PID: 0x51, Unit: "%"},
			},
		},
		CAN: CANConfig{
			Interface: "can0",
			Probes: []CANProbe{
				{Name: "status1", RequestID: 0x120, ResponseID: 0x121, Scale: 0.01},
			},
		},
		PWM: PWMConfig{
			DaemonURL:      "http://127.0.0.1:8077",
			RequestTimeout: 3 * time.Second,
			RetryBudget:    2,
			RetryDelay:     250 * time.Millisecond,
			Pins: []PWMPin{
				{Pin: 12, FrequencyHz: 26_000},
			},
		},
		MQTT: MQTTConfig{
			BrokerURL:       "tcp://localhost:1883",
			ClientID:        "hgc_gateway",
			TopicPrefix:     "hgc",
			DiscoveryPrefix: "homeassistant",
			DeviceName:      "HGC Gateway",
		},
		Timing: TimingConfig{
			ADCInterval:       100 * time.Millisecond,
			LINInterval:       2 * time.Second,
			CANInterval:       1 * time.Second,
			PWMStatusInterval: 5 * time.Second,
			RetryBudget:       3,
			RetryDelay:        250 * time.Millisecond,
			BackoffFactor:     2.0,
			BackoffMax:        60 * time.Second,
			CommandTimeout:    5 * time.Second,
			ShutdownGrace:     5 * time.Second,
		},
	}
}
