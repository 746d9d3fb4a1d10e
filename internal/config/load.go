package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape of the configuration file. Durations are
// millisecond integers; zero values mean "keep the current value".
type fileConfig struct {
	HTTP struct {
		Addr           string `yaml:"addr"`
		ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
		WriteTimeoutMs int    `yaml:"write_timeout_ms"`
		IdleTimeoutMs  int    `yaml:"idle_timeout_ms"`
	} `yaml:"http"`

	Auth struct {
		TokenSecret string `yaml:"token_secret"`
	} `yaml:"auth"`

	Audit struct {
		Dir string `yaml:"dir"`
	} `yaml:"audit"`

	ADC struct {
		Bus                string  `yaml:"bus"`
		SpeedHz            int     `yaml:"speed_hz"`
		VRef               float64 `yaml:"vref"`
		VoltageMultiplier  float64 `yaml:"voltage_multiplier"`
		ResistanceRefOhms  float64 `yaml:"resistance_ref_ohms"`
		VoltageThreshold   float64 `yaml:"voltage_threshold"`
		VoltageChannels    int     `yaml:"voltage_channels"`
		ResistanceChannels int     `yaml:"resistance_channels"`
	} `yaml:"adc"`

	LIN struct {
		Port              string `yaml:"port"`
		BaudRate          int    `yaml:"baud_rate"`
		ResponseTimeoutMs int    `yaml:"response_timeout_ms"`
		Sensors           []struct {
			Name string `yaml:"name"`
			PID  uint8  `yaml:"pid"`
			Unit string `yaml:"unit"`
		} `yaml:"sensors"`
	} `yaml:"lin"`

	CAN struct {
		Interface string `yaml:"interface"`
		Probes    []struct {
			Name       string  `yaml:"name"`
			RequestID  uint32  `yaml:"request_id"`
			ResponseID uint32  `yaml:"response_id"`
			Scale      float64 `yaml:"scale"`
			Unit       string  `yaml:"unit"`
		} `yaml:"probes"`
	} `yaml:"can"`

	PWM struct {
		DaemonURL        string `yaml:"daemon_url"`
		RequestTimeoutMs int    `yaml:"request_timeout_ms"`
		RetryBudget      *int   `yaml:"retry_budget"`
		RetryDelayMs     int    `yaml:"retry_delay_ms"`
		Pins             []struct {
			Pin         int `yaml:"pin"`
			FrequencyHz int `yaml:"frequency_hz"`
		} `yaml:"pins"`
	} `yaml:"pwm"`

	MQTT struct {
		BrokerURL       string `yaml:"broker_url"`
		ClientID        string `yaml:"client_id"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		TopicPrefix     string `yaml:"topic_prefix"`
		DiscoveryPrefix string `yaml:"discovery_prefix"`
		DeviceName      string `yaml:"device_name"`
	} `yaml:"mqtt"`

	Timing struct {
		ADCIntervalMs       int      `yaml:"adc_interval_ms"`
		LINIntervalMs       int      `yaml:"lin_interval_ms"`
		CANIntervalMs       int      `yaml:"can_interval_ms"`
		PWMStatusIntervalMs int      `yaml:"pwm_status_interval_ms"`
		RetryBudget         *int     `yaml:"retry_budget"`
		RetryDelayMs        int      `yaml:"retry_delay_ms"`
		BackoffFactor       float64  `yaml:"backoff_factor"`
		BackoffMaxMs        int      `yaml:"backoff_max_ms"`
		CommandTimeoutMs    int      `yaml:"command_timeout_ms"`
		ShutdownGraceMs     int      `yaml:"shutdown_grace_ms"`
	} `yaml:"timing"`
}

// Load merges Defaults() + optional YAML file + HGC_* env overrides, then
// validates the result.
func Load() (*Config, error) {
	cfg := Defaults()

	path := os.Getenv("HGC_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		if err := applyFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyFile merges a YAML file over cfg. Only non-zero file values win.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	setString(&cfg.HTTP.Addr, fc.HTTP.Addr)
	setMs(&cfg.HTTP.ReadTimeout, fc.HTTP.ReadTimeoutMs)
	setMs(&cfg.HTTP.WriteTimeout, fc.HTTP.WriteTimeoutMs)
	setMs(&cfg.HTTP.IdleTimeout, fc.HTTP.IdleTimeoutMs)

	setString(&cfg.Auth.TokenSecret, fc.Auth.TokenSecret)
	setString(&cfg.Audit.Dir, fc.Audit.Dir)

	setString(&cfg.ADC.Bus, fc.ADC.Bus)
	setInt(&cfg.ADC.SpeedHz, fc.ADC.SpeedHz)
	setFloat(&cfg.ADC.VRef, fc.ADC.VRef)
	setFloat(&cfg.ADC.VoltageMultiplier, fc.ADC.VoltageMultiplier)
	setFloat(&cfg.ADC.ResistanceRefOhms, fc.ADC.ResistanceRefOhms)
	setFloat(&cfg.ADC.VoltageThreshold, fc.ADC.VoltageThreshold)
	setInt(&cfg.ADC.VoltageChannels, fc.ADC.VoltageChannels)
	setInt(&cfg.ADC.ResistanceChannels, fc.ADC.ResistanceChannels)

	setString(&cfg.LIN.Port, fc.LIN.Port)
	setInt(&cfg.LIN.BaudRate, fc.LIN.BaudRate)
	setMs(&cfg.LIN.ResponseTimeout, fc.LIN.ResponseTimeoutMs)
	if len(fc.LIN.Sensors) > 0 {
		sensors := make([]LINSensor, 0, len(fc.LIN.Sensors))
		for _, s := range fc.LIN.Sensors {
			sensors = append(sensors, LINSensor{Name: s.Name, PID: s.PID, Unit: s.Unit})
		}
		cfg.LIN.Sensors = sensors
	}

	setString(&cfg.CAN.Interface, fc.CAN.Interface)
	if len(fc.CAN.Probes) > 0 {
		probes := make([]CANProbe, 0, len(fc.CAN.Probes))
		for _, p := range fc.CAN.Probes {
			probes = append(probes, CANProbe{
				Name:       p.Name,
				RequestID:  p.RequestID,
				ResponseID: p.ResponseID,
				Scale:      p.Scale,
				Unit:       p.Unit,
			})
		}
		cfg.CAN.Probes = probes
	}

	setString(&cfg.PWM.DaemonURL, fc.PWM.DaemonURL)
	setMs(&cfg.PWM.RequestTimeout, fc.PWM.RequestTimeoutMs)
	if fc.PWM.RetryBudget != nil {
		cfg.PWM.RetryBudget = *fc.PWM.RetryBudget
	}
	setMs(&cfg.PWM.RetryDelay, fc.PWM.RetryDelayMs)
	if len(fc.PWM.Pins) > 0 {
		pins := make([]PWMPin, 0, len(fc.PWM.Pins))
		for _, p := range fc.PWM.Pins {
			pins = append(pins, PWMPin{Pin: p.Pin, FrequencyHz: p.FrequencyHz})
		}
		cfg.PWM.Pins = pins
	}

	setString(&cfg.MQTT.BrokerURL, fc.MQTT.BrokerURL)
	setString(&cfg.MQTT.ClientID, fc.MQTT.ClientID)
	setString(&cfg.MQTT.Username, fc.MQTT.Username)
	setString(&cfg.MQTT.Password, fc.MQTT.Password)
	setString(&cfg.MQTT.TopicPrefix, fc.MQTT.TopicPrefix)
	setString(&cfg.MQTT.DiscoveryPrefix, fc.MQTT.DiscoveryPrefix)
	setString(&cfg.MQTT.DeviceName, fc.MQTT.DeviceName)

	setMs(&cfg.Timing.ADCInterval, fc.Timing.ADCIntervalMs)
	setMs(&cfg.Timing.LINInterval, fc.Timing.LINIntervalMs)
	setMs(&cfg.Timing.CANInterval, fc.Timing.CANIntervalMs)
	setMs(&cfg.Timing.PWMStatusInterval, fc.Timing.PWMStatusIntervalMs)
	if fc.Timing.RetryBudget != nil {
		cfg.Timing.RetryBudget = *fc.Timing.RetryBudget
	}
	setMs(&cfg.Timing.RetryDelay, fc.Timing.RetryDelayMs)
	setFloat(&cfg.Timing.BackoffFactor, fc.Timing.BackoffFactor)
	setMs(&cfg.Timing.BackoffMax, fc.Timing.BackoffMaxMs)
	setMs(&cfg.Timing.CommandTimeout, fc.Timing.CommandTimeoutMs)
	setMs(&cfg.Timing.ShutdownGrace, fc.Timing.ShutdownGraceMs)

	return nil
}

// applyEnvOverrides applies HGC_* environment variables on top of the
// current configuration. Durations use time.ParseDuration syntax.
func applyEnvOverrides(cfg *Config) {
	cfg.HTTP.Addr = envString("HGC_ADDR", cfg.HTTP.Addr)
	cfg.Auth.TokenSecret = envString("HGC_API_TOKEN_SECRET", cfg.Auth.TokenSecret)
	cfg.Audit.Dir = envString("HGC_AUDIT_DIR", cfg.Audit.Dir)

	cfg.ADC.Bus = envString("HGC_ADC_BUS", cfg.ADC.Bus)
	cfg.LIN.Port = envString("HGC_LIN_PORT", cfg.LIN.Port)
	cfg.LIN.BaudRate = envInt("HGC_LIN_BAUD", cfg.LIN.BaudRate)
	cfg.CAN.Interface = envString("HGC_CAN_INTERFACE", cfg.CAN.Interface)
	cfg.PWM.DaemonURL = envString("HGC_PWM_DAEMON_URL", cfg.PWM.DaemonURL)

	cfg.MQTT.BrokerURL = envString("HGC_MQTT_BROKER", cfg.MQTT.BrokerURL)
	cfg.MQTT.ClientID = envString("HGC_MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = envString("HGC_MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = envString("HGC_MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.TopicPrefix = envString("HGC_MQTT_PREFIX", cfg.MQTT.TopicPrefix)
	cfg.MQTT.DiscoveryPrefix = envString("HGC_MQTT_DISCOVERY_PREFIX", cfg.MQTT.DiscoveryPrefix)

	cfg.Timing.ADCInterval = envDuration("HGC_TIMING_ADC_INTERVAL", cfg.Timing.ADCInterval)
	cfg.Timing.LINInterval = envDuration("HGC_TIMING_LIN_INTERVAL", cfg.Timing.LINInterval)
	cfg.Timing.CANInterval = envDuration("HGC_TIMING_CAN_INTERVAL", cfg.Timing.CANInterval)
	cfg.Timing.PWMStatusInterval = envDuration("HGC_TIMING_PWM_STATUS_INTERVAL", cfg.Timing.PWMStatusInterval)
	cfg.Timing.RetryBudget = envInt("HGC_TIMING_RETRY_BUDGET", cfg.Timing.RetryBudget)
	cfg.Timing.RetryDelay = envDuration("HGC_TIMING_RETRY_DELAY", cfg.Timing.RetryDelay)
	cfg.Timing.BackoffFactor = envFloat("HGC_TIMING_BACKOFF_FACTOR", cfg.Timing.BackoffFactor)
	cfg.Timing.BackoffMax = envDuration("HGC_TIMING_BACKOFF_MAX", cfg.Timing.BackoffMax)
	cfg.Timing.CommandTimeout = envDuration("HGC_TIMING_COMMAND_TIMEOUT", cfg.Timing.CommandTimeout)
	cfg.Timing.ShutdownGrace = envDuration("HGC_TIMING_SHUTDOWN_GRACE", cfg.Timing.ShutdownGrace)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func setMs(dst *time.Duration, ms int) {
	if ms != 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
