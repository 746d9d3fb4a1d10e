package config

import "fmt"

// Validate enforces the structural rules the rest of the gateway assumes.
// A validation failure refuses startup.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := validateTiming(&cfg.Timing); err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	if err := validateADC(&cfg.ADC); err != nil {
		return fmt.Errorf("adc: %w", err)
	}
	if err := validateLIN(&cfg.LIN); err != nil {
		return fmt.Errorf("lin: %w", err)
	}
	if err := validateCAN(&cfg.CAN); err != nil {
		return fmt.Errorf("can: %w", err)
	}
	if err := validatePWM(&cfg.PWM); err != nil {
		return fmt.Errorf("pwm: %w", err)
	}
	if cfg.MQTT.BrokerURL == "" {
		return fmt.Errorf("mqtt: broker URL required")
	}
	if cfg.MQTT.TopicPrefix == "" {
		return fmt.Errorf("mqtt: topic prefix required")
	}
	return nil
}

func validateTiming(t *TimingConfig) error {
	if t.ADCInterval <= 0 || t.LINInterval <= 0 || t.CANInterval <= 0 || t.PWMStatusInterval <= 0 {
		return fmt.Errorf("all task intervals must be positive")
	}
	if t.RetryBudget < 0 {
		return fmt.Errorf("retry budget must be non-negative, got %d", t.RetryBudget)
	}
	if t.RetryDelay < 0 {
		return fmt.Errorf("retry delay must be non-negative, got %v", t.RetryDelay)
	}
	if t.BackoffFactor < 1 {
		return fmt.Errorf("backoff factor must be >= 1, got %v", t.BackoffFactor)
	}
	if t.BackoffMax <= 0 {
		return fmt.Errorf("backoff cap must be positive, got %v", t.BackoffMax)
	}
	if t.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive, got %v", t.CommandTimeout)
	}
	if t.ShutdownGrace < 0 {
		return fmt.Errorf("shutdown grace must be non-negative, got %v", t.ShutdownGrace)
	}
	return nil
}

func validateADC(a *ADCConfig) error {
	if a.Bus == "" {
		return fmt.Errorf("bus name required")
	}
	if a.SpeedHz <= 0 {
		return fmt.Errorf("SPI speed must be positive, got %d", a.SpeedHz)
	}
	if a.VRef <= 0 {
		return fmt.Errorf("reference voltage must be positive, got %v", a.VRef)
	}
	total := a.VoltageChannels + a.ResistanceChannels
	if total <= 0 || total > 8 {
		return fmt.Errorf("MCP3008 has 8 inputs, configured %d", total)
	}
	return nil
}

func validateLIN(l *LINConfig) error {
	if l.Port == "" {
		return fmt.Errorf("serial port required")
	}
	if l.BaudRate <= 0 {
		return fmt.Errorf("baud rate must be positive, got %d", l.BaudRate)
	}
	if l.ResponseTimeout <= 0 {
		return fmt.Errorf("response timeout must be positive, got %v", l.ResponseTimeout)
	}
	seen := make(map[byte]string, len(l.Sensors))
	for _, s := range l.Sensors {
		if s.Name == "" {
			return fmt.Errorf("sensor name required for PID 0x%02X", s.PID)
		}
		if prev, dup := seen[s.PID]; dup {
			return fmt.Errorf("PID 0x%02X assigned to both %q and %q", s.PID, prev, s.Name)
		}
		seen[s.PID] = s.Name
	}
	return nil
}

func validateCAN(c *CANConfig) error {
	if c.Interface == "" {
		return fmt.Errorf("interface name required")
	}
	for _, p := range c.Probes {
		if p.Name == "" {
			return fmt.Errorf("probe name required for request id 0x%X", p.RequestID)
		}
		if p.RequestID == p.ResponseID {
			return fmt.Errorf("probe %s: request and response ids must differ", p.Name)
		}
	}
	return nil
}

func validatePWM(p *PWMConfig) error {
	if p.DaemonURL == "" {
		return fmt.Errorf("daemon URL required")
	}
	if p.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", p.RequestTimeout)
	}
	if p.RetryBudget < 0 {
		return fmt.Errorf("retry budget must be non-negative, got %d", p.RetryBudget)
	}
	for _, pin := range p.Pins {
		if pin.Pin < 0 {
			return fmt.Errorf("pin number must be non-negative, got %d", pin.Pin)
		}
		if pin.FrequencyHz <= 0 {
			return fmt.Errorf("pin %d: frequency must be positive, got %d", pin.Pin, pin.FrequencyHz)
		}
	}
	return nil
}
