package publish

import (
	"fmt"
	"strings"

	"github.com/hw-control/hgc/internal/config"
	"github.com/hw-control/hgc/internal/state"
)

// discoveryDevice groups every sensor under one Home Assistant device.
type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
}

// discoveryPayload is the Home Assistant MQTT discovery document for one
// sensor channel.
type discoveryPayload struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	StateTopic        string          `json:"state_topic"`
	AvailabilityTopic string          `json:"availability_topic"`
	UnitOfMeasurement string          `json:"unit_of_measurement,omitempty"`
	Device            discoveryDevice `json:"device"`
}

// uniqueID derives the discovery unique_id for a channel.
func uniqueID(clientID string, id state.ChannelID) string {
	return fmt.Sprintf("%s_%s_%s", clientID, id.Kind(), id.Name())
}

// stateTopic builds the per-channel value topic.
func stateTopic(prefix string, id state.ChannelID) string {
	return fmt.Sprintf("%s/%s/%s/state", prefix, id.Kind(), id.Name())
}

// availabilityTopic is the gateway-wide online/offline topic, also used as
// the LWT target.
func availabilityTopic(prefix string) string {
	return prefix + "/status"
}

// discoveryTopic builds the retained config topic for a sensor channel.
func discoveryTopic(discoveryPrefix, clientID string, id state.ChannelID) string {
	return fmt.Sprintf("%s/sensor/%s/config", discoveryPrefix, uniqueID(clientID, id))
}

// unitMap maps each sensor channel to its unit of measurement.
func unitMap(cfg config.Config) map[state.ChannelID]string {
	units := make(map[state.ChannelID]string)
	for i := 0; i < cfg.ADC.VoltageChannels; i++ {
		units[state.ID(state.KindADC, fmt.Sprintf("channel_%d", i))] = "V"
	}
	for i := 0; i < cfg.ADC.ResistanceChannels; i++ {
		n := cfg.ADC.VoltageChannels + i
		units[state.ID(state.KindADC, fmt.Sprintf("channel_%d", n))] = "Ω"
	}
	for _, s := range cfg.LIN.Sensors {
		units[state.ID(state.KindLIN, s.Name)] = s.Unit
	}
	for _, p := range cfg.CAN.Probes {
		units[state.ID(state.KindCAN, p.Name)] = p.Unit
	}
	return units
}

// discoverable reports whether a channel gets a Home Assistant discovery
// document. Actuator and liveness channels publish state but are not
// announced as sensors.
func discoverable(id state.ChannelID) bool {
	switch id.Kind() {
	case state.KindADC, state.KindLIN:
		return true
	case state.KindCAN:
		return id.Name() != "bus"
	default:
		return false
	}
}

// friendlyName renders the channel id for dashboards.
func friendlyName(deviceName string, id state.ChannelID) string {
	return fmt.Sprintf("%s %s %s", deviceName, strings.ToUpper(string(id.Kind())), id.Name())
}
