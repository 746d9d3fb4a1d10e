// Package publish mirrors the state store to an MQTT broker.
//
// Value updates go out on per-channel state topics and each sensor channel
// announces itself once per connection with a retained Home Assistant
// discovery document. The broker is an optional consumer: when it is down
// the gateway keeps polling and the dashboard keeps serving.
package publish
