// Package command routes validated API intents to the PWM daemon client.
// Every actuation gets a bounded timeout and an audit record regardless of
// outcome.
package command
