// Package driver defines the shared contract for transport drivers.
//
// Every driver owns exactly one physical or logical channel set and performs
// one transaction type on it. Failures are classified into a small normalized
// vocabulary (TRANSPORT, PROTOCOL, DAEMON, VALIDATION, BROKER) so the
// scheduler, the API layer and the audit log can react without knowing
// transport internals.
package driver
