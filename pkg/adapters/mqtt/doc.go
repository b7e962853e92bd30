// Package mqtt bridges the orchestrator to an MQTT broker.
//
// Status reports, state changes and exceptions are published as JSON
// under a topic prefix; payloads received on <prefix>/events are fired
// as external events.
package mqtt
