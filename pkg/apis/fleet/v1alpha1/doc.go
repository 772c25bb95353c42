// Package v1alpha1 contains the wire types exchanged between the syncpeer
// console and its agents: commands on the commands topic, status and result
// events on the status topic, telemetry on the metrics topic, and the agent
// registration request. All payloads are JSON.
package v1alpha1
