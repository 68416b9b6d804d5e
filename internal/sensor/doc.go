// Package sensor owns the radio node runtime: one transport link, the TDMA
// scheduler, and the two outbound queues.
//
// Ownership boundary:
// - activate/start/stop/deactivate lifecycle
// - per-tick arbitration between scheduled telemetry and queued packets
// - inbound decode, telemetry relay and handler dispatch
//
// Transports live in subpackages: udp (one socket per node) and air (an
// in-process shared medium for simulation and tests).
package sensor
