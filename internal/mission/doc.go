// Package mission owns vehicle missions: the network-driven waypoint sync
// protocol and the fixed plan variant.
//
// Ownership boundary:
// - waypoint_clear/add/done handling with ordered cumulative acks
// - mission dump persistence and restore
// - rendezvous gating of WAIT waypoints
//
// The autopilot, the radio node and the validity tracker are collaborators
// reached through the Vehicle, Node and Gate interfaces.
package mission
