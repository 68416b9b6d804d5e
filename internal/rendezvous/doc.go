// Package rendezvous tracks which vehicles reported a valid location at which
// waypoint, and gates WAIT points on the peers a mission names.
//
// Ownership boundary:
// - per-sensor waypoint progress and pair validity
// - the sensor.ValidFunc used by vehicle nodes
package rendezvous
