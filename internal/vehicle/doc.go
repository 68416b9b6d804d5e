// Package vehicle provides a simulated autopilot for missions and the sim
// command.
package vehicle
