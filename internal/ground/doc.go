// Package ground holds the ground station side of the radio network: the
// mission uploader that drives waypoint_clear/add/done against each vehicle
// and the recorder that stores rssi_ground_station measurements.
package ground
