// Package server exposes a node's health, status snapshot, recorded
// measurements and prometheus metrics over HTTP.
//
// Ownership boundary:
// - gin engine, middleware and routes
// - no control surface; every route is read-only
package server
