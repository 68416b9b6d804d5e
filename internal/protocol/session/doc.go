// Package session owns the ground station's reliable-delivery helpers for
// mission uploads over the radio link.
//
// Ownership boundary:
// - ack timeout and retry limits
// - retry/backoff/outbox primitives
package session
