// Package tdma owns the slot scheduler that gives every radio node an
// exclusive recurring transmission window.
//
// Ownership boundary:
// - frame epoch estimate and per-id slot arithmetic
// - bounded drift correction against peer timestamps
package tdma
