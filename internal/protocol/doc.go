// Package protocol owns the packet value exchanged between radio nodes and
// its wire contract.
//
// Ownership boundary:
// - typed packet values checked against the specification registry
// - frame/header primitives
// - tlv payload primitives
package protocol
