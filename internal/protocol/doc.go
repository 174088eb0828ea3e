// Package protocol implements EmotiBit raw-record decoding.
// It handles the six positional header fields, the type-tag dispatch to typed payloads,
// the TX sub-tag refinement, and the flat CSV projection of decoded packets.
package protocol
