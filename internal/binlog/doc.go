// Package binlog stores decoded packets in a compact binary archive.
//
// Each packet is encoded as a protobuf wire-format message and framed with
// COBS, so frames are separated by a single 0x00 byte and a damaged frame
// can be skipped without losing the rest of the archive. Archives may be
// zstd-compressed as a whole.
package binlog
