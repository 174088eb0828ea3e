// Package timesync reconstructs the mapping between the EmotiBit device clock
// and host wall-clock time from the RD/TL/AK handshakes recorded in a decoded
// stream, and projects packet timestamps onto host time.
package timesync
