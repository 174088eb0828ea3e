// Package export turns one decoded raw log into the per-type CSV files a
// downstream analysis expects, together with the time sync diagnostics and
// an optional binary archive.
//
// For an input named raw.csv the files are:
//
//	raw_ERROR.csv        one line per record that failed to decode
//	raw_timesyncs.csv    RD/TL/AK handshakes, or the reason none were found
//	raw_timeSyncMap.csv  the device to host clock mapping, or why it failed
//	raw_<TAG>.csv        one file per type tag present, host time injected
//	raw.bin[.zst]        every decoded packet, when binary export is enabled
package export
