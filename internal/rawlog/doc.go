// Package rawlog reads and writes EmotiBit raw log files: headerless,
// comma-delimited text with a variable number of fields per line.
//
// Reading never stops at a bad line. Every line yields exactly one
// protocol.Result, carrying its 1-based line number, so a batch can be
// split into packets and errors without losing order.
package rawlog
