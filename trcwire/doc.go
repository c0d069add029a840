// Package trcwire implements the line-free wire format used to stream trace
// records from an instrumented process to an observer.
//
// Each record is a self-delimited, bracketed sequence of bytes.
//
//	{{<timestamp> <thread> <level> <message>}}
//
// Timestamp, thread and level are lowercase hex numbers without a 0x prefix.
// The message is arbitrary text, and may contain newlines; the record is
// delimited by the double braces, not by newlines. Consumers must treat the
// stream as a sequence of such records, of no fixed length, and should skip
// any bytes between records.
//
// Encoding never fails. Records are limited to [MaxRecordSize] bytes, and
// longer messages are truncated deterministically. A '}' in a message which
// is followed by another '}', or which ends the message, is followed by a
// single space on the wire, so message content can never terminate a record
// early.
package trcwire
