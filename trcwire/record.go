package trcwire

import (
	"strconv"
	"unicode/utf8"
)

// Record is a single trace event as it appears on the wire. Records are
// values, and are never modified once handed to a sink.
type Record struct {
	Timestamp uint64 `json:"timestamp"`
	ThreadID  uint64 `json:"thread"`
	Level     uint64 `json:"level"`
	Message   string `json:"message"`
}

const (
	// MaxRecordSize is the maximum size of an encoded record, including
	// delimiters.
	MaxRecordSize = 4096

	// maxHeaderSize is the largest possible prefix of an encoded record: the
	// open delimiter, three 64-bit hex numbers, and three spaces.
	maxHeaderSize = len(openDelim) + 3*16 + 3

	// MaxMessageSize is the largest message which is guaranteed to be encoded
	// without truncation.
	MaxMessageSize = MaxRecordSize - maxHeaderSize - len(closeDelim)
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Encode returns the wire representation of the record.
func Encode(r Record) []byte {
	return AppendRecord(make([]byte, 0, encodedSizeHint(r)), r)
}

// AppendRecord appends the wire representation of the record to dst, and
// returns the extended buffer. The appended bytes never exceed MaxRecordSize.
func AppendRecord(dst []byte, r Record) []byte {
	start := len(dst)
	dst = append(dst, openDelim...)
	dst = strconv.AppendUint(dst, r.Timestamp, 16)
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, r.ThreadID, 16)
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, r.Level, 16)
	dst = append(dst, ' ')
	dst = appendMessage(dst, r.Message, start+MaxRecordSize-len(closeDelim))
	return append(dst, closeDelim...)
}

// appendMessage appends msg to dst, escaping closing braces, and stops before
// len(dst) would exceed limit.
func appendMessage(dst []byte, msg string, limit int) []byte {
	mark := len(dst)

	var truncated bool
	for i := 0; i < len(msg); i++ {
		c := msg[i]
		escape := c == '}' && (i == len(msg)-1 || msg[i+1] == '}')

		n := 1
		if escape {
			n = 2
		}
		if len(dst)+n > limit {
			truncated = true
			break
		}

		dst = append(dst, c)
		if escape {
			dst = append(dst, ' ')
		}
	}

	if !truncated {
		return dst
	}

	// Don't leave a partial rune at the cut point.
	body := dst[mark:]
	for k := len(body) - 1; k >= 0 && k >= len(body)-utf8.UTFMax; k-- {
		if utf8.RuneStart(body[k]) {
			if !utf8.FullRune(body[k:]) {
				body = body[:k]
			}
			break
		}
	}

	// A trailing unescaped '}' would merge with the close delimiter.
	for len(body) > 0 && body[len(body)-1] == '}' {
		body = body[:len(body)-1]
	}

	return dst[:mark+len(body)]
}

func encodedSizeHint(r Record) int {
	n := maxHeaderSize + len(r.Message) + len(closeDelim) + 8
	if n > MaxRecordSize {
		n = MaxRecordSize
	}
	return n
}

// ThreadName returns the conventional display form of a thread ID, which is
// also used as the key for per-thread data by observers.
func ThreadName(id uint64) string {
	return "0x" + strconv.FormatUint(id, 16)
}
