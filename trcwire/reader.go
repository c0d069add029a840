package trcwire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

var (
	// ErrMalformed is returned when a single '{' is followed by anything
	// other than a second '{'. The reader skips to the next record.
	ErrMalformed = errors.New("malformed record in input stream")

	// ErrTooLong is returned when a record body exceeds MaxRecordSize. The
	// reader discards the partial record and skips to the next one.
	ErrTooLong = errors.New("record too long")

	// ErrTimestamp is returned when a record has no valid timestamp.
	ErrTimestamp = errors.New("invalid record timestamp")

	// ErrThread is returned when a record has no valid thread ID.
	ErrThread = errors.New("invalid record thread")

	// ErrLevel is returned when a record has no valid level.
	ErrLevel = errors.New("invalid record level")
)

// Reader decodes a stream of records.
type Reader struct {
	r   *bufio.Reader
	buf []byte
}

// NewReader returns a reader consuming records from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:   bufio.NewReader(r),
		buf: make([]byte, 0, 256),
	}
}

type readState int

const (
	stateNew   readState = iota // '{' -> stateOpen, else skip
	stateOpen                   // '{' -> stateBody, else malformed
	stateBody                   // '}' -> stateClose, else collect
	stateClose                  // '}' -> accept, else collect both
)

// ReadBody reads the next record and returns its body, which is everything
// between the delimiters. The returned slice is only valid until the next
// call. It returns io.EOF if the stream ends between records, and
// io.ErrUnexpectedEOF if it ends within one. ErrMalformed and ErrTooLong are
// recoverable: subsequent calls continue with the next record.
func (rd *Reader) ReadBody() ([]byte, error) {
	state := stateNew
	for {
		c, err := rd.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && state != stateNew {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		switch state {
		case stateNew:
			if c == '{' {
				state = stateOpen
			}

		case stateOpen:
			if c != '{' {
				return nil, ErrMalformed
			}
			rd.buf = rd.buf[:0]
			state = stateBody

		case stateBody:
			if c == '}' {
				state = stateClose
				continue
			}
			rd.buf = append(rd.buf, c)

		case stateClose:
			if c == '}' {
				return rd.buf, nil
			}
			rd.buf = append(rd.buf, '}', c)
			state = stateBody
		}

		if len(rd.buf) > MaxRecordSize {
			rd.buf = rd.buf[:0]
			return nil, ErrTooLong
		}
	}
}

// Read the next record from the stream. Parse errors are returned wrapped
// with the sentinel for the invalid field, and are recoverable.
func (rd *Reader) Read() (Record, error) {
	body, err := rd.ReadBody()
	if err != nil {
		return Record{}, err
	}
	return Parse(body)
}

// Parse a record body, in the form "<timestamp> <thread> <level> <message>".
// The message is everything after the third space, and may be empty.
func Parse(body []byte) (Record, error) {
	tsb, rest, found := bytes.Cut(body, space)
	ts, err := parseHex(tsb)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrTimestamp, err)
	}
	if !found {
		return Record{}, fmt.Errorf("%w: missing", ErrThread)
	}

	tidb, rest, found := bytes.Cut(rest, space)
	tid, err := parseHex(tidb)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrThread, err)
	}
	if !found {
		return Record{}, fmt.Errorf("%w: missing", ErrLevel)
	}

	lvb, msg, _ := bytes.Cut(rest, space)
	lv, err := parseHex(lvb)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrLevel, err)
	}

	return Record{
		Timestamp: ts,
		ThreadID:  tid,
		Level:     lv,
		Message:   string(msg),
	}, nil
}

var space = []byte{' '}

func parseHex(b []byte) (uint64, error) {
	return strconv.ParseUint(string(b), 16, 64)
}
