package trcview

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format is the encoding of a dump file.
type Format string

const (
	// FormatJSON is an object mapping thread names to arrays of events.
	FormatJSON Format = "json"

	// FormatCBOR is the same structure as FormatJSON, in CBOR with core
	// deterministic encoding.
	FormatCBOR Format = "cbor"
)

// Compression is applied to a dump file after encoding.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ErrUnknownFormat is returned for unsupported formats or compressions.
var ErrUnknownFormat = errors.New("unknown dump format")

// DumpOptions describe the layout of a dump file.
type DumpOptions struct {
	Format      Format
	Compression Compression
}

// OptionsForPath infers dump options from a file name, e.g. trace.json,
// trace.cbor.zst, or trace.json.lz4. Unrecognized names are plain JSON.
func OptionsForPath(path string) DumpOptions {
	opts := DumpOptions{Format: FormatJSON, Compression: CompressionNone}

	name := strings.ToLower(filepath.Base(path))
	switch ext := filepath.Ext(name); ext {
	case ".zst", ".zstd":
		opts.Compression = CompressionZstd
		name = strings.TrimSuffix(name, ext)
	case ".lz4":
		opts.Compression = CompressionLZ4
		name = strings.TrimSuffix(name, ext)
	}

	if filepath.Ext(name) == ".cbor" {
		opts.Format = FormatCBOR
	}

	return opts
}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatCBOR:
		return f, nil
	default:
		return "", fmt.Errorf("%w: format %q", ErrUnknownFormat, s)
	}
}

// ParseCompression parses a compression name.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(s)); c {
	case "":
		return CompressionNone, nil
	case CompressionNone, CompressionZstd, CompressionLZ4:
		return c, nil
	default:
		return "", fmt.Errorf("%w: compression %q", ErrUnknownFormat, s)
	}
}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error

	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("trcview: CBOR encoder initialization failed: " + err.Error())
	}

	cborDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("trcview: CBOR decoder initialization failed: " + err.Error())
	}
}

// Dump writes the events to w.
func Dump(w io.Writer, events map[string][]Event, opts DumpOptions) (err error) {
	cw, err := compressWriter(w, opts.Compression)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := cw.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s writer: %w", opts.Compression, closeErr)
		}
	}()

	switch opts.Format {
	case FormatJSON, "":
		enc := json.NewEncoder(cw)
		enc.SetIndent("", "  ")
		if err := enc.Encode(events); err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}
	case FormatCBOR:
		if err := cborEncMode.NewEncoder(cw).Encode(events); err != nil {
			return fmt.Errorf("encode CBOR: %w", err)
		}
	default:
		return fmt.Errorf("%w: format %q", ErrUnknownFormat, opts.Format)
	}

	return nil
}

// Load reads events from r.
func Load(r io.Reader, opts DumpOptions) (map[string][]Event, error) {
	cr, err := decompressReader(r, opts.Compression)
	if err != nil {
		return nil, err
	}
	defer cr.Close()

	var events map[string][]Event
	switch opts.Format {
	case FormatJSON, "":
		if err := json.NewDecoder(cr).Decode(&events); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case FormatCBOR:
		if err := cborDecMode.NewDecoder(cr).Decode(&events); err != nil {
			return nil, fmt.Errorf("decode CBOR: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: format %q", ErrUnknownFormat, opts.Format)
	}

	return events, nil
}

// DumpFile writes the session to the file at path, with options inferred from
// the file name.
func DumpFile(path string, s *Session) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dump file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close dump file: %w", closeErr)
		}
	}()

	return Dump(f, s.Events(), OptionsForPath(path))
}

// LoadFile reads a session from the file at path, with options inferred from
// the file name.
func LoadFile(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dump file: %w", err)
	}
	defer f.Close()

	events, err := Load(f, OptionsForPath(path))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return NewSessionFromEvents(events)
}

//
//
//

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func compressWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone, "":
		return nopWriteCloser{w}, nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("create zstd writer: %w", err)
		}
		return zw, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("%w: compression %q", ErrUnknownFormat, c)
	}
}

type zstdReadCloser struct{ *zstd.Decoder }

func (r zstdReadCloser) Close() error {
	r.Decoder.Close()
	return nil
}

func decompressReader(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone, "":
		return io.NopCloser(r), nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return zstdReadCloser{zr}, nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("%w: compression %q", ErrUnknownFormat, c)
	}
}
