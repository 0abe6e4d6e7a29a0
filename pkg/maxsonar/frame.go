package maxsonar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"
)

const (
	// FrameMarker starts every frame.
	FrameMarker = 'R'
	// FrameTerminator ends every frame.
	FrameTerminator = '\r'
	// FrameSize is the marker plus four digits.
	FrameSize = 5

	scratchSize = 16
)

// FrameReader extracts R####\r frames from a byte stream delivered in
// arbitrary chunks. It is not safe for concurrent use.
type FrameReader struct {
	r io.Reader

	scratch [scratchSize]byte
	frame   []byte // marker + digits of the frame in progress, never more than FrameSize
	pending []byte // bytes read past the last decoded frame
}

// NewFrameReader creates a frame reader on top of r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:     r,
		frame: make([]byte, 0, FrameSize),
	}
}

// Buffered returns the number of bytes of the frame in progress.
func (f *FrameReader) Buffered() int {
	return len(f.frame)
}

// Next returns the next decoded distance in millimeters.
//
// Bytes delivered together with an error are consumed before the error is
// looked at. Read timeouts, reported either as (0, nil) or as an error with
// Timeout() true, are not errors: Next keeps reading until a frame is
// decoded, a read fails or ctx is done. A frame that cannot be decoded yields ErrMalformedFrame and the
// frame buffer is cleared so the following call starts on the next marker.
func (f *FrameReader) Next(ctx context.Context) (uint16, error) {
	for {
		if len(f.pending) > 0 {
			chunk := f.pending
			f.pending = nil
			if v, done, err := f.consume(chunk); done {
				return v, err
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			return 0, err
		}

		n, readErr := f.r.Read(f.scratch[:])
		if n > 0 {
			if v, done, err := f.consume(f.scratch[:n]); done {
				return v, err
			}
		}
		if readErr != nil && !isTimeout(readErr) {
			return 0, fmt.Errorf("failed to read from port: %w", readErr)
		}
	}
}

// consume feeds bytes into the frame buffer. done reports that a frame was
// completed (successfully or not); the unconsumed tail is kept in pending.
func (f *FrameReader) consume(chunk []byte) (v uint16, done bool, err error) {
	for i, b := range chunk {
		if len(f.frame) == 0 {
			if b == FrameMarker {
				f.frame = append(f.frame, b)
			}
			continue
		}

		if b == FrameTerminator {
			short := f.frame
			f.reset()
			f.keep(chunk[i+1:])
			return 0, true, fmt.Errorf("%w: %q: terminated after %d bytes", ErrMalformedFrame, short, len(short))
		}

		f.frame = append(f.frame, b)
		if len(f.frame) == FrameSize {
			v, err := decodeFrame(f.frame)
			f.reset()
			f.keep(chunk[i+1:])
			return v, true, err
		}
	}
	return 0, false, nil
}

// keep saves the tail of the scratch buffer. It is copied because the scratch
// buffer is reused by the next read.
func (f *FrameReader) keep(rest []byte) {
	if len(rest) == 0 {
		return
	}
	f.pending = append([]byte(nil), rest...)
}

func (f *FrameReader) reset() {
	f.frame = f.frame[:0]
}

// decodeFrame parses the digits following the marker.
func decodeFrame(frame []byte) (uint16, error) {
	if !utf8.Valid(frame) {
		return 0, fmt.Errorf("%w: %q: invalid UTF-8 sequence", ErrMalformedFrame, frame)
	}

	v, err := strconv.ParseUint(string(frame[1:]), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrMalformedFrame, frame, err)
	}
	return uint16(v), nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
