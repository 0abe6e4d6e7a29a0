package maxsonar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// read is one scripted result of scriptedPort.Read.
type read struct {
	data []byte
	err  error
}

// scriptedPort returns scripted reads in order, then io.EOF.
type scriptedPort struct {
	mu          sync.Mutex
	reads       []read
	readCalls   int
	closed      bool
	readTimeout time.Duration
	timeoutErr  error
}

func newScriptedPort(chunks ...string) *scriptedPort {
	p := &scriptedPort{}
	for _, c := range chunks {
		p.reads = append(p.reads, read{data: []byte(c)})
	}
	return p
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readCalls++
	if p.closed {
		return 0, errors.New("port closed")
	}
	if len(p.reads) == 0 {
		return 0, io.EOF
	}

	r := p.reads[0]
	n := copy(b, r.data)
	if n < len(r.data) {
		p.reads[0].data = r.data[n:]
		return n, nil
	}
	p.reads = p.reads[1:]
	return n, r.err
}

func (p *scriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *scriptedPort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = t
	return p.timeoutErr
}

// timeoutError mimics a deadline style read timeout.
type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }

func TestFrameReader_SingleFrame(t *testing.T) {
	fr := NewFrameReader(newScriptedPort("R1250\r"))

	v, err := fr.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(1250), v)
	assert.Equal(t, 0, fr.Buffered())
}

func TestFrameReader_SplitAtEveryOffset(t *testing.T) {
	frames := []string{"R0000\r", "R0301\r", "R1250\r", "R4000\r", "R9999\r"}
	want := []uint16{0, 301, 1250, 4000, 9999}

	for i, frame := range frames {
		for offset := 1; offset < FrameSize; offset++ {
			t.Run(fmt.Sprintf("%q split at %d", frame, offset), func(t *testing.T) {
				fr := NewFrameReader(newScriptedPort(frame[:offset], frame[offset:]))

				v, err := fr.Next(context.Background())
				require.NoError(t, err)
				assert.Equal(t, want[i], v)
			})
		}
	}
}

func TestFrameReader_ByteByByte(t *testing.T) {
	chunks := make([]string, 0, 6)
	for _, b := range []byte("R2048\r") {
		chunks = append(chunks, string(b))
	}

	v, err := NewFrameReader(newScriptedPort(chunks...)).Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(2048), v)
}

func TestFrameReader_DiscardsBytesBeforeMarker(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   uint16
	}{
		{"garbage prefix", []string{"xyz\x00R0777\r"}, 777},
		{"tail of previous frame", []string{"34\rR0512\r"}, 512},
		{"digits without marker", []string{"12345", "6789\r", "R0100\r"}, 100},
		{"terminators only", []string{"\r\r\r", "R3000\r"}, 3000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewFrameReader(newScriptedPort(tt.chunks...)).Next(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestFrameReader_NoMarkerNoValue(t *testing.T) {
	port := newScriptedPort("1234\r", "5678\r", "\r9999")
	fr := NewFrameReader(port)

	_, err := fr.Next(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, io.EOF)
	assert.NotErrorIs(t, err, ErrMalformedFrame)
	assert.Equal(t, 0, fr.Buffered())
}

func TestFrameReader_MalformedPayload(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"letters", "RXXXX\r"},
		{"partly numeric", "R12a4\r"},
		{"sign", "R+123\r"},
		{"space", "R 123\r"},
		{"invalid utf-8", "R\xff\xfe12\r"},
		{"second marker", "R12R3\r"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := NewFrameReader(newScriptedPort(tt.frame + "R0420\r"))

			_, err := fr.Next(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedFrame)
			assert.Equal(t, 0, fr.Buffered(), "frame buffer must be cleared")

			// The next frame is still decoded.
			v, err := fr.Next(context.Background())
			require.NoError(t, err)
			assert.Equal(t, uint16(420), v)
		})
	}
}

func TestFrameReader_ShortFrame(t *testing.T) {
	fr := NewFrameReader(newScriptedPort("R12\rR0042\r"))

	_, err := fr.Next(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.Equal(t, 0, fr.Buffered())

	v, err := fr.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(42), v)
}

func TestFrameReader_PartialReadIsKept(t *testing.T) {
	// Fewer than five bytes arrive, then the rest: nothing is discarded.
	port := newScriptedPort("R1", "", "2", "34\r")
	fr := NewFrameReader(port)

	v, err := fr.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(1234), v)
}

func TestFrameReader_BytesAfterFrameBelongToNextFrame(t *testing.T) {
	port := newScriptedPort("R1111\rR22", "22\rR3333\r")
	fr := NewFrameReader(port)

	var got []uint16
	for _i := 0; _i < 3; _i++ {
		v, err := fr.Next(context.Background())
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []uint16{1111, 2222, 3333}, got)

	_, err := fr.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameReader_TimeoutsAreNotErrors(t *testing.T) {
	port := &scriptedPort{reads: []read{
		{data: nil},
		{data: []byte("R0")},
		{data: nil},
		{err: timeoutError{}},
		{data: []byte("98")},
		{data: nil},
		{data: []byte("7\r")},
	}}
	fr := NewFrameReader(port)

	v, err := fr.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(987), v)
	assert.Equal(t, 7, port.readCalls)
}

func TestFrameReader_IdenticalFramesAreIdempotent(t *testing.T) {
	port := newScriptedPort("R0815\r", "", "R08", "", "15\r", "R0815\r")
	fr := NewFrameReader(port)

	for _i := 0; _i < 3; _i++ {
		v, err := fr.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint16(815), v)
	}
}

func TestFrameReader_ReadErrorSurfaces(t *testing.T) {
	readErr := errors.New("device disconnected")
	port := &scriptedPort{reads: []read{
		{data: []byte("R12")},
		{err: readErr},
		{data: []byte("34\r")},
	}}
	fr := NewFrameReader(port)

	_, err := fr.Next(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, readErr)
	assert.NotErrorIs(t, err, ErrMalformedFrame)
	assert.Equal(t, 2, port.readCalls, "no internal retry after a hard error")
}

func TestFrameReader_DataWithError(t *testing.T) {
	port := &scriptedPort{reads: []read{{data: []byte("R1234\r"), err: io.EOF}}}
	fr := NewFrameReader(port)

	v, err := fr.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(1234), v)

	// The error surfaces once no complete frame is left.
	_, err = fr.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameReader_PartialDataWithError(t *testing.T) {
	readErr := errors.New("device disconnected")
	port := &scriptedPort{reads: []read{
		{data: []byte("R12"), err: readErr},
		{data: []byte("34\r")},
	}}
	fr := NewFrameReader(port)

	_, err := fr.Next(context.Background())
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, 3, fr.Buffered(), "bytes read with the error are kept")
	assert.Equal(t, 1, port.readCalls)
}

func TestFrameReader_FrameAndTailWithError(t *testing.T) {
	port := &scriptedPort{reads: []read{{data: []byte("R0815\rR0420\r"), err: io.EOF}}}
	fr := NewFrameReader(port)

	for _, want := range []uint16{815, 420} {
		v, err := fr.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	assert.Equal(t, 1, port.readCalls)
}

func TestFrameReader_ContextCanceled(t *testing.T) {
	// A port that only ever times out.
	port := &scriptedPort{}
	for _i := 0; _i < 1000; _i++ {
		port.reads = append(port.reads, read{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFrameReader(port).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		frame   string
		want    uint16
		wantErr bool
	}{
		{"R0000", 0, false},
		{"R0001", 1, false},
		{"R5000", 5000, false},
		{"R9999", 9999, false},
		{"RXXXX", 0, true},
		{"R-123", 0, true},
		{"R\x80\x81\x82\x83", 0, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.frame), func(t *testing.T) {
			got, err := decodeFrame([]byte(tt.frame))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedFrame)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
