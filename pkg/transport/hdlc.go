package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sapi-coap/sapi-go/pkg/log"
)

// Framing constants.
const (
	// FlagByte delimits frames.
	FlagByte = 0x7E

	// EscapeByte precedes an escaped byte.
	EscapeByte = 0x7D

	// EscapeXOR is applied to an escaped byte.
	EscapeXOR = 0x20

	// MaxFramePayload is the largest payload a frame carries.
	MaxFramePayload = 255

	// fcsSize is the size of the frame check sequence.
	fcsSize = 2
)

// Framing errors.
var (
	// ErrMessageTooLarge indicates the payload exceeds MaxFramePayload.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrMessageEmpty indicates an empty payload.
	ErrMessageEmpty = errors.New("message is empty")

	// ErrBadFCS indicates a frame whose check sequence does not match.
	ErrBadFCS = errors.New("frame check sequence mismatch")

	// ErrFrameTruncated indicates a frame shorter than its check sequence.
	ErrFrameTruncated = errors.New("frame truncated")

	// ErrReadTimeout indicates the link was idle for the read timeout.
	// Any partial frame has been dropped.
	ErrReadTimeout = errors.New("read timeout")
)

// FrameWriter writes HDLC frames to an underlying writer.
type FrameWriter struct {
	w  io.Writer
	mu sync.Mutex

	// Logging support (optional)
	logger log.Logger
	linkID string
}

// NewFrameWriter creates a new frame writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// SetLogger configures logging for this writer.
// Pass nil to disable logging.
func (fw *FrameWriter) SetLogger(logger log.Logger, linkID string) {
	fw.logger = logger
	fw.linkID = linkID
}

// AppendFrame appends the framed encoding of data to dst.
func AppendFrame(dst, data []byte) []byte {
	fcs := FCS16(data)
	dst = append(dst, FlagByte)
	dst = appendEscaped(dst, data...)
	dst = appendEscaped(dst, byte(fcs), byte(fcs>>8))
	return append(dst, FlagByte)
}

func appendEscaped(dst []byte, data ...byte) []byte {
	for _, b := range data {
		if b == FlagByte || b == EscapeByte {
			dst = append(dst, EscapeByte, b^EscapeXOR)
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

// WriteFrame writes data as a single frame.
// Thread-safe: can be called from multiple goroutines.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if len(data) > MaxFramePayload {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), MaxFramePayload)
	}

	frame := AppendFrame(make([]byte, 0, 2*len(data)+6), data)

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	if fw.logger != nil {
		fw.logger.Log(frameEvent(fw.linkID, log.DirectionOut, len(frame), data))
	}
	return nil
}

// FrameReader reads HDLC frames from an underlying reader. A Read that
// returns no data and no error is treated as a link timeout.
type FrameReader struct {
	r   io.Reader
	buf []byte
	pos int
	end int

	frame   []byte
	inFrame bool
	escaped bool
	wire    int

	// Logging support (optional)
	logger log.Logger
	linkID string
}

// NewFrameReader creates a new frame reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:     r,
		buf:   make([]byte, 512),
		frame: make([]byte, 0, MaxFramePayload+fcsSize),
	}
}

// SetLogger configures logging for this reader.
// Pass nil to disable logging.
func (fr *FrameReader) SetLogger(logger log.Logger, linkID string) {
	fr.logger = logger
	fr.linkID = linkID
}

// ReadFrame returns the payload of the next complete frame, without the
// check sequence. Bytes outside a frame are discarded. ErrBadFCS,
// ErrMessageTooLarge and ErrFrameTruncated drop the offending frame and
// leave the reader usable; ErrReadTimeout drops any partial frame.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	for {
		b, err := fr.readByte()
		if err != nil {
			// A lone flag is not a partial frame.
			if fr.inFrame && fr.wire > 1 {
				fr.reset(false)
				if errors.Is(err, ErrReadTimeout) {
					fr.logError(err, "partial frame dropped")
				}
				if errors.Is(err, io.EOF) {
					return nil, ErrFrameTruncated
				}
			}
			return nil, err
		}

		if !fr.inFrame {
			if b == FlagByte {
				fr.reset(true)
			}
			continue
		}
		fr.wire++

		switch {
		case b == FlagByte:
			if len(fr.frame) == 0 && !fr.escaped {
				// Back-to-back flags: the closing flag of one frame can be
				// the opening flag of the next.
				fr.reset(true)
				continue
			}
			payload, err := fr.finish()
			fr.reset(true)
			if err != nil {
				fr.logError(err, "read frame")
				return nil, err
			}
			return payload, nil

		case b == EscapeByte:
			fr.escaped = true

		default:
			if fr.escaped {
				b ^= EscapeXOR
				fr.escaped = false
			}
			if len(fr.frame) == MaxFramePayload+fcsSize {
				fr.reset(false)
				fr.logError(ErrMessageTooLarge, "read frame")
				return nil, ErrMessageTooLarge
			}
			fr.frame = append(fr.frame, b)
		}
	}
}

// finish validates the collected frame and returns a copy of its payload.
func (fr *FrameReader) finish() ([]byte, error) {
	if len(fr.frame) < fcsSize+1 {
		return nil, ErrFrameTruncated
	}
	n := len(fr.frame) - fcsSize
	got := uint16(fr.frame[n]) | uint16(fr.frame[n+1])<<8
	if got != FCS16(fr.frame[:n]) {
		return nil, ErrBadFCS
	}

	payload := make([]byte, n)
	copy(payload, fr.frame[:n])

	if fr.logger != nil {
		fr.logger.Log(frameEvent(fr.linkID, log.DirectionIn, fr.wire, payload))
	}
	return payload, nil
}

// reset clears the frame state. open marks that an opening flag was seen.
func (fr *FrameReader) reset(open bool) {
	fr.frame = fr.frame[:0]
	fr.inFrame = open
	fr.escaped = false
	fr.wire = 0
	if open {
		fr.wire = 1
	}
}

func (fr *FrameReader) readByte() (byte, error) {
	if fr.pos >= fr.end {
		n, err := fr.r.Read(fr.buf)
		if n == 0 {
			if err != nil {
				return 0, err
			}
			return 0, ErrReadTimeout
		}
		fr.pos, fr.end = 0, n
	}
	b := fr.buf[fr.pos]
	fr.pos++
	return b, nil
}

func (fr *FrameReader) logError(err error, op string) {
	if fr.logger == nil {
		return
	}
	fr.logger.Log(log.Event{
		Timestamp: time.Now(),
		LinkID:    fr.linkID,
		Direction: log.DirectionIn,
		Layer:     log.LayerLink,
		Category:  log.CategoryError,
		Transport: log.TransportSerial,
		Error: &log.ErrorEventData{
			Layer:   log.LayerLink,
			Message: err.Error(),
			Context: op,
		},
	})
}

// frameEvent creates a log event for a frame.
func frameEvent(linkID string, direction log.Direction, size int, data []byte) log.Event {
	return log.Event{
		Timestamp: time.Now(),
		LinkID:    linkID,
		Direction: direction,
		Layer:     log.LayerLink,
		Category:  log.CategoryMessage,
		Transport: log.TransportSerial,
		Frame:     log.NewFrameEvent(size, data),
	}
}
