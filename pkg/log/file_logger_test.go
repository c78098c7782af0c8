package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerWritesCBOR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sapilog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	logger.Log(Event{
		Timestamp: time.Now(),
		LinkID:    "link-123",
		Direction: DirectionIn,
		Layer:     LayerLink,
		Category:  CategoryMessage,
		Frame:     &FrameEvent{Size: 9, Data: []byte{1, 2, 3}},
	})
	logger.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if decoded.LinkID != "link-123" {
		t.Errorf("LinkID: got %q", decoded.LinkID)
	}
	if decoded.Frame == nil || decoded.Frame.Size != 9 {
		t.Errorf("Frame: got %+v", decoded.Frame)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sapilog")

	for _, id := range []string{"link-1", "link-2"} {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{Timestamp: time.Now(), LinkID: id})
		logger.Close()
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	events := readAll(t, reader)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].LinkID != "link-2" {
		t.Errorf("second event LinkID = %q", events[1].LinkID)
	}
}

func TestFileLoggerCloseIdempotent(t *testing.T) {
	logger, err := NewFileLogger(filepath.Join(t.TempDir(), "test.sapilog"))
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	// Logging after close is ignored.
	logger.Log(Event{LinkID: "late"})
}

func TestFileLoggerBadPath(t *testing.T) {
	_, err := NewFileLogger(filepath.Join(t.TempDir(), "missing", "dir", "x.sapilog"))
	if err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sapilog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	const goroutines, perG = 8, 25
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				logger.Log(Event{Timestamp: time.Now(), DeviceType: "temp", Frame: &FrameEvent{Size: i}})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if n := len(readAll(t, reader)); n != goroutines*perG {
		t.Errorf("got %d events, want %d", n, goroutines*perG)
	}
}

func TestRotatingFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rot.sapilog")
	logger := NewRotatingFileLogger(RotateConfig{Path: path, MaxSizeMB: 1, MaxBackups: 2})

	logger.Log(Event{Timestamp: time.Now(), LinkID: "rotated"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	events := readAll(t, reader)
	if len(events) != 1 || events[0].LinkID != "rotated" {
		t.Errorf("got %+v", events)
	}
}

type bufCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufCloser) Close() error {
	if b.closed {
		return errors.New("already closed")
	}
	b.closed = true
	return nil
}

func TestWriterLogger(t *testing.T) {
	var buf bufCloser
	logger := NewWriterLogger(&buf)
	logger.Log(Event{LinkID: "mem"})
	_ = logger.Close()
	_ = logger.Close()

	if !buf.closed {
		t.Error("writer not closed")
	}
	event, err := NewStreamReader(&buf.Buffer, Filter{}).Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if event.LinkID != "mem" {
		t.Errorf("LinkID: got %q", event.LinkID)
	}
}
