package log

import (
	"testing"
	"time"
)

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	var logger NoopLogger

	event := Event{Timestamp: time.Now(), LinkID: "test-link"}
	logger.Log(event)

	event.Observe = &ObserveEvent{SensorID: 1, Registered: true}
	logger.Log(event)

	event.Observe = nil
	event.Error = &ErrorEventData{Message: "test error"}
	logger.Log(event)
}

func TestLoggerFunc(t *testing.T) {
	var got []Event
	logger := LoggerFunc(func(e Event) { got = append(got, e) })

	logger.Log(Event{LinkID: "a"})
	logger.Log(Event{LinkID: "b"})

	if len(got) != 2 || got[1].LinkID != "b" {
		t.Errorf("got %+v", got)
	}
}

func TestMultiLogger(t *testing.T) {
	var a, b int
	multi := NewMultiLogger(
		LoggerFunc(func(Event) { a++ }),
		nil,
		LoggerFunc(func(Event) { b++ }),
	)

	if multi.Len() != 2 {
		t.Errorf("Len = %d, want 2", multi.Len())
	}

	multi.Log(Event{})
	multi.Log(Event{})

	if a != 2 || b != 2 {
		t.Errorf("fan-out counts: a=%d b=%d, want 2 each", a, b)
	}
}

func TestMultiLoggerEmpty(t *testing.T) {
	NewMultiLogger().Log(Event{})
}
