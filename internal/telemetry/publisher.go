package telemetry

import (
	"time"
)

// DropCounter is told about every record the publisher had to discard.
type DropCounter interface {
	IncTelemetryDropped()
}

// Publisher hands records to the worker without ever blocking the session
// runner. When the inbox is full the record is dropped and counted.
type Publisher struct {
	inbox   chan Record
	dropped DropCounter
}

func NewPublisher(buffer int, dropped DropCounter) *Publisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Publisher{inbox: make(chan Record, buffer), dropped: dropped}
}

// Emit reports whether rec was queued.
func (p *Publisher) Emit(rec Record) bool {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	select {
	case p.inbox <- rec:
		return true
	default:
		if p.dropped != nil {
			p.dropped.IncTelemetryDropped()
		}
		return false
	}
}

// Inbox is the channel a Worker drains.
func (p *Publisher) Inbox() <-chan Record {
	return p.inbox
}
