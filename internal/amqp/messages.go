package amqp

import (
	"encoding/json"
	"time"

	"budsjett/internal/core"
)

// DocumentLoadedMessage announces that a new export replaced the cached one.
// It carries counts only, never the document itself.
type DocumentLoadedMessage struct {
	HasData    bool      `json:"has_data"`
	Categories int       `json:"categories"`
	Months     int       `json:"months"`
	ExportedAt string    `json:"exported_at,omitempty"`
	Bytes      int       `json:"bytes"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewDocumentLoadedMessage summarises raw for publishing.
func NewDocumentLoadedMessage(raw core.Raw) *DocumentLoadedMessage {
	msg := &DocumentLoadedMessage{
		Bytes:     len(raw),
		Timestamp: time.Now(),
	}
	doc, ok := raw.Decode()
	if !ok {
		return msg
	}
	s := core.Summarize(doc)
	msg.HasData = true
	msg.Categories = len(s.Categories)
	msg.Months = len(s.Months)
	if doc.Meta != nil {
		msg.ExportedAt = doc.Meta.ExportedAt
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *DocumentLoadedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
