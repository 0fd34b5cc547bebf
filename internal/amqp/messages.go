package amqp

import (
	"encoding/json"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// LedgerEventMessage is the wire form of a ledger.Event. It carries ids and
// months only; consumers read the current rows back from the store.
type LedgerEventMessage struct {
	Kind           ledger.EventKind `json:"kind"`
	Competencies   []string         `json:"competencies"`
	TransactionIDs []string         `json:"transactionIds,omitempty"`
	GroupID        string           `json:"groupId,omitempty"`
	TemplateID     string           `json:"templateId,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// NewLedgerEventMessage converts an event, stamping it now when OccurredAt is unset.
func NewLedgerEventMessage(e ledger.Event) *LedgerEventMessage {
	ts := e.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	comps := make([]string, len(e.Competencies))
	for i, c := range e.Competencies {
		comps[i] = c.String()
	}
	return &LedgerEventMessage{
		Kind:           e.Kind,
		Competencies:   comps,
		TransactionIDs: e.TransactionIDs,
		GroupID:        e.GroupID,
		TemplateID:     e.TemplateID,
		Timestamp:      ts,
	}
}

// Event converts the message back, rejecting malformed competencies.
func (m *LedgerEventMessage) Event() (ledger.Event, error) {
	comps := make([]core.Competency, 0, len(m.Competencies))
	for _, s := range m.Competencies {
		c, err := core.ParseCompetency(s)
		if err != nil {
			return ledger.Event{}, err
		}
		comps = append(comps, c)
	}
	return ledger.Event{
		Kind:           m.Kind,
		Competencies:   comps,
		TransactionIDs: m.TransactionIDs,
		GroupID:        m.GroupID,
		TemplateID:     m.TemplateID,
		OccurredAt:     m.Timestamp,
	}, nil
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON creates a message from JSON bytes
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
