package models

import (
	"encoding/json"
	"time"
)

// SyncEvent is one entry of the shared sync log.
type SyncEvent struct {
	ID        string          `json:"eventId"`
	Type      string          `json:"eventType"`
	Payload   json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Origin    string          `json:"origin,omitempty"`
	// Processed is kept for compatibility with the persisted layout.
	// Consumers track delivery in their own Cursor instead of flipping it.
	Processed bool `json:"processed"`
}

// DecodePayload unmarshals the event payload into v.
func (e SyncEvent) DecodePayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Cursor is the durable per-consumer delivery record for the sync log.
type Cursor struct {
	ConsumerID string               `json:"consumerId"`
	Acked      map[string]time.Time `json:"acked"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

func (c *Cursor) IsAcked(eventID string) bool {
	_, ok := c.Acked[eventID]
	return ok
}

func (c *Cursor) Ack(eventID string, at time.Time) {
	if c.Acked == nil {
		c.Acked = make(map[string]time.Time)
	}
	c.Acked[eventID] = at
	c.UpdatedAt = at
}

// Prune drops acks recorded before cutoff and returns how many were removed.
// Acks for which keep reports true survive regardless of age; keep may be nil.
func (c *Cursor) Prune(cutoff time.Time, keep func(eventID string) bool) int {
	removed := 0
	for id, at := range c.Acked {
		if at.Before(cutoff) && (keep == nil || !keep(id)) {
			delete(c.Acked, id)
			removed++
		}
	}
	return removed
}
