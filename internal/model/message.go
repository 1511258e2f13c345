package model

import "time"

// Message holds information about a single message in a room transcript.
//
// ID is assigned by the server once the message is persisted; until then a
// locally sent message is identified by its ClientID. Delivered and Read are
// flipped in place as acknowledgement frames arrive; transcript entries are
// never removed client-side.
type Message struct {
	ID        int64     `json:"id"`
	ClientID  string    `json:"client_id,omitempty"`
	Content   string    `json:"content"`
	Author    string    `json:"author_full_name"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"is_read"`
	Delivered bool      `json:"is_delivered"`
}
