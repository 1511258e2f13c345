package model

import (
	"encoding/json"
	"fmt"
)

// FrameKind discriminates inbound WebSocket payloads. The backend tags most
// frames with a "type" field, but the oldest message path sends a bare
// {message, author} object, which decodes as FrameNewMessage.
type FrameKind string

const (
	FrameUnknown     FrameKind = ""
	FrameNewMessage  FrameKind = "new_message"
	FrameDelivered   FrameKind = "message_delivered"
	FrameRead        FrameKind = "message_read"
	FrameUnreadCount FrameKind = "unread_count"
)

// Frame is the decoded form of one inbound WebSocket payload.
type Frame struct {
	Kind FrameKind

	// FrameNewMessage
	Content  string
	Author   string
	ClientID string

	// FrameDelivered, FrameRead
	MessageID int64

	// FrameRead
	UserID string

	// FrameUnreadCount
	Count int
}

// wireFrame is the superset of fields any inbound payload may carry.
type wireFrame struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	Author         string `json:"author"`
	AuthorFullName string `json:"author_full_name"`
	ClientID       string `json:"client_id"`
	MessageID      int64  `json:"message_id"`
	UserID         string `json:"user_id"`
	Count          int    `json:"count"`
}

// DecodeFrame parses an inbound payload into a Frame. Payloads with an
// unrecognized type decode without error as FrameUnknown so the dispatcher
// can log and drop them.
func DecodeFrame(data []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return Frame{}, fmt.Errorf("internal/model: malformed frame: %w", err)
	}

	author := w.AuthorFullName
	if author == "" {
		author = w.Author
	}

	switch w.Type {
	case "new_message":
		return Frame{
			Kind:     FrameNewMessage,
			Content:  w.Message,
			Author:   author,
			ClientID: w.ClientID,
		}, nil

	case "message_delivered":
		return Frame{Kind: FrameDelivered, MessageID: w.MessageID}, nil

	case "message_read":
		return Frame{Kind: FrameRead, MessageID: w.MessageID, UserID: w.UserID}, nil

	case "unread_count":
		return Frame{Kind: FrameUnreadCount, Count: w.Count}, nil

	case "":
		// Legacy untagged payload. Only treat it as a message if it
		// actually carries one.
		if w.Message != "" {
			return Frame{
				Kind:    FrameNewMessage,
				Content: w.Message,
				Author:  author,
			}, nil
		}
		return Frame{Kind: FrameUnknown}, nil

	default:
		return Frame{Kind: FrameUnknown}, nil
	}
}

// EncodeSend builds an outbound chat message frame. The client-generated
// id rides along so a compliant backend can acknowledge against it.
func EncodeSend(text, author, clientID string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":             "send_message",
		"message":          text,
		"author_full_name": author,
		"client_id":        clientID,
	})
	return data
}

// EncodeMarkRead builds the read-receipt frame for a batch of message ids.
func EncodeMarkRead(roomID int64, messageIDs []int64) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":        "mark_messages_read",
		"room_id":     roomID,
		"message_ids": messageIDs,
	})
	return data
}

// EncodeReadLegacy builds the older whole-room read signal some backend
// versions expect alongside mark_messages_read.
func EncodeReadLegacy(roomID int64, userID string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":     "read_messages",
		"chatroom": roomID,
		"user":     userID,
	})
	return data
}

// EncodeUnreadRequest builds the unread-count query frame.
func EncodeUnreadRequest() []byte {
	data, _ := json.Marshal(map[string]any{"type": "get_unread_count"})
	return data
}
