// Package realtime implements the live synchronization subsystem: the
// per-board connection registry, the broadcast hub and the websocket
// connection lifecycle.
package realtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"board-api/domain"
)

// Outbound message types.
const (
	MsgBoardUpdate           = "board_update"
	MsgListUpdate            = "list_update"
	MsgTaskUpdate            = "task_update"
	MsgUserActivity          = "user_activity"
	MsgError                 = "error"
	MsgSubscriptionConfirmed = "subscription_confirmed"
	MsgPong                  = "pong"
	MsgConnection            = "connection"
)

// Inbound control message types.
const (
	MsgSubscribeBoard   = "subscribe_board"
	MsgUnsubscribeBoard = "unsubscribe_board"
	MsgPing             = "ping"
)

// Presence statuses carried by user_activity payloads.
const (
	PresenceJoined = "joined"
	PresenceLeft   = "left"
)

// Envelope is the wire format for every message pushed to a client.
type Envelope struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	BoardID   string `json:"boardId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Timestamp string `json:"timestamp"`
}

func newEnvelope(typ, boardID, userID string, payload any) Envelope {
	return Envelope{
		Type:      typ,
		Payload:   payload,
		BoardID:   boardID,
		UserID:    userID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// UpdatePayload is the payload of board_update, list_update and
// task_update envelopes.
type UpdatePayload struct {
	Action      domain.Action `json:"action"`
	Item        any           `json:"item,omitempty"`
	OldParentID string        `json:"oldParentId,omitempty"`
	NewParentID string        `json:"newParentId,omitempty"`
}

// PresencePayload is the payload of user_activity envelopes.
type PresencePayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ChangeEnvelope maps a committed change onto its wire envelope.
func ChangeEnvelope(ev domain.ChangeEvent) Envelope {
	typ := MsgBoardUpdate
	switch ev.Entity {
	case domain.EntityList:
		typ = MsgListUpdate
	case domain.EntityTask:
		typ = MsgTaskUpdate
	}
	return newEnvelope(typ, ev.BoardID, "", UpdatePayload{
		Action:      ev.Action,
		Item:        ev.Item,
		OldParentID: ev.SourceParentID,
		NewParentID: ev.DestParentID,
	})
}

// ControlMessage is an inbound client message. The userId a client may
// include is ignored; the verified identity from the connection handshake
// is authoritative.
type ControlMessage struct {
	Type    string `json:"type"`
	BoardID string `json:"boardId,omitempty"`
	UserID  string `json:"userId,omitempty"`
}

var errMalformedMessage = errors.New("malformed control message")

func decodeControl(data []byte) (ControlMessage, error) {
	var msg ControlMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return ControlMessage{}, fmt.Errorf("%w: %v", errMalformedMessage, err)
	}
	if msg.Type == "" {
		return ControlMessage{}, errMalformedMessage
	}
	return msg, nil
}
