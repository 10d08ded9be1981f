package realtime

import (
	"errors"
	"testing"

	"board-api/domain"
)

func TestChangeEnvelopeTypes(t *testing.T) {
	cases := []struct {
		entity domain.EntityKind
		want   string
	}{
		{domain.EntityBoard, MsgBoardUpdate},
		{domain.EntityList, MsgListUpdate},
		{domain.EntityTask, MsgTaskUpdate},
	}
	for _, tc := range cases {
		env := ChangeEnvelope(domain.ChangeEvent{Entity: tc.entity, Action: domain.ActionMoved, BoardID: "B1"})
		if env.Type != tc.want {
			t.Fatalf("entity %s mapped to %s, want %s", tc.entity, env.Type, tc.want)
		}
		if env.BoardID != "B1" {
			t.Fatalf("boardId = %q, want B1", env.BoardID)
		}
	}
}

func TestChangeEnvelopeCarriesMoveParents(t *testing.T) {
	env := ChangeEnvelope(domain.ChangeEvent{
		Entity:         domain.EntityTask,
		Action:         domain.ActionMoved,
		BoardID:        "B1",
		SourceParentID: "L1",
		DestParentID:   "L2",
	})
	payload, ok := env.Payload.(UpdatePayload)
	if !ok {
		t.Fatalf("payload = %#v", env.Payload)
	}
	if payload.Action != domain.ActionMoved || payload.OldParentID != "L1" || payload.NewParentID != "L2" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestDecodeControl(t *testing.T) {
	msg, err := decodeControl([]byte(`{"type":"subscribe_board","boardId":"B1","userId":"u1"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != MsgSubscribeBoard || msg.BoardID != "B1" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestDecodeControlRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"not json", "{}", `{"boardId":"B1"}`} {
		if _, err := decodeControl([]byte(raw)); !errors.Is(err, errMalformedMessage) {
			t.Fatalf("decode(%q) err = %v, want malformed", raw, err)
		}
	}
}
