package realtime

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus/hooks/test"

	"board-api/domain"
)

func newTestHub() (*Hub, *Registry) {
	logger, _ := test.NewNullLogger()
	reg := NewRegistry()
	return NewHub(reg, nil, logger), reg
}

func receive(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case data := <-c.send:
		var env Envelope
		if err := sonic.Unmarshal(data, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Envelope{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message: %s", data)
	default:
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	hub, reg := newTestHub()
	c1, c2 := newBareClient("u1"), newBareClient("u2")
	reg.Subscribe(c1, "B1")
	reg.Subscribe(c2, "B1")

	hub.NotifyChange("B1", domain.ChangeEvent{
		Entity:  domain.EntityList,
		Action:  domain.ActionCreated,
		BoardID: "B1",
		Item:    domain.List{ID: "L1", BoardID: "B1", Title: "todo", Position: 1},
	}, "")

	for _, c := range []*Client{c1, c2} {
		env := receive(t, c)
		if env.Type != MsgListUpdate || env.BoardID != "B1" {
			t.Fatalf("envelope = %+v, want list_update for B1", env)
		}
		if env.Timestamp == "" {
			t.Fatal("envelope missing timestamp")
		}
	}
}

func TestBroadcastExcludesInitiator(t *testing.T) {
	hub, reg := newTestHub()
	c1, c2 := newBareClient("u1"), newBareClient("u2")
	reg.Subscribe(c1, "B1")
	reg.Subscribe(c2, "B1")

	hub.NotifyChange("B1", domain.ChangeEvent{
		Entity:  domain.EntityTask,
		Action:  domain.ActionUpdated,
		BoardID: "B1",
	}, "u1")

	assertSilent(t, c1)
	if env := receive(t, c2); env.Type != MsgTaskUpdate {
		t.Fatalf("envelope type = %s, want task_update", env.Type)
	}
}

func TestBroadcastScopedToBoard(t *testing.T) {
	hub, reg := newTestHub()
	c1, c2 := newBareClient("u1"), newBareClient("u2")
	reg.Subscribe(c1, "B1")
	reg.Subscribe(c2, "B2")

	hub.NotifyChange("B1", domain.ChangeEvent{Entity: domain.EntityBoard, Action: domain.ActionUpdated, BoardID: "B1"}, "")

	receive(t, c1)
	assertSilent(t, c2)
}

func TestDeadConnectionIsEvicted(t *testing.T) {
	hub, reg := newTestHub()
	c1, c2 := newBareClient("u1"), newBareClient("u2")
	reg.Subscribe(c1, "B1")
	reg.Subscribe(c2, "B1")

	// Closed connections refuse writes, which the hub treats as death.
	c2.Close()

	ev := domain.ChangeEvent{Entity: domain.EntityTask, Action: domain.ActionMoved, BoardID: "B1"}
	hub.NotifyChange("B1", ev, "")

	receive(t, c1)
	if got := reg.CountFor("B1"); got != 1 {
		t.Fatalf("CountFor after eviction = %d, want 1", got)
	}

	// Subsequent broadcasts only go to the survivors.
	hub.NotifyChange("B1", ev, "")
	receive(t, c1)
	assertSilent(t, c2)
}

func TestSaturatedConnectionIsEvicted(t *testing.T) {
	hub, reg := newTestHub()
	c := newBareClient("u1")
	reg.Subscribe(c, "B1")

	// Nothing drains c.send, so the buffer eventually rejects writes.
	ev := domain.ChangeEvent{Entity: domain.EntityTask, Action: domain.ActionCreated, BoardID: "B1"}
	for i := 0; i < sendBuffer+1; i++ {
		hub.NotifyChange("B1", ev, "")
	}
	if got := reg.CountFor("B1"); got != 0 {
		t.Fatalf("CountFor after saturation = %d, want 0", got)
	}
}

func TestPresenceExcludesSubject(t *testing.T) {
	hub, reg := newTestHub()
	c1, c2 := newBareClient("u1"), newBareClient("u2")
	reg.Subscribe(c1, "B1")
	reg.Subscribe(c2, "B1")

	hub.NotifyPresence("B1", "u1", PresenceJoined)

	assertSilent(t, c1)
	env := receive(t, c2)
	if env.Type != MsgUserActivity {
		t.Fatalf("envelope type = %s, want user_activity", env.Type)
	}
	payload, ok := env.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload = %#v", env.Payload)
	}
	if payload["userId"] != "u1" || payload["status"] != PresenceJoined {
		t.Fatalf("payload = %v", payload)
	}
}
