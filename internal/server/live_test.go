package server

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coffersTech/nanodiscover/internal/livetail"
	"github.com/coffersTech/nanodiscover/internal/model"
)

func nextFrame(t *testing.T, events <-chan livetail.Event) *livetail.Frame {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("events closed before a frame arrived")
			}
			if ev.Type == livetail.EventFrame {
				return ev.Frame
			}
		case <-timeout:
			t.Fatal("timed out waiting for a frame")
		}
	}
}

func waitState(t *testing.T, events <-chan livetail.Event, want livetail.State) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("events closed before state %s", want)
			}
			if ev.Type == livetail.EventState && ev.State == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func waitClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients() != want {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d clients, want %d", hub.Clients(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func messages(f *livetail.Frame) []string {
	field, ok := f.Field(livetail.ColumnMessage)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range field.Values {
		out = append(out, v.(string))
	}
	return out
}

func TestLiveStreamBacklogAndBroadcast(t *testing.T) {
	s, h := newTestServer(t, Options{})
	ts := httptest.NewServer(h)
	defer ts.Close()

	stream := livetail.New(livetail.Options{BaseURL: ts.URL, ReconnectInterval: 50 * time.Millisecond})
	sub, err := stream.Subscribe(context.Background(), livetail.Query{Query: "level:ERROR", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	backlog := nextFrame(t, sub.Events())
	if got := messages(backlog); len(got) != 1 || got[0] != "card declined" {
		t.Fatalf("backlog = %v, want the newest match only", got)
	}
	waitClients(t, s.Hub(), 1)

	s.Hub().Ingest(
		model.Document{Message: "quiet", Level: "INFO", Service: "api"},
		model.Document{Message: "boom", Level: "ERROR", Service: "api", Attributes: map[string]any{"region": "eu"}},
	)

	live := nextFrame(t, sub.Events())
	if got := messages(live); len(got) != 1 || got[0] != "boom" {
		t.Fatalf("live frame = %v", got)
	}
	docs := live.Documents()
	if docs[0].Level != "ERROR" || docs[0].Service != "api" || docs[0].Attributes["region"] != "eu" {
		t.Errorf("document = %+v", docs[0])
	}
	if docs[0].ID == "" {
		t.Error("stored id was not sent")
	}

	sub.Unsubscribe()
	waitClients(t, s.Hub(), 0)
}

func TestLiveStreamTenantFilter(t *testing.T) {
	s, h := newTestServer(t, Options{})
	ts := httptest.NewServer(h)
	defer ts.Close()

	stream := livetail.New(livetail.Options{BaseURL: ts.URL, TenantID: "acme"})
	sub, err := stream.Subscribe(context.Background(), livetail.Query{})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	backlog := nextFrame(t, sub.Events())
	if got := messages(backlog); len(got) != 1 || got[0] != "card declined" {
		t.Fatalf("backlog = %v", got)
	}
	waitClients(t, s.Hub(), 1)
}

func TestHubCloseMakesClientsReconnect(t *testing.T) {
	s, h := newTestServer(t, Options{})
	ts := httptest.NewServer(h)
	defer ts.Close()

	stream := livetail.New(livetail.Options{BaseURL: ts.URL, ReconnectInterval: time.Hour})
	sub, err := stream.Subscribe(context.Background(), livetail.Query{Query: "service:payments"})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	nextFrame(t, sub.Events())
	waitClients(t, s.Hub(), 1)

	s.Hub().Close()
	waitState(t, sub.Events(), livetail.StateReconnecting)
	waitClients(t, s.Hub(), 0)
}
