package livetail

import (
	"testing"
	"time"
)

func TestBuildFramePadsLateFields(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	payload := `[
		{"timestamp":"2024-05-01T10:00:00Z","message":"first","fields":{"level":"info"}},
		{"message":"second","fields":{"user":"bob","attempts":3}}
	]`

	f, err := buildFrame([]byte(payload), "B", now)
	if err != nil {
		t.Fatal(err)
	}
	if f.Key != "live-logs-B" || f.RefID != "B" {
		t.Errorf("key = %q refId = %q", f.Key, f.RefID)
	}
	if f.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", f.Len())
	}

	names := make([]string, len(f.Fields))
	for i, fd := range f.Fields {
		names[i] = fd.Name
		if len(fd.Values) != 2 {
			t.Errorf("field %s has %d values, want 2", fd.Name, len(fd.Values))
		}
	}
	want := []string{"time", "message", "level", "user", "attempts"}
	if len(names) != len(want) {
		t.Fatalf("fields = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("fields = %v, want %v", names, want)
		}
	}

	user, _ := f.Field("user")
	if user.Values[0] != nil || user.Values[1] != "bob" {
		t.Errorf("user = %v", user.Values)
	}
	level, _ := f.Field("level")
	if level.Values[0] != "info" || level.Values[1] != nil {
		t.Errorf("level = %v", level.Values)
	}
	attempts, _ := f.Field("attempts")
	if attempts.Values[1] != 3.0 {
		t.Errorf("attempts = %v", attempts.Values)
	}

	ts, _ := f.Field("time")
	if got := ts.Values[0].(time.Time); !got.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("time[0] = %v", got)
	}
	if got := ts.Values[1].(time.Time); !got.Equal(now) {
		t.Errorf("missing timestamp should use now, got %v", got)
	}
}

func TestBuildFrameSingleObject(t *testing.T) {
	f, err := buildFrame([]byte(`{"timestamp":"2024-05-01T10:00:00Z"}`), "A", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	msg, _ := f.Field("message")
	if f.Len() != 1 || msg.Values[0] != "" {
		t.Errorf("message defaults to empty string, got %v", msg.Values)
	}
}

func TestBuildFrameRejectsBadPayloads(t *testing.T) {
	for _, payload := range []string{`not json`, `42`, `[{"message":"ok"}, "nope"]`} {
		if _, err := buildFrame([]byte(payload), "A", time.Now()); err == nil {
			t.Errorf("buildFrame(%s) should fail", payload)
		}
	}
}

func TestFrameDocuments(t *testing.T) {
	payload := `{"timestamp":"2024-05-01T10:00:00.250Z","message":"boom",
		"fields":{"level":"error","service":"api","path":"/x","empty":null}}`
	f, err := buildFrame([]byte(payload), "A", time.Now())
	if err != nil {
		t.Fatal(err)
	}

	docs := f.Documents()
	if len(docs) != 1 {
		t.Fatalf("got %d documents", len(docs))
	}
	d := docs[0]
	if d.ID == "" || d.Message != "boom" || d.Level != "error" || d.Service != "api" {
		t.Errorf("unexpected document %+v", d)
	}
	if d.Timestamp != "2024-05-01T10:00:00.250Z" {
		t.Errorf("Timestamp = %q", d.Timestamp)
	}
	if d.Attributes["path"] != "/x" {
		t.Errorf("Attributes = %v", d.Attributes)
	}
	if _, ok := d.Attributes["empty"]; ok {
		t.Error("null cells should not become attributes")
	}
}
