package codec

import (
	"encoding/json"
	"testing"
)

func TestToJSONPassesJSONThrough(t *testing.T) {
	t.Parallel()
	in := []byte(`{"a":1}`)
	out, format, err := ToJSON("cfg.json", in)
	if err != nil {
		t.Fatalf("ToJSON error: %v", err)
	}
	if format != "json" || string(out) != string(in) {
		t.Fatalf("unexpected result: %s %s", format, out)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	t.Parallel()
	src := []byte("schemaVersion: 1\nreminders:\n  - id: r1\n    createdAt: \"2023-10-27T10:00:00Z\"\n    nested:\n      1: one\n")
	j, format, err := ToJSON("reminders.yml", src)
	if err != nil {
		t.Fatalf("ToJSON error: %v", err)
	}
	if format != "yaml" {
		t.Fatalf("format = %q", format)
	}
	var doc struct {
		SchemaVersion int `json:"schemaVersion"`
		Reminders     []struct {
			ID        string            `json:"id"`
			CreatedAt string            `json:"createdAt"`
			Nested    map[string]string `json:"nested"`
		} `json:"reminders"`
	}
	if err := json.Unmarshal(j, &doc); err != nil {
		t.Fatalf("json: %v", err)
	}
	if doc.SchemaVersion != 1 || doc.Reminders[0].ID != "r1" || doc.Reminders[0].Nested["1"] != "one" {
		t.Fatalf("unexpected doc: %+v", doc)
	}

	y, err := FromJSON(j)
	if err != nil {
		t.Fatalf("FromJSON error: %v", err)
	}
	j2, _, err := ToJSON("x.yaml", y)
	if err != nil {
		t.Fatalf("ToJSON again: %v", err)
	}
	var a, b any
	_ = json.Unmarshal(j, &a)
	_ = json.Unmarshal(j2, &b)
	if ja, jb := mustJSON(t, a), mustJSON(t, b); ja != jb {
		t.Fatalf("round trip changed document:\n%s\n%s", ja, jb)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}
