package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

// Recovered reports a document that could not be read as-is. The document
// returned alongside it is still usable: empty when the whole file was
// unreadable, partial when only some reminders were dropped.
type Recovered struct {
	Reason  string
	Dropped int
}

func (e *Recovered) Error() string {
	if e.Dropped > 0 {
		return fmt.Sprintf("%s: %s (%d reminders dropped)", reminder.ErrDocumentCorrupt, e.Reason, e.Dropped)
	}
	return fmt.Sprintf("%s: %s", reminder.ErrDocumentCorrupt, e.Reason)
}

func (e *Recovered) Unwrap() error { return reminder.ErrDocumentCorrupt }

// step rewrites a raw document from version n to n+1.
type step func(doc map[string]json.RawMessage) error

// steps[n] upgrades a version-n document. Version 1 is the first shipped
// schema, so the chain is empty for now.
var steps = map[int]step{}

type rawFile struct {
	SchemaVersion int               `json:"schemaVersion"`
	Reminders     []json.RawMessage `json:"reminders"`
}

// Migrate decodes raw into the current schema. It always returns a usable
// document; a non-nil error is a *Recovered describing what was lost.
func Migrate(raw []byte, log logx.Logger) (*reminder.File, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return reminder.EmptyFile(), nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return corrupt(log, "not a JSON object")
	}
	var version int
	if v, ok := doc["schemaVersion"]; !ok || json.Unmarshal(v, &version) != nil || version < 1 {
		// Pre-versioned documents carry nothing worth keeping.
		log.Warn("reminders document has no schemaVersion, starting empty")
		return reminder.EmptyFile(), nil
	}
	if version > reminder.CurrentSchemaVersion {
		return corrupt(log, fmt.Sprintf("schemaVersion %d is newer than %d", version, reminder.CurrentSchemaVersion))
	}
	for version < reminder.CurrentSchemaVersion {
		if fn, ok := steps[version]; ok {
			if err := fn(doc); err != nil {
				return corrupt(log, fmt.Sprintf("migrate v%d: %v", version, err))
			}
		}
		version++
		log.Info("reminders document migrated", logx.Int("to", version))
	}
	doc["schemaVersion"], _ = json.Marshal(version)

	b, err := json.Marshal(doc)
	if err != nil {
		return corrupt(log, err.Error())
	}
	var rf rawFile
	if err := json.Unmarshal(b, &rf); err != nil {
		return corrupt(log, "reminders is not a list")
	}

	out := &reminder.File{SchemaVersion: reminder.CurrentSchemaVersion, Reminders: make([]reminder.Reminder, 0, len(rf.Reminders))}
	seen := make(map[string]struct{}, len(rf.Reminders))
	dropped := 0
	for i, item := range rf.Reminders {
		var r reminder.Reminder
		if err := json.Unmarshal(item, &r); err != nil {
			dropped++
			log.Warn("dropping unreadable reminder", logx.Int("index", i), logx.Err(err))
			continue
		}
		if r.ID == "" || !r.Status.Valid() {
			dropped++
			log.Warn("dropping invalid reminder", logx.Int("index", i), logx.String("id", r.ID), logx.String("status", string(r.Status)))
			continue
		}
		if _, dup := seen[r.ID]; dup {
			dropped++
			log.Warn("dropping duplicate reminder", logx.String("id", r.ID))
			continue
		}
		seen[r.ID] = struct{}{}
		out.Reminders = append(out.Reminders, r)
	}
	if dropped > 0 {
		return out, &Recovered{Reason: "unreadable reminders", Dropped: dropped}
	}
	return out, nil
}

func corrupt(log logx.Logger, reason string) (*reminder.File, error) {
	log.Warn("reminders document unreadable, starting empty", logx.String("reason", reason))
	return reminder.EmptyFile(), &Recovered{Reason: reason}
}

// encode renders f as indented JSON.
func encode(f *reminder.File) ([]byte, error) {
	if f == nil {
		f = reminder.EmptyFile()
	}
	if f.Reminders == nil {
		f = &reminder.File{SchemaVersion: f.SchemaVersion, Reminders: []reminder.Reminder{}}
	}
	return json.MarshalIndent(f, "", "  ")
}
