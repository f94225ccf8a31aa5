package reminder

// CurrentSchemaVersion is the version written by this build.
const CurrentSchemaVersion = 1

// File is the persisted reminders document.
type File struct {
	SchemaVersion int        `json:"schemaVersion"`
	Reminders     []Reminder `json:"reminders"`
}

// EmptyFile returns an empty document at the current schema version.
func EmptyFile() *File {
	return &File{SchemaVersion: CurrentSchemaVersion, Reminders: []Reminder{}}
}

// Index returns the position of id, or -1.
func (f *File) Index(id string) int {
	if f == nil {
		return -1
	}
	for i := range f.Reminders {
		if f.Reminders[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone deep-copies the document.
func (f *File) Clone() *File {
	if f == nil {
		return nil
	}
	out := &File{SchemaVersion: f.SchemaVersion, Reminders: make([]Reminder, len(f.Reminders))}
	for i := range f.Reminders {
		out.Reminders[i] = f.Reminders[i].Clone()
	}
	return out
}
