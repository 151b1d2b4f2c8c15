package record

import (
	"encoding/json"
	"time"
)

// UnknownDay is the bucket for records without a creation timestamp.
const UnknownDay = "unknown"

// DecodeMessage parses a message record. Returns false when the bytes
// are not a usable record; callers skip such files.
func DecodeMessage(data []byte) (Message, bool) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, false
	}
	return m, true
}

// DecodePart parses a part record.
func DecodePart(data []byte) (Part, bool) {
	var p Part
	if err := json.Unmarshal(data, &p); err != nil {
		return Part{}, false
	}
	return p, true
}

// DecodeSession parses a session metadata record.
func DecodeSession(data []byte) (Session, bool) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false
	}
	return s, true
}

// DecodeDiffEntries parses a session_diff store file (an array of entries).
func DecodeDiffEntries(data []byte) ([]DiffEntry, bool) {
	var entries []DiffEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

// CreatedMillis returns the creation timestamp (epoch milliseconds)
// and whether one is present.
func (m *Message) CreatedMillis() (int64, bool) {
	if m.Time == nil || m.Time.Created == nil {
		return 0, false
	}
	return int64(*m.Time.Created), true
}

// CompletedMillis returns the completion timestamp, falling back to the
// creation timestamp.
func (m *Message) CompletedMillis() (int64, bool) {
	if m.Time != nil && m.Time.Completed != nil {
		return int64(*m.Time.Completed), true
	}
	return m.CreatedMillis()
}

// ModelIdentity resolves the model identity of a message as
// "provider/slug", falling back to the bare slug, then "unknown".
func (m *Message) ModelIdentity() string {
	provider := string(m.ProviderID)
	slug := string(m.ModelID)
	if m.Model != nil {
		if m.Model.ProviderID != "" {
			provider = string(m.Model.ProviderID)
		}
		if m.Model.ModelID != "" {
			slug = string(m.Model.ModelID)
		}
	}
	switch {
	case provider != "" && slug != "":
		return provider + "/" + slug
	case slug != "":
		return slug
	default:
		return "unknown"
	}
}

// Day converts an epoch-millisecond timestamp to its UTC calendar-day
// bucket, "2006-01-02".
func Day(millis int64, ok bool) string {
	if !ok {
		return UnknownDay
	}
	return time.UnixMilli(millis).UTC().Format("2006-01-02")
}
