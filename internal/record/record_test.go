package record

import "testing"

func TestDecodeMessage_LenientNumerics(t *testing.T) {
	tests := []struct {
		name string
		json string
		want uint64
	}{
		{"integer", `{"tokens":{"input":42}}`, 42},
		{"float", `{"tokens":{"input":42.9}}`, 42},
		{"string", `{"tokens":{"input":"42"}}`, 42},
		{"null", `{"tokens":{"input":null}}`, 0},
		{"missing", `{"tokens":{}}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := DecodeMessage([]byte(tt.json))
			if !ok {
				t.Fatal("decode failed")
			}
			if m.Tokens == nil {
				t.Fatal("Tokens = nil")
			}
			if uint64(m.Tokens.Input) != tt.want {
				t.Errorf("Input = %d, want %d", m.Tokens.Input, tt.want)
			}
		})
	}
}

func TestDecodeMessage_NumericID(t *testing.T) {
	m, ok := DecodeMessage([]byte(`{"id":12345,"sessionID":"ses_1","cost":"0.02"}`))
	if !ok {
		t.Fatal("decode failed")
	}
	if string(m.ID) != "12345" {
		t.Errorf("ID = %q, want 12345", m.ID)
	}
	if float64(m.Cost) != 0.02 {
		t.Errorf("Cost = %v, want 0.02", m.Cost)
	}
}

func TestDecodeMessage_SummaryVariants(t *testing.T) {
	// summary can be an object, a bool, or null; only objects carry diffs.
	m, ok := DecodeMessage([]byte(`{"summary":{"diffs":[{"file":"a.go","additions":3,"deletions":1,"status":"added"}]}}`))
	if !ok {
		t.Fatal("decode failed")
	}
	if m.Summary == nil || len(m.Summary.Diffs) != 1 {
		t.Fatal("expected one diff entry")
	}
	d := m.Summary.Diffs[0]
	if string(d.File) != "a.go" || uint64(d.Additions) != 3 || uint64(d.Deletions) != 1 {
		t.Errorf("unexpected diff entry %+v", d)
	}

	for _, raw := range []string{`{"summary":true}`, `{"summary":null}`, `{"summary":false}`} {
		m, ok := DecodeMessage([]byte(raw))
		if !ok {
			t.Fatalf("decode failed for %s", raw)
		}
		if m.Summary != nil && len(m.Summary.Diffs) != 0 {
			t.Errorf("summary %s should carry no diffs", raw)
		}
	}
}

func TestModelIdentity(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"top level", `{"providerID":"anthropic","modelID":"claude-sonnet-4"}`, "anthropic/claude-sonnet-4"},
		{"nested", `{"model":{"providerID":"openai","modelID":"gpt-4o"}}`, "openai/gpt-4o"},
		{"nested wins", `{"providerID":"a","modelID":"b","model":{"providerID":"c","modelID":"d"}}`, "c/d"},
		{"bare slug", `{"modelID":"claude-sonnet-4"}`, "claude-sonnet-4"},
		{"empty", `{}`, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := DecodeMessage([]byte(tt.json))
			if !ok {
				t.Fatal("decode failed")
			}
			if got := m.ModelIdentity(); got != tt.want {
				t.Errorf("ModelIdentity() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDay(t *testing.T) {
	// 2024-03-01T12:00:00Z in millis
	if got := Day(1709294400000, true); got != "2024-03-01" {
		t.Errorf("Day = %q, want 2024-03-01", got)
	}
	if got := Day(0, false); got != UnknownDay {
		t.Errorf("Day = %q, want %q", got, UnknownDay)
	}
}

func TestDecodeDiffEntries_Malformed(t *testing.T) {
	if _, ok := DecodeDiffEntries([]byte(`{"not":"an array"}`)); ok {
		t.Error("expected failure for non-array payload")
	}
	entries, ok := DecodeDiffEntries([]byte(`[{"file":"x.rs","additions":"7"}]`))
	if !ok || len(entries) != 1 {
		t.Fatal("expected one entry")
	}
	if uint64(entries[0].Additions) != 7 {
		t.Errorf("Additions = %d, want 7", entries[0].Additions)
	}
}

// FuzzDecodeMessage checks that the lenient decoder never panics on
// arbitrary input, which matters since record files arrive half-written.
func FuzzDecodeMessage(f *testing.F) {
	f.Add([]byte(`{"id":"msg_1","sessionID":"ses_1","role":"assistant","cost":0.5}`))
	f.Add([]byte(`{"id":12345,"tokens":{"input":"42","cache":{"read":1}}}`))
	f.Add([]byte(`{"time":{"created":1717405200000,"completed":"bad"}}`))
	f.Add([]byte(`{"summary":{"diffs":[{"file":"a.go","additions":1}]}}`))
	f.Add([]byte(`not json`))
	f.Add([]byte(`{}`))
	f.Add([]byte(``))
	f.Add([]byte(`{"id":"msg_1`)) // unterminated string

	f.Fuzz(func(t *testing.T, data []byte) {
		m, ok := DecodeMessage(data)
		if !ok {
			return
		}
		// A decoded message must be safe to interrogate.
		_ = m.ModelIdentity()
		_, _ = m.CreatedMillis()
		_, _ = m.CompletedMillis()
	})
}
