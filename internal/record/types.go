// Package record defines the on-disk opencode record shapes and their
// lenient JSON decoding.
package record

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// LenientString decodes a JSON string, or a number rendered as its
// decimal string. Producers are inconsistent about quoting ids.
type LenientString string

// UnmarshalJSON implements lenient string decoding.
func (s *LenientString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = LenientString(v)
		return nil
	}
	// Number (or bool) — keep the raw token as text.
	*s = LenientString(data)
	return nil
}

// LenientUint decodes an unsigned counter that may arrive as an integer,
// a float, or a quoted number.
type LenientUint uint64

// UnmarshalJSON implements lenient unsigned decoding.
func (u *LenientUint) UnmarshalJSON(data []byte) error {
	v, err := lenientFloat(data)
	if err != nil {
		return err
	}
	if v < 0 {
		v = 0
	}
	*u = LenientUint(v)
	return nil
}

// LenientInt decodes a signed integer that may arrive as an integer,
// a float, or a quoted number.
type LenientInt int64

// UnmarshalJSON implements lenient signed decoding.
func (i *LenientInt) UnmarshalJSON(data []byte) error {
	v, err := lenientFloat(data)
	if err != nil {
		return err
	}
	*i = LenientInt(v)
	return nil
}

// LenientFloat decodes a float that may arrive as a number or a
// quoted number.
type LenientFloat float64

// UnmarshalJSON implements lenient float decoding.
func (f *LenientFloat) UnmarshalJSON(data []byte) error {
	v, err := lenientFloat(data)
	if err != nil {
		return err
	}
	*f = LenientFloat(v)
	return nil
}

func lenientFloat(data []byte) (float64, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, err
		}
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// CacheTokens holds cache read/write counters from a message's token block.
type CacheTokens struct {
	Read  LenientUint `json:"read"`
	Write LenientUint `json:"write"`
}

// TokenCounts is the raw token block of a message.
type TokenCounts struct {
	Input     LenientUint  `json:"input"`
	Output    LenientUint  `json:"output"`
	Reasoning LenientUint  `json:"reasoning"`
	Cache     *CacheTokens `json:"cache"`
}

// TimeInfo holds epoch-millisecond timestamps for a message.
type TimeInfo struct {
	Created   *LenientInt `json:"created"`
	Completed *LenientInt `json:"completed"`
}

// PathInfo holds the working directories recorded on a message.
type PathInfo struct {
	Cwd  string `json:"cwd"`
	Root string `json:"root"`
}

// ModelInfo is the nested model identity block some producers write.
type ModelInfo struct {
	ProviderID LenientString `json:"providerID"`
	ModelID    LenientString `json:"modelID"`
}

// DiffEntry is one file entry in a diff summary. Shared between inline
// message summaries and the per-session diff store.
type DiffEntry struct {
	File      LenientString `json:"file"`
	Additions LenientUint   `json:"additions"`
	Deletions LenientUint   `json:"deletions"`
	Status    LenientString `json:"status"`
}

// Summary is the inline diff summary carried by some messages. The
// field is polymorphic upstream (object, bool, or null), so it decodes
// through UnmarshalJSON and degrades to empty on anything non-object.
type Summary struct {
	Diffs []DiffEntry `json:"diffs"`
}

// UnmarshalJSON accepts an object, or silently drops bool/null values.
func (s *Summary) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		*s = Summary{}
		return nil
	}
	type plain Summary
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*s = Summary{}
		return nil
	}
	*s = Summary(p)
	return nil
}

// Message is one message record file.
type Message struct {
	ID         LenientString `json:"id"`
	SessionID  LenientString `json:"sessionID"`
	Role       LenientString `json:"role"`
	Agent      LenientString `json:"agent"`
	ProviderID LenientString `json:"providerID"`
	ModelID    LenientString `json:"modelID"`
	Model      *ModelInfo    `json:"model"`
	Time       *TimeInfo     `json:"time"`
	Tokens     *TokenCounts  `json:"tokens"`
	Summary    *Summary      `json:"summary"`
	Path       *PathInfo     `json:"path"`
	Cost       LenientFloat  `json:"cost"`
}

// ToolState carries the input block of a tool part.
type ToolState struct {
	Input json.RawMessage `json:"input"`
}

// Part is one part record file (tool call, text, or reasoning).
type Part struct {
	Type  string     `json:"type"`
	Text  string     `json:"text"`
	Tool  string     `json:"tool"`
	State *ToolState `json:"state"`
}

// Session is one session metadata record.
type Session struct {
	ID       LenientString `json:"id"`
	Title    LenientString `json:"title"`
	ParentID LenientString `json:"parentID"`
}
