package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// UserInfo represents an authenticated principal as returned by the identity
// provider. The payload is opaque to this package and is passed through
// unmodified. Implementations are immutable and safe for concurrent use.
type UserInfo interface {
	// UserID returns the provider's "id" field in string form, or "" if the
	// payload has no such field.
	UserID() string
	// Claims unmarshalls the identity payload into the provided reference.
	Claims(ref any) error
	// Raw returns a copy of the identity payload exactly as received.
	Raw() json.RawMessage
}

// NewUserInfo wraps a provider payload. The payload must be well-formed JSON;
// nothing else about its shape is checked.
func NewUserInfo(payload []byte) (UserInfo, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, errors.New("auth: empty identity payload")
	}
	if !json.Valid(trimmed) {
		return nil, errors.New("auth: identity payload is not valid JSON")
	}
	raw := append(json.RawMessage(nil), trimmed...)
	return &userInfo{raw: raw, id: extractID(raw)}, nil
}

type userInfo struct {
	raw json.RawMessage
	id  string
}

func (u *userInfo) UserID() string { return u.id }

func (u *userInfo) Claims(ref any) error {
	return json.Unmarshal(u.raw, ref)
}

func (u *userInfo) Raw() json.RawMessage {
	return append(json.RawMessage(nil), u.raw...)
}

func (u *userInfo) String() string {
	return fmt.Sprintf("UserInfo(id=%q)", u.id)
}

// extractID reads a top-level "id" member without interpreting anything else.
func extractID(raw json.RawMessage) string {
	var obj struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(obj.ID, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(obj.ID, &n); err == nil {
		return n.String()
	}
	return ""
}
