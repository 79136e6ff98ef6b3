// Package event defines the chat message the gate evaluates, as handed over
// by the host runtime.
package event

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// MessageType is the host's coarse message category.
type MessageType string

const (
	FriendMessage  MessageType = "friend"
	GroupMessage   MessageType = "group"
	OtherMessage   MessageType = "other"
	UnknownMessage MessageType = "unknown"
)

// UnmarshalText accepts both the short names and the host's enum names
// (FriendMessage, GroupMessage, OtherMessage). Anything else becomes
// UnknownMessage rather than failing the whole event.
func (m *MessageType) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "friend", "friendmessage", "friend_message", "private":
		*m = FriendMessage
	case "group", "groupmessage", "group_message":
		*m = GroupMessage
	case "other", "othermessage", "other_message":
		*m = OtherMessage
	default:
		*m = UnknownMessage
	}
	return nil
}

func (m MessageType) String() string { return string(m) }

// Raw payload fields of OneBot-style adapters.
const (
	PostTypeRequest = "request"
	SubTypeFriend   = "friend"
	RawPrivate      = "private"
)

type Event struct {
	ID          string          `json:"id"`
	Platform    string          `json:"platform"`
	MessageType MessageType     `json:"message_type"`
	Origin      string          `json:"origin"`
	SenderID    string          `json:"sender_id"`
	GroupID     string          `json:"group_id,omitempty"`
	Text        string          `json:"text"`
	Timestamp   int64           `json:"timestamp,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// rawString reads a top-level field of the raw transport payload. Missing
// payloads, invalid JSON and missing fields all read as "".
func (e *Event) rawString(field string) string {
	if len(e.Raw) == 0 {
		return ""
	}
	return gjson.GetBytes(e.Raw, field).String()
}

func (e *Event) PostType() string       { return e.rawString("post_type") }
func (e *Event) SubType() string        { return e.rawString("sub_type") }
func (e *Event) RawMessageType() string { return e.rawString("message_type") }

// IsRequest reports whether the payload is a friend-add or group-invite
// request rather than a chat message.
func (e *Event) IsRequest() bool {
	return e.PostType() == PostTypeRequest
}

// Time returns when the message was sent. The event's own timestamp wins;
// the raw payload's "time" field is the fallback. ok is false when neither
// carries a usable value.
func (e *Event) Time() (t time.Time, ok bool) {
	if e.Timestamp > 0 {
		return time.Unix(e.Timestamp, 0), true
	}
	if len(e.Raw) == 0 {
		return time.Time{}, false
	}
	res := gjson.GetBytes(e.Raw, "time")
	if !res.Exists() {
		return time.Time{}, false
	}
	switch res.Type {
	case gjson.Number, gjson.String:
		if sec := res.Int(); sec > 0 {
			return time.Unix(sec, 0), true
		}
	}
	return time.Time{}, false
}

// IsEmptyText reports whether the message carries no visible text.
func (e *Event) IsEmptyText() bool {
	return strings.TrimSpace(e.Text) == ""
}
