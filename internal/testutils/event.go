package testutils

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/lessucettes/chatgate/internal/event"
)

// Platform used by fixtures unless a test needs a specific adapter.
const TestPlatform = "aiocqhttp"

// MakeEvent builds an event with a deterministic ID. raw is marshalled into
// the transport payload when non-nil.
func MakeEvent(mt event.MessageType, origin, senderID, groupID string, ts time.Time, raw map[string]any) *event.Event {
	localRand := rand.New(rand.NewSource(42))

	ev := &event.Event{
		Platform:    TestPlatform,
		MessageType: mt,
		Origin:      origin,
		SenderID:    senderID,
		GroupID:     groupID,
		Text:        "hello",
	}
	if !ts.IsZero() {
		ev.Timestamp = ts.Unix()
	}
	if raw != nil {
		b, err := json.Marshal(raw)
		if err != nil {
			panic(err)
		}
		ev.Raw = b
	}
	ev.ID = fmt.Sprintf("id-%s-%x", mt, localRand.Uint64())
	return ev
}

// MakeFriendMessage is a fresh private message from a friend.
func MakeFriendMessage(userID string) *event.Event {
	return MakeEvent(event.FriendMessage, "qq:FriendMessage:"+userID, userID, "", time.Now(),
		map[string]any{"post_type": "message", "message_type": "private", "sub_type": "friend"})
}

// MakeGroupMessage is a fresh group message.
func MakeGroupMessage(userID, groupID string) *event.Event {
	return MakeEvent(event.GroupMessage, "qq:GroupMessage:"+groupID, userID, groupID, time.Now(),
		map[string]any{"post_type": "message", "message_type": "group"})
}

// MakeTempMessage is a fresh private message from a stranger reaching the
// bot through a shared group.
func MakeTempMessage(userID string) *event.Event {
	return MakeEvent(event.FriendMessage, "qq:FriendMessage:"+userID, userID, "", time.Now(),
		map[string]any{"post_type": "message", "message_type": "private", "sub_type": "group"})
}

// MakeRequest is a friend-add request with no text.
func MakeRequest(userID string) *event.Event {
	ev := MakeEvent(event.OtherMessage, "qq:OtherMessage:"+userID, userID, "", time.Now(),
		map[string]any{"post_type": "request", "request_type": "friend"})
	ev.Text = ""
	return ev
}
