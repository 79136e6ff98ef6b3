package policy

import (
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lessucettes/chatgate/internal/config"
	"github.com/lessucettes/chatgate/internal/event"
)

// SessionKind is the gate's view of where a message came from.
type SessionKind int

const (
	SessionUnknown SessionKind = iota
	SessionRequest
	SessionTemporary
	SessionFriend
	SessionGroup
)

func (k SessionKind) String() string {
	switch k {
	case SessionRequest:
		return "request"
	case SessionTemporary:
		return "temporary"
	case SessionFriend:
		return "friend"
	case SessionGroup:
		return "group"
	default:
		return "unknown"
	}
}

const (
	tempLogCacheSize = 4096
	tempLogTTL       = 10 * time.Minute
)

// Classifier assigns a SessionKind to every event before the filters run.
type Classifier struct {
	tempPlatforms map[string]struct{}
	logged        *expirable.LRU[string, struct{}] // origins already logged as temporary
}

func NewClassifier(cfg *config.GateConfig) *Classifier {
	platforms := make(map[string]struct{}, len(cfg.TempSessionPlatforms))
	for _, p := range cfg.TempSessionPlatforms {
		platforms[strings.TrimSpace(p)] = struct{}{}
	}
	return &Classifier{
		tempPlatforms: platforms,
		logged:        expirable.NewLRU[string, struct{}](tempLogCacheSize, nil, tempLogTTL),
	}
}

// Classify checks request first, then temporary session, then the host's
// message category.
func (c *Classifier) Classify(ev *event.Event) SessionKind {
	if ev.IsRequest() {
		return SessionRequest
	}
	if c.isTemporary(ev) {
		return SessionTemporary
	}
	switch ev.MessageType {
	case event.FriendMessage:
		return SessionFriend
	case event.GroupMessage:
		return SessionGroup
	default:
		return SessionUnknown
	}
}

func (c *Classifier) isTemporary(ev *event.Event) bool {
	if ev.MessageType == event.OtherMessage {
		return true
	}
	if ev.MessageType != event.FriendMessage {
		return false
	}
	if _, ok := c.tempPlatforms[ev.Platform]; !ok {
		return false
	}
	if ev.RawMessageType() != event.RawPrivate {
		return false
	}
	sub := ev.SubType()
	if sub == "" || sub == event.SubTypeFriend {
		return false
	}
	if _, seen := c.logged.Get(ev.Origin); !seen {
		c.logged.Add(ev.Origin, struct{}{})
		slog.Debug("Private message classified as temporary session",
			"platform", ev.Platform, "origin", ev.Origin, "sub_type", sub)
	}
	return true
}
