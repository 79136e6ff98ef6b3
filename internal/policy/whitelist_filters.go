package policy

import (
	"context"

	"github.com/lessucettes/chatgate/internal/config"
	"github.com/lessucettes/chatgate/internal/event"
	"github.com/lessucettes/chatgate/internal/whitelist"
)

const (
	globalWhitelistFilterName = "GlobalWhitelistFilter"
	friendWhitelistFilterName = "FriendWhitelistFilter"
	groupWhitelistFilterName  = "GroupWhitelistFilter"
)

// GlobalWhitelistFilter accepts anything the global list identifies, before
// any other rule is looked at.
type GlobalWhitelistFilter struct {
	lists WhitelistSource
}

func NewGlobalWhitelistFilter(lists WhitelistSource) *GlobalWhitelistFilter {
	return &GlobalWhitelistFilter{lists: lists}
}

func (f *GlobalWhitelistFilter) Match(ctx context.Context, ev *event.Event, _ map[string]any) (FilterResult, error) {
	newResult := NewResultFunc(globalWhitelistFilterName)

	entries, err := f.lists.Entries(ctx, whitelist.Global)
	if err != nil {
		return newResult(Continue, "global_whitelist_unavailable", err)
	}
	if len(entries) == 0 {
		return newResult(Continue, "global_whitelist_empty", nil)
	}
	user, group, origin := identifiers(ev)
	if whitelist.Match(entries, user, group, origin) {
		return newResult(Allow, "global_whitelist_match", nil)
	}
	return newResult(Continue, "not_in_global_whitelist", nil)
}

type FriendWhitelistFilter struct {
	cfg      *config.WhitelistConfig
	feedback *config.FeedbackConfig
	lists    WhitelistSource
	throttle *FeedbackThrottle
}

func NewFriendWhitelistFilter(cfg *config.WhitelistConfig, feedback *config.FeedbackConfig, lists WhitelistSource, throttle *FeedbackThrottle) *FriendWhitelistFilter {
	return &FriendWhitelistFilter{cfg: cfg, feedback: feedback, lists: lists, throttle: throttle}
}

func (f *FriendWhitelistFilter) Match(ctx context.Context, ev *event.Event, meta map[string]any) (FilterResult, error) {
	newResult := NewResultFunc(friendWhitelistFilterName)

	if sessionKindFrom(meta) != SessionFriend {
		return newResult(Continue, "not_a_friend_message", nil)
	}
	if !f.cfg.Enabled {
		return newResult(Allow, "friend_whitelist_disabled", nil)
	}
	entries, err := f.lists.Entries(ctx, whitelist.Friend)
	if err != nil {
		return newResult(Block, "friend_whitelist_unavailable", err)
	}
	// An empty list means nobody has been configured yet; everyone passes.
	if len(entries) == 0 {
		return newResult(Allow, "friend_whitelist_empty", nil)
	}
	// Private chats match on sender and session only; a group ID never
	// admits a friend message.
	user, _, origin := identifiers(ev)
	if whitelist.Match(entries, user, "", origin) {
		return newResult(Allow, "friend_whitelist_match", nil)
	}
	res, err := newResult(Block, "not_in_friend_whitelist", nil)
	res.Feedback = feedbackFor(f.throttle, ev, meta, f.feedback.FriendMessage)
	return res, err
}

// GroupWhitelistFilter blocks group messages from groups not on the list.
// Group blocks are always silent.
type GroupWhitelistFilter struct {
	cfg   *config.WhitelistConfig
	lists WhitelistSource
}

func NewGroupWhitelistFilter(cfg *config.WhitelistConfig, lists WhitelistSource) *GroupWhitelistFilter {
	return &GroupWhitelistFilter{cfg: cfg, lists: lists}
}

func (f *GroupWhitelistFilter) Match(ctx context.Context, ev *event.Event, meta map[string]any) (FilterResult, error) {
	newResult := NewResultFunc(groupWhitelistFilterName)

	if sessionKindFrom(meta) != SessionGroup {
		return newResult(Continue, "not_a_group_message", nil)
	}
	if !f.cfg.Enabled {
		return newResult(Allow, "group_whitelist_disabled", nil)
	}
	entries, err := f.lists.Entries(ctx, whitelist.Group)
	if err != nil {
		return newResult(Block, "group_whitelist_unavailable", err)
	}
	if len(entries) == 0 {
		return newResult(Allow, "group_whitelist_empty", nil)
	}
	user, group, origin := identifiers(ev)
	if whitelist.Match(entries, user, group, origin) {
		return newResult(Allow, "group_whitelist_match", nil)
	}
	return newResult(Block, "not_in_group_whitelist", nil)
}
