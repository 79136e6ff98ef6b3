// Package command implements the admin commands that edit the whitelists.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lessucettes/chatgate/internal/config"
	"github.com/lessucettes/chatgate/internal/event"
	"github.com/lessucettes/chatgate/internal/whitelist"
)

const (
	cmdAdd  = "add_wl"
	cmdDel  = "del_wl"
	cmdList = "list"

	// listPreview is how many entries per list the overview shows.
	listPreview = 10
)

const (
	outcomeOK      = "ok"
	outcomeNoop    = "noop"
	outcomeUsage   = "usage"
	outcomeDenied  = "denied"
	outcomeError   = "error"
	outcomeLimited = "limited"
)

type Lists interface {
	Entries(ctx context.Context, c whitelist.Category) ([]string, error)
	Add(ctx context.Context, c whitelist.Category, id string) (bool, error)
	Remove(ctx context.Context, c whitelist.Category, id string) (bool, error)
}

type Observer interface {
	ObserveCommand(command, outcome string)
}

type Handler struct {
	prefix   string
	admins   []string
	gate     *config.GateConfig
	lists    Lists
	observer Observer
	limiter  *senderLimiter
}

func NewHandler(cfg *config.Config, lists Lists, observer Observer) *Handler {
	return &Handler{
		prefix:   cfg.Commands.Prefix,
		admins:   cfg.Commands.Admins,
		gate:     &cfg.Gate,
		lists:    lists,
		observer: observer,
		limiter:  newSenderLimiter(cfg.Commands.RatePerSecond, cfg.Commands.Burst),
	}
}

// Handle answers ev when its text is a command. ok is false for ordinary
// messages, which the caller should pass on untouched.
func (h *Handler) Handle(ctx context.Context, ev *event.Event) (reply string, ok bool) {
	fields := strings.Fields(ev.Text)
	if len(fields) == 0 || fields[0] != h.prefix {
		return "", false
	}
	if !h.limiter.Allow(ev.Platform + ":" + ev.SenderID) {
		slog.Debug("Command rate limited", "sender_id", ev.SenderID, "origin", ev.Origin)
		if h.observer != nil {
			h.observer.ObserveCommand("any", outcomeLimited)
		}
		return "Too many commands, please wait a moment", true
	}
	if len(fields) == 1 {
		return h.usage(), true
	}

	name, args := fields[1], fields[2:]
	var outcome string
	switch name {
	case cmdAdd:
		reply, outcome = h.add(ctx, ev, args)
	case cmdDel:
		reply, outcome = h.del(ctx, ev, args)
	case cmdList:
		reply, outcome = h.list(ctx, args)
	default:
		name = "unknown"
		reply, outcome = h.usage(), outcomeUsage
	}

	if h.observer != nil {
		h.observer.ObserveCommand(name, outcome)
	}
	return reply, true
}

func (h *Handler) usage() string {
	return fmt.Sprintf("Usage:\n"+
		"  %[1]s add_wl <type> <id>\n"+
		"  %[1]s del_wl <type> <id>\n"+
		"  %[1]s list [type]\n"+
		"Types: friend (private chats), group (group chats), global (everything)",
		h.prefix)
}

func unknownCategory() string {
	return "Unknown type! Supported types: friend, group, global"
}

func (h *Handler) isAdmin(ev *event.Event) bool {
	return whitelist.MatchStrings(h.admins, ev.SenderID, "", "")
}

func (h *Handler) add(ctx context.Context, ev *event.Event, args []string) (string, string) {
	if !h.isAdmin(ev) {
		slog.Warn("Rejected admin command from non-admin", "command", cmdAdd, "sender_id", ev.SenderID, "origin", ev.Origin)
		return "Permission denied: admin only", outcomeDenied
	}
	if len(args) < 2 {
		return fmt.Sprintf("Usage: %s add_wl <type> <id>\n"+
			"Types: friend (private chats), group (group chats), global (everything)\n"+
			"Example: %[1]s add_wl friend 12345678\n"+
			"Example: %[1]s add_wl group 123456789", h.prefix), outcomeUsage
	}
	c, err := whitelist.ParseCategory(args[0])
	if err != nil {
		return unknownCategory(), outcomeUsage
	}
	id := strings.TrimSpace(args[1])

	added, err := h.lists.Add(ctx, c, id)
	if err != nil {
		return h.failure(cmdAdd, c, id, err)
	}
	if !added {
		return fmt.Sprintf("%s is already in the %s whitelist", id, c), outcomeNoop
	}
	slog.Info("Whitelist entry added by command", "category", c, "id", id, "by", ev.SenderID)
	return fmt.Sprintf("Added to the %s whitelist: %s\n"+
		"(A bare QQ or group number matches every platform's format.)", c, id), outcomeOK
}

func (h *Handler) del(ctx context.Context, ev *event.Event, args []string) (string, string) {
	if !h.isAdmin(ev) {
		slog.Warn("Rejected admin command from non-admin", "command", cmdDel, "sender_id", ev.SenderID, "origin", ev.Origin)
		return "Permission denied: admin only", outcomeDenied
	}
	if len(args) < 2 {
		return fmt.Sprintf("Usage: %s del_wl <type> <id>\n"+
			"Types: friend (private chats), group (group chats), global (everything)", h.prefix), outcomeUsage
	}
	c, err := whitelist.ParseCategory(args[0])
	if err != nil {
		return unknownCategory(), outcomeUsage
	}
	id := strings.TrimSpace(args[1])

	removed, err := h.lists.Remove(ctx, c, id)
	if err != nil {
		return h.failure(cmdDel, c, id, err)
	}
	if !removed {
		return fmt.Sprintf("%s is not in the %s whitelist", id, c), outcomeNoop
	}
	slog.Info("Whitelist entry removed by command", "category", c, "id", id, "by", ev.SenderID)
	return fmt.Sprintf("Removed from the %s whitelist: %s", c, id), outcomeOK
}

func (h *Handler) failure(cmd string, c whitelist.Category, id string, err error) (string, string) {
	if errors.Is(err, whitelist.ErrEmptyEntry) {
		return "The id must not be empty", outcomeUsage
	}
	slog.Error("Whitelist command failed", "command", cmd, "category", c, "id", id, "error", err)
	return "Failed to update the whitelist, see the logs", outcomeError
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (h *Handler) list(ctx context.Context, args []string) (string, string) {
	if len(args) == 0 {
		return h.overview(ctx)
	}
	c, err := whitelist.ParseCategory(args[0])
	if err != nil {
		return unknownCategory(), outcomeUsage
	}
	entries, err := h.lists.Entries(ctx, c)
	if err != nil {
		slog.Error("Failed to read whitelist", "category", c, "error", err)
		return "Failed to read the whitelist, see the logs", outcomeError
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== %s whitelist ===\n\n", categoryTitle(c))
	fmt.Fprintf(&b, "Whitelist (%d):\n", len(entries))
	if len(entries) == 0 {
		b.WriteString("  (empty)\n")
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "  - %s\n", e)
	}
	return b.String(), outcomeOK
}

func (h *Handler) overview(ctx context.Context) (string, string) {
	var b strings.Builder
	b.WriteString("=== Whitelists ===\n\n")

	b.WriteString("[Temporary sessions]\n")
	if h.gate.BlockTempSessions {
		b.WriteString("Control: on (all temporary sessions are blocked)\n\n")
	} else {
		b.WriteString("Control: off\n\n")
	}

	sections := []struct {
		c      whitelist.Category
		toggle *bool
	}{
		{whitelist.Friend, &h.gate.Friend.Enabled},
		{whitelist.Group, &h.gate.Group.Enabled},
		{whitelist.Global, nil},
	}
	for i, s := range sections {
		entries, err := h.lists.Entries(ctx, s.c)
		if err != nil {
			slog.Error("Failed to read whitelist", "category", s.c, "error", err)
			return "Failed to read the whitelist, see the logs", outcomeError
		}
		fmt.Fprintf(&b, "[%s]\n", categoryTitle(s.c))
		if s.toggle != nil {
			fmt.Fprintf(&b, "Whitelist switch: %s\n", onOff(*s.toggle))
		}
		fmt.Fprintf(&b, "Whitelist (%d): %s\n", len(entries), preview(entries))
		if i < len(sections)-1 {
			b.WriteString("\n")
		}
	}
	return b.String(), outcomeOK
}

func preview(entries []string) string {
	if len(entries) <= listPreview {
		return strings.Join(entries, ", ")
	}
	return strings.Join(entries[:listPreview], ", ") + " ..."
}

func categoryTitle(c whitelist.Category) string {
	switch c {
	case whitelist.Friend:
		return "Friend private chats"
	case whitelist.Group:
		return "Group chats"
	default:
		return "Global"
	}
}
