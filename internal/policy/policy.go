package policy

import (
	"context"
	"time"

	"github.com/lessucettes/chatgate/internal/event"
	"github.com/lessucettes/chatgate/internal/whitelist"
)

const (
	ActionAccept = "accept"
	ActionReject = "reject"

	// ActionReply answers an admin command and stops further processing.
	ActionReply = "reply"
)

// PolicyResponse is written back to the host for every event. A reject with
// an empty Msg is a silent block.
type PolicyResponse struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Msg    string `json:"msg,omitempty"`

	// WouldBlock marks a dry-run accept of a message the gate would have
	// blocked. It never reaches the host.
	WouldBlock bool `json:"-"`
}

// Verdict is what a single filter decided.
type Verdict int

const (
	// Continue hands the event to the next filter.
	Continue Verdict = iota
	// Allow accepts the event and skips the remaining filters.
	Allow
	// Block rejects the event and skips the remaining filters.
	Block
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Block:
		return "block"
	default:
		return "continue"
	}
}

// FilterResult is the structured return type for all filters.
type FilterResult struct {
	Verdict  Verdict
	Filter   string
	Reason   string
	Feedback string // notice for the sender of a blocked message
	Duration time.Duration
}

type Filter interface {
	Match(ctx context.Context, ev *event.Event, meta map[string]any) (FilterResult, error)
}

// NewResultFunc returns a helper function for creating FilterResult objects.
func NewResultFunc(filterName string) func(verdict Verdict, reason string, err error) (FilterResult, error) {
	start := time.Now()
	return func(verdict Verdict, reason string, err error) (FilterResult, error) {
		return FilterResult{
			Verdict:  verdict,
			Filter:   filterName,
			Reason:   reason,
			Duration: time.Since(start),
		}, err
	}
}

// WhitelistSource yields the current entries of a whitelist category.
type WhitelistSource interface {
	Entries(ctx context.Context, c whitelist.Category) ([]string, error)
}

const (
	metaSessionKind = "session_kind"
	metaDryRun      = "dry_run"
)

func sessionKindFrom(meta map[string]any) SessionKind {
	k, _ := meta[metaSessionKind].(SessionKind)
	return k
}

func dryRunFrom(meta map[string]any) bool {
	d, _ := meta[metaDryRun].(bool)
	return d
}

// identifiers extracts the matcher inputs from an event.
func identifiers(ev *event.Event) (user, group whitelist.Identifier, origin whitelist.Origin) {
	return whitelist.NewIdentifier(ev.SenderID), whitelist.NewIdentifier(ev.GroupID), whitelist.ParseOrigin(ev.Origin)
}
