package policy

import (
	"context"

	"github.com/lessucettes/chatgate/internal/config"
	"github.com/lessucettes/chatgate/internal/event"
)

const (
	requestFilterName     = "RequestFilter"
	tempSessionFilterName = "TempSessionFilter"
)

// RequestFilter lets friend-add and group-invite requests through so the
// host's own request handling still sees them.
type RequestFilter struct{}

func NewRequestFilter() *RequestFilter {
	return &RequestFilter{}
}

func (f *RequestFilter) Match(_ context.Context, _ *event.Event, meta map[string]any) (FilterResult, error) {
	newResult := NewResultFunc(requestFilterName)
	if sessionKindFrom(meta) != SessionRequest {
		return newResult(Continue, "not_a_request", nil)
	}
	return newResult(Allow, "request_event", nil)
}

// TempSessionFilter blocks messages from strangers reaching the bot through
// a shared group, unless temporary-session control is off.
type TempSessionFilter struct {
	gate     *config.GateConfig
	feedback *config.FeedbackConfig
	throttle *FeedbackThrottle
}

func NewTempSessionFilter(gate *config.GateConfig, feedback *config.FeedbackConfig, throttle *FeedbackThrottle) *TempSessionFilter {
	return &TempSessionFilter{gate: gate, feedback: feedback, throttle: throttle}
}

func (f *TempSessionFilter) Match(_ context.Context, ev *event.Event, meta map[string]any) (FilterResult, error) {
	newResult := NewResultFunc(tempSessionFilterName)
	if sessionKindFrom(meta) != SessionTemporary {
		return newResult(Continue, "not_a_temp_session", nil)
	}
	if !f.gate.BlockTempSessions {
		return newResult(Allow, "temp_session_control_disabled", nil)
	}
	res, err := newResult(Block, "temp_session_blocked", nil)
	res.Feedback = feedbackFor(f.throttle, ev, meta, f.feedback.TempSessionMessage)
	return res, err
}

// feedbackFor returns msg when the throttle lets a notice out for ev, "" when
// the block must stay silent. Dry runs look without recording.
func feedbackFor(throttle *FeedbackThrottle, ev *event.Event, meta map[string]any, msg string) string {
	if msg == "" || throttle == nil {
		return ""
	}
	var send bool
	if dryRunFrom(meta) {
		send = throttle.ShouldSendFeedback(ev)
	} else {
		send = throttle.Acquire(ev)
	}
	if !send {
		return ""
	}
	return msg
}
