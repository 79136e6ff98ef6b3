package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/lessucettes/chatgate/internal/policy"
)

func TestCollector_Report(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, func() int { return 3 })

	c.Report(policy.FilterResult{Verdict: policy.Continue, Filter: "GlobalWhitelistFilter", Duration: time.Microsecond})
	c.Report(policy.FilterResult{Verdict: policy.Block, Filter: "FriendWhitelistFilter", Feedback: "go away"})
	c.Report(policy.FilterResult{Verdict: policy.Block, Filter: "FriendWhitelistFilter"})

	require.Equal(t, 1.0, testutil.ToFloat64(c.filterResults.WithLabelValues("GlobalWhitelistFilter", "continue")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.filterResults.WithLabelValues("FriendWhitelistFilter", "block")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.feedbackSent.WithLabelValues("FriendWhitelistFilter")))

	expected := `
# HELP chatgate_feedback_sessions Sessions currently remembered by the feedback throttle.
# TYPE chatgate_feedback_sessions gauge
chatgate_feedback_sessions 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "chatgate_feedback_sessions"))
}

func TestCollector_ObserveCommand(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, nil)

	c.ObserveCommand("add_wl", "ok")
	c.ObserveCommand("add_wl", "ok")
	c.ObserveCommand("del_wl", "denied")

	require.Equal(t, 2.0, testutil.ToFloat64(c.commands.WithLabelValues("add_wl", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.commands.WithLabelValues("del_wl", "denied")))

	n, err := testutil.GatherAndCount(reg, "chatgate_feedback_sessions")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
