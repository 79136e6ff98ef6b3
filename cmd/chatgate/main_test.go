package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lessucettes/chatgate/internal/config"
	"github.com/lessucettes/chatgate/internal/event"
	"github.com/lessucettes/chatgate/internal/policy"
	"github.com/lessucettes/chatgate/internal/store"
	"github.com/lessucettes/chatgate/internal/testutils"
)

const adminID = "10001"

// --- helpers ---

func writeTempConfig(t *testing.T, dir string) string {
	t.Helper()

	text := "" +
		"[database]\n" +
		"path = " + strconvQuote(filepath.Join(dir, "badgerdb")) + "\n" +
		"\n" +
		"[gate]\n" +
		"block_temp_sessions = true\n" +
		"platform_ids = [\"qq\"]\n" +
		"\n" +
		"[gate.friend]\n" +
		"enabled = true\n" +
		"whitelist = [\"qq:FriendMessage:12345\", " + strconvQuote(adminID) + "]\n" +
		"\n" +
		"[gate.group]\n" +
		"enabled = true\n" +
		"whitelist = [\"999\"]\n" +
		"\n" +
		"[commands]\n" +
		"admins = [" + strconvQuote(adminID) + "]\n"

	p := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(p, []byte(text), 0o600))
	return p
}

func strconvQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// prepareGate installs a gate built from a temp config as the current one.
func prepareGate(t *testing.T) {
	t.Helper()
	tmp := t.TempDir()

	loaded, _, err := config.Load(writeTempConfig(t, tmp), false)
	require.NoError(t, err)

	db, err := store.NewBadgerStore(&loaded.DB)
	require.NoError(t, err)

	s, err := openShared(context.Background(), loaded, db)
	require.NoError(t, err)
	setGate(buildGate(loaded, s))

	t.Cleanup(func() {
		if old := setGate(nil); old != nil {
			_ = old.pipeline.Close()
		}
		_ = db.Close()
	})
}

func encodeInput(t *testing.T, ev *event.Event) []byte {
	t.Helper()
	b, err := json.Marshal(HostInput{Event: *ev})
	require.NoError(t, err)
	return b
}

// runProcess runs processEvents with provided lines and returns all decoded responses.
func runProcess(t *testing.T, lines [][]byte, dryRun bool) []policy.PolicyResponse {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, w := io.Pipe()
	pr, pw := io.Pipe()

	go func() {
		for _, ln := range lines {
			_, _ = w.Write(append(ln, '\n'))
		}
		w.Close()
	}()

	errCh := make(chan error, 1)
	go func() {
		err := processEvents(ctx, bufio.NewReader(r), pw, dryRun)
		_ = pw.Close()
		errCh <- err
	}()

	var out []policy.PolicyResponse
	scanner := bufio.NewScanner(pr)
	for scanner.Scan() {
		var resp policy.PolicyResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp), string(scanner.Bytes()))
		out = append(out, resp)
	}
	require.NoError(t, scanner.Err())
	require.NoError(t, <-errCh)
	return out
}

func withText(ev *event.Event, text string) *event.Event {
	ev.Text = text
	return ev
}

// --- tests ---

func TestProcessEvents_Decisions(t *testing.T) {
	prepareGate(t)

	stranger := testutils.MakeFriendMessage("1")
	testCases := []struct {
		name   string
		ev     *event.Event
		action string
		msg    string
	}{
		{"whitelisted friend", testutils.MakeFriendMessage("12345"), policy.ActionAccept, ""},
		{"stranger gets one notice", stranger, policy.ActionReject, config.Default().Feedback.FriendMessage},
		{"stranger is then silent", stranger, policy.ActionReject, ""},
		{"whitelisted group", testutils.MakeGroupMessage("1", "999"), policy.ActionAccept, ""},
		{"unlisted group", testutils.MakeGroupMessage("12345", "404"), policy.ActionReject, ""},
		{"temporary session", testutils.MakeTempMessage("2"), policy.ActionReject, config.Default().Feedback.TempSessionMessage},
		{"request", testutils.MakeRequest("3"), policy.ActionAccept, ""},
	}

	var lines [][]byte
	for _, tc := range testCases {
		lines = append(lines, encodeInput(t, tc.ev))
	}
	out := runProcess(t, lines, false)
	require.Len(t, out, len(testCases))

	for i, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.ev.ID, out[i].ID)
			require.Equal(t, tc.action, out[i].Action)
			require.Equal(t, tc.msg, out[i].Msg)
		})
	}
}

func TestProcessEvents_AdminCommands(t *testing.T) {
	prepareGate(t)

	lines := [][]byte{
		encodeInput(t, testutils.MakeFriendMessage("42")),
		encodeInput(t, withText(testutils.MakeFriendMessage(adminID), "/awb add_wl friend 42")),
		encodeInput(t, testutils.MakeFriendMessage("42")),
		// Commands from blocked senders never reach the handler.
		encodeInput(t, withText(testutils.MakeFriendMessage("7"), "/awb list")),
		// Listing is open to any sender the gate lets through.
		encodeInput(t, withText(testutils.MakeFriendMessage("12345"), "/awb list friend")),
	}
	out := runProcess(t, lines, false)
	require.Len(t, out, 5)

	require.Equal(t, policy.ActionReject, out[0].Action)
	require.Equal(t, policy.ActionReply, out[1].Action)
	require.Contains(t, out[1].Msg, "Added to the friend whitelist: 42")
	require.Equal(t, policy.ActionAccept, out[2].Action)
	require.Equal(t, policy.ActionReject, out[3].Action)
	require.Equal(t, policy.ActionReply, out[4].Action)
	require.Contains(t, out[4].Msg, "  - 42\n")
}

func TestProcessEvents_DryRunAcceptsEverything(t *testing.T) {
	prepareGate(t)

	lines := [][]byte{
		encodeInput(t, testutils.MakeFriendMessage("1")),
		encodeInput(t, testutils.MakeGroupMessage("1", "404")),
	}
	for _, resp := range runProcess(t, lines, true) {
		require.Equal(t, policy.ActionAccept, resp.Action)
		require.Empty(t, resp.Msg)
	}
}

func TestProcessEvents_DryRunKeepsCommandsBehindTheGate(t *testing.T) {
	prepareGate(t)

	lines := [][]byte{
		encodeInput(t, withText(testutils.MakeFriendMessage("7"), "/awb list")),
		encodeInput(t, withText(testutils.MakeFriendMessage("12345"), "/awb list friend")),
	}
	out := runProcess(t, lines, true)
	require.Len(t, out, 2)

	require.Equal(t, policy.ActionAccept, out[0].Action, "would-be-blocked sender is only let through")
	require.Empty(t, out[0].Msg)
	require.Equal(t, policy.ActionReply, out[1].Action)
}

func TestProcessEvents_IgnoresMalformedJSON(t *testing.T) {
	prepareGate(t)

	out := runProcess(t, [][]byte{[]byte("{this is not json}"), {}}, false)
	require.Empty(t, out)
}

func TestValidateConfiguration_ValidAndInvalid(t *testing.T) {
	tmp := t.TempDir()

	require.NoError(t, validateConfiguration(writeTempConfig(t, tmp)))

	invalidText := "" +
		"[feedback]\n" +
		"cache_ttl = \"1h\"\n"
	invalidPath := filepath.Join(tmp, "bad.toml")
	require.NoError(t, os.WriteFile(invalidPath, []byte(invalidText), 0o600))
	require.Error(t, validateConfiguration(invalidPath))

	require.Error(t, validateConfiguration(filepath.Join(tmp, "missing.toml")))
}
