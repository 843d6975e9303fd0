package server

import (
	"bytes"
	"testing"
	"time"

	"github.com/cedarkv/cedar/lib/resp"
)

func mustCommand(t *testing.T, elements ...resp.Frame) Command {
	t.Helper()
	cmd, err := FromFrame(resp.Array(elements))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return cmd
}

func TestFromFrameGet(t *testing.T) {
	cmd := mustCommand(t, resp.Bulk("GET"), resp.Bulk("foo"))
	get, ok := cmd.(*Get)
	if !ok {
		t.Fatalf("expected *Get, got %T", cmd)
	}
	if get.Key != "foo" {
		t.Errorf("expected key foo, got %q", get.Key)
	}
}

func TestFromFrameVerbIsCaseInsensitive(t *testing.T) {
	for _, verb := range []string{"get", "GET", "Get"} {
		cmd := mustCommand(t, resp.Bulk(verb), resp.Bulk("k"))
		if _, ok := cmd.(*Get); !ok {
			t.Errorf("verb %q: expected *Get, got %T", verb, cmd)
		}
	}
}

func TestFromFrameSet(t *testing.T) {
	cmd := mustCommand(t, resp.Bulk("set"), resp.Bulk("k"), resp.Bulk("v"))
	set := cmd.(*Set)
	if set.Key != "k" || !bytes.Equal(set.Value, []byte("v")) || set.TTL != 0 {
		t.Errorf("unexpected set command: %+v", set)
	}
}

func TestFromFrameSetWithExpiry(t *testing.T) {
	cmd := mustCommand(t, resp.Bulk("set"), resp.Bulk("k"), resp.Bulk("v"),
		resp.Bulk("px"), resp.Bulk("1500"))
	set := cmd.(*Set)
	if set.TTL != 1500*time.Millisecond {
		t.Errorf("expected 1500ms ttl, got %s", set.TTL)
	}

	// the EX form takes seconds
	cmd = mustCommand(t, resp.Bulk("set"), resp.Bulk("k"), resp.Bulk("v"),
		resp.Bulk("ex"), resp.Integer(2))
	set = cmd.(*Set)
	if set.TTL != 2*time.Second {
		t.Errorf("expected 2s ttl, got %s", set.TTL)
	}
}

func TestFromFrameSetRejectsBadExpiry(t *testing.T) {
	cases := [][]resp.Frame{
		{resp.Bulk("set"), resp.Bulk("k"), resp.Bulk("v"), resp.Bulk("px"), resp.Bulk("0")},
		{resp.Bulk("set"), resp.Bulk("k"), resp.Bulk("v"), resp.Bulk("px"), resp.Bulk("-100")},
		{resp.Bulk("set"), resp.Bulk("k"), resp.Bulk("v"), resp.Bulk("px"), resp.Bulk("soon")},
		{resp.Bulk("set"), resp.Bulk("k"), resp.Bulk("v"), resp.Bulk("whenever"), resp.Bulk("10")},
		{resp.Bulk("set"), resp.Bulk("k")},
	}
	for i, elements := range cases {
		if _, err := FromFrame(resp.Array(elements)); err == nil {
			t.Errorf("case %d: expected parse error", i)
		}
	}
}

func TestFromFrameSubscribe(t *testing.T) {
	cmd := mustCommand(t, resp.Bulk("subscribe"), resp.Bulk("a"), resp.Bulk("b"))
	sub := cmd.(*Subscribe)
	if len(sub.Channels) != 2 || sub.Channels[0] != "a" || sub.Channels[1] != "b" {
		t.Errorf("unexpected channels: %v", sub.Channels)
	}

	if _, err := FromFrame(resp.Array{resp.Bulk("subscribe")}); err == nil {
		t.Error("expected error for subscribe without channels")
	}
}

func TestFromFrameUnsubscribeAllowsNoChannels(t *testing.T) {
	cmd := mustCommand(t, resp.Bulk("unsubscribe"))
	unsub := cmd.(*Unsubscribe)
	if len(unsub.Channels) != 0 {
		t.Errorf("expected no channels, got %v", unsub.Channels)
	}
}

func TestFromFrameUnknownVerb(t *testing.T) {
	cmd := mustCommand(t, resp.Bulk("flushall"))
	unknown, ok := cmd.(*Unknown)
	if !ok {
		t.Fatalf("expected *Unknown, got %T", cmd)
	}
	if unknown.Verb != "flushall" {
		t.Errorf("expected verb flushall, got %q", unknown.Verb)
	}
}

func TestFromFramePing(t *testing.T) {
	cmd := mustCommand(t, resp.Bulk("ping"))
	if ping := cmd.(*Ping); ping.Msg != nil {
		t.Errorf("expected no message, got %q", ping.Msg)
	}

	cmd = mustCommand(t, resp.Bulk("ping"), resp.Bulk("hey"))
	if ping := cmd.(*Ping); !bytes.Equal(ping.Msg, []byte("hey")) {
		t.Errorf("expected message hey, got %q", ping.Msg)
	}
}

func TestFromFrameRejectsNonArray(t *testing.T) {
	if _, err := FromFrame(resp.Simple("GET")); err == nil {
		t.Error("expected error for non-array request")
	}
}

func TestFromFrameRejectsExtraArgs(t *testing.T) {
	if _, err := FromFrame(resp.Array{resp.Bulk("get"), resp.Bulk("k"), resp.Bulk("extra")}); err == nil {
		t.Error("expected error for extra get argument")
	}
}
