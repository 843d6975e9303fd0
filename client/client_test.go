package client

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/cedarkv/cedar/common"
	"github.com/cedarkv/cedar/lib/db"
	"github.com/cedarkv/cedar/server"
)

func startServer(t *testing.T) string {
	t.Helper()

	database := db.New(filepath.Join(t.TempDir(), "dump.rdb"))
	srv := server.New(common.ServerConfig{DumpPath: database.DumpPath()}, database)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = srv.Serve(ln)
	}()

	t.Cleanup(func() {
		srv.Shutdown()
		select {
		case <-served:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down in time")
		}
	})

	return ln.Addr().String()
}

func connect(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Connect(addr)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientPing(t *testing.T) {
	addr := startServer(t)
	c := connect(t, addr)

	reply, err := c.Ping(nil)
	if err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if !bytes.Equal(reply, []byte("PONG")) {
		t.Errorf("expected PONG, got %s", reply)
	}

	reply, err = c.Ping([]byte("hello"))
	if err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if !bytes.Equal(reply, []byte("hello")) {
		t.Errorf("expected echo, got %s", reply)
	}
}

func TestClientSetGetDel(t *testing.T) {
	addr := startServer(t)
	c := connect(t, addr)

	if err := c.Set("k", []byte("v")); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	value, ok, err := c.Get("k")
	if err != nil || !ok || !bytes.Equal(value, []byte("v")) {
		t.Errorf("expected v, got %s (%t, %v)", value, ok, err)
	}

	existed, err := c.Del("k")
	if err != nil || !existed {
		t.Errorf("expected delete to report an entry (%v)", err)
	}

	if _, ok, _ := c.Get("k"); ok {
		t.Error("expected key gone after delete")
	}
}

func TestClientSetWithTTL(t *testing.T) {
	addr := startServer(t)
	c := connect(t, addr)

	if err := c.SetWithTTL("x", []byte("y"), 100*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	if _, ok, _ := c.Get("x"); !ok {
		t.Error("expected key to exist before expiry")
	}

	time.Sleep(200 * time.Millisecond)

	if _, ok, _ := c.Get("x"); ok {
		t.Error("expected key to expire")
	}
}

func TestClientPubSub(t *testing.T) {
	addr := startServer(t)

	subClient := connect(t, addr)
	pubClient := connect(t, addr)

	sub, err := subClient.Subscribe("news")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	n, err := pubClient.Publish("news", []byte("flash"))
	if err != nil || n != 1 {
		t.Fatalf("expected 1 receiver, got %d (%v)", n, err)
	}

	msg, err := sub.NextMessage()
	if err != nil {
		t.Fatalf("next message failed: %v", err)
	}
	if msg.Channel != "news" || !bytes.Equal(msg.Payload, []byte("flash")) {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestClientUnsubscribe(t *testing.T) {
	addr := startServer(t)

	subClient := connect(t, addr)
	pubClient := connect(t, addr)

	sub, err := subClient.Subscribe("a", "b")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if len(sub.Channels()) != 2 {
		t.Errorf("expected 2 channels, got %v", sub.Channels())
	}

	if err := sub.Unsubscribe("a"); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	if len(sub.Channels()) != 1 {
		t.Errorf("expected 1 channel, got %v", sub.Channels())
	}

	// only b remains subscribed
	if n, _ := pubClient.Publish("a", []byte("m")); n != 0 {
		t.Errorf("expected 0 receivers on a, got %d", n)
	}
	if n, _ := pubClient.Publish("b", []byte("m")); n != 1 {
		t.Errorf("expected 1 receiver on b, got %d", n)
	}
}

func TestClientSave(t *testing.T) {
	addr := startServer(t)
	c := connect(t, addr)

	if err := c.Set("k", []byte("v")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := c.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}
}

func TestClientPool(t *testing.T) {
	addr := startServer(t)
	ctx := context.Background()

	connections := NewPool(ctx, addr, 2)
	defer connections.Close(ctx)

	a, err := connections.Get(ctx)
	if err != nil {
		t.Fatalf("borrow failed: %v", err)
	}
	if err := a.Set("pooled", []byte("yes")); err != nil {
		t.Fatalf("set over pooled connection failed: %v", err)
	}
	if err := connections.Put(ctx, a); err != nil {
		t.Fatalf("return failed: %v", err)
	}

	b, err := connections.Get(ctx)
	if err != nil {
		t.Fatalf("borrow failed: %v", err)
	}
	defer connections.Put(ctx, b)

	value, ok, err := b.Get("pooled")
	if err != nil || !ok || !bytes.Equal(value, []byte("yes")) {
		t.Errorf("expected yes, got %s (%t, %v)", value, ok, err)
	}
}
