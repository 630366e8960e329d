package channel_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/clustersched/messaging/channel"
	"github.com/clustersched/messaging/envelope"
	"github.com/clustersched/messaging/mserrors"
	"github.com/clustersched/messaging/reactor"
)

// listenLoopback starts a TCP listener on an ephemeral loopback port and
// returns its endpoint URI alongside the listener.
func listenLoopback(t *testing.T) (net.Listener, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	return ln, "tcp:127.0.0.1:" + port
}

func TestEstablishSendSyncRecvSyncRoundTrip(t *testing.T) {
	ln, uri := listenLoopback(t)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client := channel.New[*envelope.Bytes](channel.TCP)
	if err := client.Establish(context.Background(), uri); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	defer client.Close()

	if !client.Ready() {
		t.Fatal("expected client to be Ready after Establish")
	}

	serverConn := <-accepted
	defer serverConn.Close()
	server := channel.Wrap[*envelope.Bytes](serverConn, reactor.New())
	defer server.Close()

	msg := envelope.Bytes("hello world")
	if err := client.SendSync(&msg); err != nil {
		t.Fatalf("SendSync: %v", err)
	}

	var got envelope.Bytes
	if err := server.RecvSync(&got); err != nil {
		t.Fatalf("RecvSync: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("got %q, want %q", got, "hello world")
	}
}

func TestSendAsyncRecvSync(t *testing.T) {
	ln, uri := listenLoopback(t)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client := channel.New[*envelope.Bytes](channel.TCP)
	if err := client.Establish(context.Background(), uri); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	defer client.Close()

	serverConn := <-accepted
	defer serverConn.Close()
	server := channel.Wrap[*envelope.Bytes](serverConn, reactor.New())
	defer server.Close()

	msg := envelope.Bytes("async payload")
	done := make(chan error, 1)
	if err := client.SendAsync(&msg, func(err error, n int) {
		done <- err
	}); err != nil {
		t.Fatalf("SendAsync: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("send callback error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("send callback never fired")
	}

	var got envelope.Bytes
	if err := server.RecvSync(&got); err != nil {
		t.Fatalf("RecvSync: %v", err)
	}
	if string(got) != "async payload" {
		t.Errorf("got %q, want %q", got, "async payload")
	}
}

func TestRecvAsyncDeliversFrame(t *testing.T) {
	ln, uri := listenLoopback(t)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client := channel.New[*envelope.Bytes](channel.TCP)
	if err := client.Establish(context.Background(), uri); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	defer client.Close()

	serverConn := <-accepted
	defer serverConn.Close()
	server := channel.Wrap[*envelope.Bytes](serverConn, reactor.New())
	defer server.Close()

	var got envelope.Bytes
	done := make(chan error, 1)
	if err := server.RecvAsync(&got, func(err error, n int) {
		done <- err
	}); err != nil {
		t.Fatalf("RecvAsync: %v", err)
	}

	msg := envelope.Bytes("pushed from client")
	if err := client.SendSync(&msg); err != nil {
		t.Fatalf("SendSync: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("recv callback error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("recv callback never fired")
	}
	if string(got) != "pushed from client" {
		t.Errorf("got %q, want %q", got, "pushed from client")
	}
}

func TestRecvAsyncSecondCallWhilePendingIsUsageError(t *testing.T) {
	ln, uri := listenLoopback(t)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client := channel.New[*envelope.Bytes](channel.TCP)
	if err := client.Establish(context.Background(), uri); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	defer client.Close()

	serverConn := <-accepted
	defer serverConn.Close()
	server := channel.Wrap[*envelope.Bytes](serverConn, reactor.New())
	defer server.Close()

	var first, second envelope.Bytes
	if err := server.RecvAsync(&first, func(error, int) {}); err != nil {
		t.Fatalf("first RecvAsync: %v", err)
	}

	err := server.RecvAsync(&second, func(error, int) {})
	var merr *mserrors.Error
	if !errors.As(err, &merr) || merr.Kind != mserrors.Usage {
		t.Fatalf("expected Usage error, got %v", err)
	}
}

func TestRecvSyncOnUnestablishedChannelIsNotReady(t *testing.T) {
	client := channel.New[*envelope.Bytes](channel.TCP)
	var dst envelope.Bytes
	err := client.RecvSync(&dst)
	var merr *mserrors.Error
	if !errors.As(err, &merr) || merr.Kind != mserrors.NotReady {
		t.Fatalf("expected NotReady error, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ln, uri := listenLoopback(t)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	client := channel.New[*envelope.Bytes](channel.TCP)
	if err := client.Establish(context.Background(), uri); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
	if client.Ready() {
		t.Fatal("expected Ready() to be false after Close")
	}
}

func TestEstablishUnresolvableHostIsResolveOrConnectError(t *testing.T) {
	client := channel.New[*envelope.Bytes](channel.TCP)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := client.Establish(ctx, "tcp:this.host.does.not.exist.invalid:80")
	var merr *mserrors.Error
	if !errors.As(err, &merr) {
		t.Fatalf("expected *mserrors.Error, got %v", err)
	}
	if merr.Kind != mserrors.Resolve && merr.Kind != mserrors.Connect {
		t.Fatalf("expected Resolve or Connect kind, got %v", merr.Kind)
	}
}
