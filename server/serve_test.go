// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"testing"

	"github.com/bureau-foundation/heapscope/lib/testutil"
	"github.com/bureau-foundation/heapscope/protocol"
	"github.com/bureau-foundation/heapscope/space"
	"github.com/bureau-foundation/heapscope/transport"
)

func serve(t *testing.T, s *Server) (address string, stop func()) {
	t.Helper()
	listener, err := transport.NewTCPListener("127.0.0.1:0", 0)
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, listener) }()
	stopped := false
	stop = func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		if err := testutil.RequireReceive(t, served, testTimeout, "waiting for Serve"); err != nil {
			t.Errorf("Serve = %v, want nil after cancellation", err)
		}
	}
	t.Cleanup(stop)
	return listener.Address(), stop
}

func dial(t *testing.T, address string) *transport.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	conn, err := (&transport.TCPDialer{}).DialContext(ctx, address)
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

var identity = space.FactoryFunc[*space.Space](func(decoded *space.Space) (*space.Space, error) {
	return decoded, nil
})

func TestServeSurvivesFailedHandshake(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Name: "survivor", Events: []string{"gc"}, GeneralInfo: "two spaces"})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"young", "old"} {
		if _, err := s.AddServerSpace(NewServerSpace(name, "copying", 3, "", "", name == "old")); err != nil {
			t.Fatal(err)
		}
	}
	address, _ := serve(t, s)

	// A peer that opens with something other than BOOT is dropped.
	bad := dial(t, address)
	frame := protocol.NewFrame(0)
	frame.Signal(protocol.PauseReq)
	message, _ := frame.Bytes()
	if err := bad.Send(message); err != nil {
		t.Fatal(err)
	}
	if _, err := bad.Receive(); err == nil {
		t.Fatal("server answered a connection that skipped the handshake")
	}

	good := dial(t, address)
	reply, err := protocol.ClientHandshake(good, protocol.BootRequest{})
	if err != nil {
		t.Fatalf("handshake after a failed one: %v", err)
	}
	if reply.Name != "survivor" || reply.Compression != transport.CompressionNone {
		t.Errorf("reply = %+v", reply)
	}
	header, spaces, err := protocol.ReceiveSnapshot[*space.Space](good, identity)
	if err != nil {
		t.Fatalf("ReceiveSnapshot: %v", err)
	}
	if header.SpaceCount != 2 || header.GeneralInfo != "two spaces" || len(header.Events) != 1 {
		t.Errorf("header = %+v", header)
	}
	if len(spaces) != 2 || spaces[0].Name != "young" || !spaces[1].Main {
		t.Errorf("spaces = %+v", spaces)
	}
}

func TestServeReturnsOnCancellationWhileServing(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Name: "cancelled", Events: []string{"gc"}})
	if err != nil {
		t.Fatal(err)
	}
	address, stop := serve(t, s)
	conn := dial(t, address)
	if _, err := protocol.ClientHandshake(conn, protocol.BootRequest{}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := protocol.ReceiveSnapshot[*space.Space](conn, identity); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := s.WaitConnected(ctx); err != nil {
		t.Fatal(err)
	}

	stop()
	if s.State() != Disconnected {
		t.Errorf("State after Serve returned = %s, want disconnected", s.State())
	}
}
