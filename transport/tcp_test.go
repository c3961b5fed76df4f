// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

// connectedPair returns both ends of a loopback TCP connection.
func connectedPair(t *testing.T, maxLength int) (server, client *Conn) {
	t.Helper()
	listener, err := NewTCPListener("127.0.0.1:0", maxLength)
	if err != nil {
		t.Fatalf("NewTCPListener() error: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	accepted := make(chan *Conn, 1)
	acceptErr := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- conn
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dialer := &TCPDialer{Timeout: 5 * time.Second, MaxMessageLength: maxLength}
	client, err = dialer.DialContext(ctx, listener.Address())
	if err != nil {
		t.Fatalf("DialContext() error: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("Accept() error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Accept")
	}
	t.Cleanup(func() { server.Close() })
	return server, client
}

func TestTCPListener_Address(t *testing.T) {
	listener, err := NewTCPListener("127.0.0.1:0", 0)
	if err != nil {
		t.Fatalf("NewTCPListener() error: %v", err)
	}
	defer listener.Close()

	if address := listener.Address(); !strings.Contains(address, ":") {
		t.Errorf("Address() = %q, expected host:port format", address)
	}
}

func TestTCPListener_AcceptAfterClose(t *testing.T) {
	listener, err := NewTCPListener("127.0.0.1:0", 0)
	if err != nil {
		t.Fatalf("NewTCPListener() error: %v", err)
	}
	listener.Close()
	if _, err := listener.Accept(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Accept() after Close = %v, want net.ErrClosed", err)
	}
}

func TestConnRoundTrip(t *testing.T) {
	for _, codec := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			server, client := connectedPair(t, 0)
			if err := server.SetCompression(codec); err != nil {
				t.Fatal(err)
			}
			if err := client.SetCompression(codec); err != nil {
				t.Fatal(err)
			}

			messages := [][]byte{
				[]byte("short"),
				{},
				bytes.Repeat([]byte("tile data "), 10000),
				{0x00, 0xff, 0x10},
			}
			go func() {
				for _, message := range messages {
					if err := client.Send(message); err != nil {
						t.Errorf("Send() error: %v", err)
						return
					}
				}
			}()
			for index, want := range messages {
				got, err := server.Receive()
				if err != nil {
					t.Fatalf("message %d: Receive() error: %v", index, err)
				}
				if !bytes.Equal(got, want) {
					t.Errorf("message %d: got %d bytes, want %d", index, len(got), len(want))
				}
			}
		})
	}
}

func TestConnPeerDeath(t *testing.T) {
	server, client := connectedPair(t, 0)
	if server.HasTerminated() {
		t.Fatal("HasTerminated() = true before any failure")
	}
	client.Close()

	_, err := server.Receive()
	if !errors.Is(err, ErrTerminated) {
		t.Fatalf("Receive() after peer close = %v, want ErrTerminated", err)
	}
	if !server.HasTerminated() {
		t.Error("HasTerminated() = false after failed Receive")
	}
	if err := server.Send([]byte("late")); !errors.Is(err, ErrTerminated) {
		t.Errorf("Send() after termination = %v, want ErrTerminated", err)
	}
}

func TestConnMessageLimit(t *testing.T) {
	server, client := connectedPair(t, 16)

	if err := client.Send(make([]byte, 17)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("Send() oversize = %v, want ErrMessageTooLarge", err)
	}
	if client.HasTerminated() {
		t.Error("oversize Send terminated the connection")
	}

	// A peer with a larger limit sends something this side refuses.
	oversize := NewConn(rawClient(t, client), 1024)
	if err := oversize.Send(make([]byte, 100)); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if _, err := server.Receive(); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("Receive() oversize = %v, want ErrMessageTooLarge", err)
	}
	if !server.HasTerminated() {
		t.Error("oversize Receive left the connection alive")
	}
}

// rawClient exposes the net.Conn under a Conn so a test can write with
// a different limit.
func rawClient(t *testing.T, conn *Conn) net.Conn {
	t.Helper()
	return conn.conn
}

func TestParseCompression(t *testing.T) {
	t.Parallel()
	for _, codec := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompression(codec.String())
		if err != nil || parsed != codec {
			t.Errorf("ParseCompression(%q) = %v, %v", codec.String(), parsed, err)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("ParseCompression(gzip) succeeded")
	}
}

func TestBodyIncompressibleFallsBack(t *testing.T) {
	t.Parallel()
	message := []byte{0x8f, 0x11, 0x3a}
	body, err := encodeBody(message, CompressionZstd)
	if err != nil {
		t.Fatalf("encodeBody() error: %v", err)
	}
	if Compression(body[0]) != CompressionNone {
		t.Errorf("tag = %v, want none for incompressible input", Compression(body[0]))
	}
	decoded, err := decodeBody(body, 1024)
	if err != nil {
		t.Fatalf("decodeBody() error: %v", err)
	}
	if !bytes.Equal(decoded, message) {
		t.Errorf("decoded = %x, want %x", decoded, message)
	}
}

func TestBodyZstdBoundedByDeclaredSize(t *testing.T) {
	t.Parallel()

	message := bytes.Repeat([]byte("heap"), 16<<10)
	body, err := encodeBody(message, CompressionZstd)
	if err != nil {
		t.Fatalf("encodeBody() error: %v", err)
	}
	if Compression(body[0]) != CompressionZstd {
		t.Fatalf("tag = %v, want zstd for repetitive input", Compression(body[0]))
	}
	if decoded, err := decodeBody(body, len(message)); err != nil || !bytes.Equal(decoded, message) {
		t.Fatalf("decodeBody() = %d bytes, %v; want the original %d bytes", len(decoded), err, len(message))
	}

	// A peer understating the size must not make the receiver inflate
	// the whole frame.
	tests := []struct {
		name     string
		declared uint32
	}{
		{name: "declared smaller", declared: 100},
		{name: "declared zero", declared: 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			forged := bytes.Clone(body)
			binary.BigEndian.PutUint32(forged[1:5], test.declared)
			decoded, err := decodeBody(forged, len(message))
			if !errors.Is(err, zstd.ErrDecoderSizeExceeded) {
				t.Errorf("decodeBody() = %d bytes, %v; want ErrDecoderSizeExceeded", len(decoded), err)
			}
		})
	}
}

func TestBodyZstdWithoutContentSize(t *testing.T) {
	t.Parallel()

	// Streaming encoders omit the frame content size, so only the
	// destination capacity bounds the output.
	message := bytes.Repeat([]byte{0}, 256<<10)
	var frame bytes.Buffer
	writer, err := zstd.NewWriter(&frame)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	if _, err := writer.Write(message); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing frame: %v", err)
	}

	body := make([]byte, compressedHeaderLength+frame.Len())
	body[0] = byte(CompressionZstd)
	binary.BigEndian.PutUint32(body[1:5], 1024)
	copy(body[compressedHeaderLength:], frame.Bytes())
	decoded, err := decodeBody(body, len(message))
	if err == nil {
		t.Fatalf("decodeBody() = %d bytes, want an error", len(decoded))
	}
	if len(decoded) > 1024 {
		t.Errorf("decodeBody() returned %d bytes past the declared 1024", len(decoded))
	}
}
