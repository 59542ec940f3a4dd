package abyss

import (
	"net"
	"testing"
	"time"
)

func newTestConn(t *testing.T, fill string) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	socket := NewNetConnSocket(server)
	c, err := ConnCreate(socket, func(*Connection) {}, nil, Foreground)
	if err != nil {
		t.Fatalf("ConnCreate: %v", err)
	}
	go func() {
		client.Write([]byte(fill))
	}()
	return c, client
}

// TestReadHeaderFoldsContinuationWithTwoSpaces checks that a header value
// split across a continuation line that begins with whitespace is joined
// with two spaces, not one — the CR before the fold and the LF itself each
// become a single space byte.
func TestReadHeaderFoldsContinuationWithTwoSpaces(t *testing.T) {
	c, client := newTestConn(t, "X-Long: first\r\n second\r\n\r\n")
	defer client.Close()

	header, ok := c.ReadHeader(2)
	if !ok {
		t.Fatalf("ReadHeader failed")
	}
	want := "X-Long: first  second"
	if header != want {
		t.Fatalf("header = %q, want %q", header, want)
	}

	blank, ok := c.ReadHeader(2)
	if !ok || blank != "" {
		t.Fatalf("expected blank terminator line, got (%q, %v)", blank, ok)
	}
}

func TestReadHeaderSimpleLine(t *testing.T) {
	c, client := newTestConn(t, "Content-Length: 42\r\n\r\n")
	defer client.Close()

	header, ok := c.ReadHeader(2)
	if !ok {
		t.Fatalf("ReadHeader failed")
	}
	if header != "Content-Length: 42" {
		t.Fatalf("header = %q", header)
	}
}

func TestReadHeaderTimesOutWithoutBlankLine(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	socket := NewNetConnSocket(server)
	c, err := ConnCreate(socket, func(*Connection) {}, nil, Foreground)
	if err != nil {
		t.Fatalf("ConnCreate: %v", err)
	}

	start := time.Now()
	_, ok := c.ReadHeader(1)
	if ok {
		t.Fatalf("expected timeout, got ok")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("ReadHeader took too long to time out: %v", elapsed)
	}
}
