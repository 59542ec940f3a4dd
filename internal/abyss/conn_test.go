package abyss

import (
	"net"
	"testing"
)

func TestConnWriteThenPeerReads(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	socket := NewNetConnSocket(server)
	c, err := ConnCreate(socket, func(*Connection) {}, nil, Foreground)
	if err != nil {
		t.Fatalf("ConnCreate: %v", err)
	}

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 5)
		n, _ := client.Read(buf)
		done <- buf[:n]
	}()

	if ok := c.ConnWrite([]byte("hello")); !ok {
		t.Fatalf("ConnWrite failed")
	}
	got := <-done
	if string(got) != "hello" {
		t.Fatalf("peer read %q, want %q", got, "hello")
	}
	if c.OutBytes() != 5 {
		t.Fatalf("OutBytes = %d, want 5", c.OutBytes())
	}
}

func TestProcessRunsJobAndDoneExactlyOnce(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	socket := NewNetConnSocket(server)

	var jobRuns, doneRuns int
	job := func(c *Connection) { jobRuns++ }
	done := func(c *Connection) { doneRuns++ }

	c, err := ConnCreate(socket, job, done, Foreground)
	if err != nil {
		t.Fatalf("ConnCreate: %v", err)
	}
	c.Process()

	if jobRuns != 1 || doneRuns != 1 {
		t.Fatalf("jobRuns=%d doneRuns=%d, want 1,1", jobRuns, doneRuns)
	}
	if !c.Finished() {
		t.Fatalf("expected Finished() true after Process")
	}
}

func TestProcessBackgroundModeWaitsForDone(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	socket := NewNetConnSocket(server)

	doneCh := make(chan struct{})
	job := func(c *Connection) {}
	done := func(c *Connection) { close(doneCh) }

	c, err := ConnCreate(socket, job, done, Background)
	if err != nil {
		t.Fatalf("ConnCreate: %v", err)
	}
	c.Process()
	c.WaitAndRelease()

	select {
	case <-doneCh:
	default:
		t.Fatalf("done callback did not run before WaitAndRelease returned")
	}
}

func TestReadInitCompactsBuffer(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	socket := NewNetConnSocket(server)
	c, err := ConnCreate(socket, func(*Connection) {}, nil, Foreground)
	if err != nil {
		t.Fatalf("ConnCreate: %v", err)
	}

	go client.Write([]byte("abc"))
	if !c.ConnRead(2) {
		t.Fatalf("ConnRead failed")
	}
	c.bufPos = 3
	c.ReadInit()
	if c.bufSz != 0 || c.bufPos != 0 {
		t.Fatalf("ReadInit left bufSz=%d bufPos=%d, want 0,0", c.bufSz, c.bufPos)
	}
	if c.InBytes() != 0 || c.OutBytes() != 0 {
		t.Fatalf("ReadInit did not reset byte counters")
	}
}
