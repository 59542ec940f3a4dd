package abyss

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	uuid "github.com/satori/go.uuid"
)

// bufSize is the fixed size of a connection's reused read buffer. One byte
// is always reserved for a trailing NUL sentinel so buffer scans can treat
// the contents as a bounded C-style string, even though Go slices already
// carry their own length.
const bufSize = 8192

// Mode selects how a Connection's job runs.
type Mode int

const (
	// Foreground runs the job on the caller's own goroutine.
	Foreground Mode = iota
	// Background spawns a dedicated goroutine to run the job.
	Background
)

// JobFunc does the actual HTTP transaction work for a connection.
type JobFunc func(*Connection)

// DoneFunc runs exactly once, after JobFunc returns.
type DoneFunc func(*Connection)

// Connection holds per-socket state: the reused read buffer, byte counters,
// and the job/done callbacks that drive one HTTP transaction.
type Connection struct {
	ID     string
	socket Socket
	PeerIP string

	buffer  [bufSize]byte
	bufSz   int
	bufPos  int
	inBytes int64
	outByt  int64

	job  JobFunc
	done DoneFunc

	hasOwnThread bool
	thread       *Thread

	finished int32 // atomic bool
	trace    bool
}

// traceEnabled reads ABYSS_TRACE_CONN once: it is process-wide configuration
// captured into each Connection at construction, not re-read per operation.
func traceEnabled() bool {
	return os.Getenv("ABYSS_TRACE_CONN") != ""
}

// ConnCreate builds a Connection around an already-accepted socket. The
// peer IP is resolved immediately; failure to do so is itself a connection
// creation failure.
func ConnCreate(socket Socket, job JobFunc, done DoneFunc, mode Mode) (*Connection, error) {
	ip, _, ok := socket.PeerName()
	if !ok {
		return nil, fmt.Errorf("abyss: failed to get peer name from socket")
	}
	c := &Connection{
		ID:     uuid.NewV4().String(),
		socket: socket,
		PeerIP: ip,
		job:    job,
		done:   done,
		trace:  traceEnabled(),
	}
	if mode == Background {
		c.hasOwnThread = true
		c.thread = ThreadCreate(func() { c.job(c) }, func() { c.connDone() })
	}
	return c, nil
}

// ReadInit compacts the buffer, discarding already-consumed bytes and
// resetting the per-read byte counters.
func (c *Connection) ReadInit() {
	if c.bufSz > c.bufPos {
		copy(c.buffer[0:], c.buffer[c.bufPos:c.bufSz])
		c.bufSz -= c.bufPos
	} else {
		c.bufSz = 0
	}
	c.bufPos = 0
	c.inBytes = 0
	c.outByt = 0
}

func (c *Connection) traceBuffer(label string, p []byte) {
	if !c.trace {
		return
	}
	fmt.Fprintf(os.Stderr, "%s [conn %s]:\n%s\n", label, c.ID, string(p))
}

// ConnRead reads some bytes into the connection buffer from the socket. It
// fails cleanly — buffer state unchanged — if the deadline passes before any
// data is available.
func (c *Connection) ConnRead(timeoutSec int) bool {
	deadline := time.Now().Add(time.Duration(timeoutSec) * time.Second)
	timeLeft := time.Until(deadline)
	if timeLeft <= 0 {
		return false
	}
	rc, err := c.socket.Wait(true, false, int(timeLeft/time.Millisecond))
	if err != nil || rc != WaitReady {
		return false
	}
	avail, err := c.socket.AvailableReadBytes()
	if err != nil || avail == 0 {
		return false
	}
	space := uint32(bufSize) - uint32(c.bufSz) - 1
	toRead := avail
	if toRead > space {
		toRead = space
	}
	if toRead == 0 {
		return false
	}
	n, err := c.socket.Read(c.buffer[c.bufSz : c.bufSz+int(toRead)])
	if err != nil || n <= 0 {
		return false
	}
	c.traceBuffer("READ FROM SOCKET", c.buffer[c.bufSz:c.bufSz+n])
	c.inBytes += int64(n)
	c.bufSz += n
	c.buffer[c.bufSz] = 0
	return true
}

// ConnWrite writes buf to the socket.
func (c *Connection) ConnWrite(buf []byte) bool {
	n, failed := c.socket.Write(buf)
	if failed {
		c.traceBuffer("FAILED TO WRITE TO SOCKET", buf)
		return false
	}
	c.traceBuffer("WROTE TO SOCKET", buf[:n])
	c.outByt += int64(n)
	return true
}

// ConnWriteFromFile streams [start,last] of file to the connection in
// chunks of at most len(scratch) bytes, sleeping between chunks to honor
// rateBps when it is positive.
func (c *Connection) ConnWriteFromFile(file *os.File, start, last int64, scratch []byte, rateBps int) bool {
	readChunkSize := len(scratch)
	waitMs := 0
	if rateBps > 0 {
		if readChunkSize > rateBps {
			readChunkSize = rateBps
		}
		waitMs = (1000 * len(scratch)) / rateBps
	}
	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return false
	}
	total := last - start + 1
	var written int64
	for written < total {
		left := total - written
		toRead := int64(readChunkSize)
		if toRead > left {
			toRead = left
		}
		n, err := file.Read(scratch[:toRead])
		if n > 0 {
			if !c.ConnWrite(scratch[:n]) {
				return false
			}
			written += int64(n)
		}
		if err != nil {
			break
		}
		if waitMs > 0 {
			time.Sleep(time.Duration(waitMs) * time.Millisecond)
		}
	}
	return written == total
}

func (c *Connection) connDone() {
	atomic.StoreInt32(&c.finished, 1)
	if c.done != nil {
		c.done(c)
	}
}

// Process runs the connection's job, in the background or foreground per
// the mode given to ConnCreate, and guarantees Done runs exactly once
// afterward.
func (c *Connection) Process() bool {
	if c.hasOwnThread {
		return c.thread.ThreadRun()
	}
	c.job(c)
	c.connDone()
	return true
}

// WaitAndRelease blocks until a background worker has finished, then
// closes the connection's socket. No other memory needs freeing explicitly
// in Go; the call preserves the create/process/wait-and-release lifecycle
// of a connection's lifetime.
func (c *Connection) WaitAndRelease() {
	if c.hasOwnThread {
		c.thread.ThreadWaitAndRelease()
	}
	_ = c.socket.Close()
}

// Kill marks the connection finished and asks its worker to stop on a
// best-effort basis.
func (c *Connection) Kill() bool {
	atomic.StoreInt32(&c.finished, 1)
	if c.hasOwnThread {
		return c.thread.ThreadKill()
	}
	return true
}

// Finished reports whether the connection has completed its job.
func (c *Connection) Finished() bool {
	return atomic.LoadInt32(&c.finished) != 0
}

// InBytes and OutBytes report the counters ReadInit last zeroed.
func (c *Connection) InBytes() int64  { return c.inBytes }
func (c *Connection) OutBytes() int64 { return c.outByt }
