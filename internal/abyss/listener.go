package abyss

import (
	"log"
	"net"
	"strconv"
	"strings"
)

// ProcessCallFunc routes a decoded request to its method handler; it alone
// knows methods, and the connection never inspects bodies beyond finding
// Content-Length. It is invoked with the request body and the peer's
// identifying metadata, and returns the full response body bytes.
type ProcessCallFunc func(peerIP string, body []byte) []byte

// Server drives an Abyss-style accept loop: one Connection per accepted
// socket, folded-header reading, and dispatch to a ProcessCallFunc.
type Server struct {
	ProcessCall   ProcessCallFunc
	ReadTimeoutS  int
	ConnectionMod Mode
}

// NewServer returns a Server with a generous per-read timeout and one
// background goroutine per connection so a slow client cannot stall the
// accept loop.
func NewServer(processCall ProcessCallFunc) *Server {
	return &Server{
		ProcessCall:   processCall,
		ReadTimeoutS:  30,
		ConnectionMod: Background,
	}
}

// Serve accepts connections from ln until it returns an error (typically
// because ln was closed).
func (s *Server) Serve(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		socket := NewNetConnSocket(nc)
		conn, err := ConnCreate(socket, s.handleOne, nil, s.ConnectionMod)
		if err != nil {
			log.Printf("[ERROR] abyss: %v", err)
			_ = nc.Close()
			continue
		}
		conn.Process()
	}
}

// handleOne is the JobFunc every accepted Connection runs: read headers,
// find Content-Length, read the body, dispatch, write the response, then
// close the connection's socket. It is one fixed handler rather than a
// general multi-route dispatcher, since the registry already does all the
// method-level routing a single XML-RPC endpoint needs.
func (s *Server) handleOne(c *Connection) {
	// WaitAndRelease would wait for this very job to finish when the
	// connection runs in Background mode, so only the socket is closed here.
	defer c.socket.Close()

	c.ReadInit()
	contentLength := -1
	for {
		header, ok := c.ReadHeader(s.ReadTimeoutS)
		if !ok {
			return
		}
		if header == "" {
			break
		}
		if n, ok := parseContentLength(header); ok {
			contentLength = n
		}
	}
	if contentLength < 0 {
		writeError(c, 411, "Length Required")
		return
	}

	body := make([]byte, 0, contentLength)
	body = append(body, c.bufferedBody()...)
	for len(body) < contentLength {
		if !c.ConnRead(s.ReadTimeoutS) {
			return
		}
		body = append(body, c.bufferedBody()...)
	}
	body = body[:contentLength]

	resp := s.ProcessCall(c.PeerIP, body)
	writeResponse(c, resp)
}

// bufferedBody drains and returns whatever unconsumed bytes already sit in
// the connection buffer (body bytes that arrived in the same read as the
// trailing header line), advancing bufPos past them.
func (c *Connection) bufferedBody() []byte {
	if c.bufPos >= c.bufSz {
		return nil
	}
	p := c.buffer[c.bufPos:c.bufSz]
	out := make([]byte, len(p))
	copy(out, p)
	c.bufPos = c.bufSz
	return out
}

func parseContentLength(header string) (int, bool) {
	const prefix = "content-length:"
	lower := strings.ToLower(header)
	if !strings.HasPrefix(lower, prefix) {
		return 0, false
	}
	v := strings.TrimSpace(header[len(prefix):])
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func writeResponse(c *Connection, body []byte) {
	var head strings.Builder
	head.WriteString("HTTP/1.0 200 OK\r\n")
	head.WriteString("Content-Type: text/xml\r\n")
	head.WriteString("Content-Length: ")
	head.WriteString(strconv.Itoa(len(body)))
	head.WriteString("\r\n\r\n")
	c.ConnWrite([]byte(head.String()))
	c.ConnWrite(body)
}

func writeError(c *Connection, status int, reason string) {
	body := reason
	head := "HTTP/1.0 " + strconv.Itoa(status) + " " + reason + "\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n"
	c.ConnWrite([]byte(head))
	c.ConnWrite([]byte(body))
}
