package abyss

import "time"

// ReadHeader reads one HTTP header field, folding any continuation lines
// that begin with space or tab into the returned string. An empty returned
// string with ok=true signals the blank line that ends the header block;
// ok=false signals the deadline was exceeded or the connection failed while
// more data was needed.
//
// A folded continuation joins with two spaces: the CR before a folded LF
// and the LF itself are each overwritten with a single space, so two
// consecutive lines produce two spaces between their joined text.
func (c *Connection) ReadHeader(timeoutSec int) (string, bool) {
	deadline := time.Now().Add(time.Duration(timeoutSec) * time.Second)
	p := c.bufPos
	headerStart := p

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", false
		}
		if p >= c.bufSz {
			secs := int(remaining / time.Second)
			if secs < 1 {
				secs = 1
			}
			if !c.ConnRead(secs) {
				return "", false
			}
			continue
		}

		lf := -1
		for i := p; i < c.bufSz; i++ {
			if c.buffer[i] == '\n' {
				lf = i
				break
			}
		}
		if lf == -1 {
			p = c.bufSz
			continue
		}

		lineEmpty := lf == p || (lf == p+1 && c.buffer[p] == '\r')
		if lineEmpty {
			c.bufPos = lf + 1
			return "", true
		}

		if lf+1 >= c.bufSz {
			// We can't yet see whether the next line folds; ask for more
			// data before deciding.
			p = c.bufSz
			continue
		}

		next := c.buffer[lf+1]
		if next == ' ' || next == '\t' {
			if lf > 0 && c.buffer[lf-1] == '\r' {
				c.buffer[lf-1] = ' '
			}
			c.buffer[lf] = ' '
			p = lf + 1
			continue
		}

		terminator := lf
		if lf > headerStart && c.buffer[lf-1] == '\r' {
			terminator = lf - 1
		}
		header := string(c.buffer[headerStart:terminator])
		c.bufPos = lf + 1
		return header, true
	}
}
