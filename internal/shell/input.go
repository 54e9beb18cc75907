package shell

import (
	"io"
	"slices"
	"sync"
)

// lineGate feeds the line editor from the terminal one line at a time. The
// editor reads in a goroutine of its own; without the gate it would keep
// reading the terminal while a foreground job owns it. The gate closes by
// itself after a line terminator or an interrupt and the shell opens it again
// before the next prompt.
type lineGate struct {
	src io.Reader

	mx     sync.Mutex
	cond   *sync.Cond
	open   bool
	closed bool
	buf    []byte
	err    error
}

func newLineGate(src io.Reader) *lineGate {
	g := &lineGate{src: src}
	g.cond = sync.NewCond(&g.mx)
	return g
}

// Open lets the next line through.
func (g *lineGate) Open() {
	g.mx.Lock()
	defer g.mx.Unlock()
	g.open = true
	g.cond.Broadcast()
}

func (g *lineGate) Read(p []byte) (int, error) {
	g.mx.Lock()
	defer g.mx.Unlock()
	for !g.open && !g.closed {
		g.cond.Wait()
	}
	if g.closed {
		return 0, io.EOF
	}

	if len(g.buf) == 0 && g.err == nil {
		tmp := make([]byte, max(len(p), 64))
		g.mx.Unlock()
		n, err := g.src.Read(tmp)
		g.mx.Lock()
		g.buf = append(g.buf, tmp[:n]...)
		g.err = err
	}
	if len(g.buf) == 0 {
		err := g.err
		g.err = nil
		return 0, err
	}

	n := len(g.buf)
	if i := slices.IndexFunc(g.buf, terminator); i >= 0 {
		n = i + 1
	}
	n = copy(p, g.buf[:n])
	if n > 0 && terminator(p[n-1]) {
		g.open = false
	}
	g.buf = g.buf[n:]
	return n, nil
}

// Close unblocks pending reads, the source stays open.
func (g *lineGate) Close() error {
	g.mx.Lock()
	defer g.mx.Unlock()
	g.closed = true
	g.cond.Broadcast()
	return nil
}

func terminator(b byte) bool {
	return b == '\n' || b == '\r' || b == 0x03
}
