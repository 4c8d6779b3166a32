package rewrite

import (
	"io"
)

// DefaultCarry is the default carry-window size in bytes. It bounds the
// longest rewrite pattern that can survive a chunk boundary, so it is sized
// well above any URL the origin is expected to emit.
const DefaultCarry = 1024

// Transformer applies an Engine to a byte stream while holding at most
// 2×carry unrewritten bytes at a time. The last carry bytes of every chunk
// are held back and re-examined together with the next chunk, so a pattern
// spanning a chunk boundary is never split. A single pattern instance longer
// than carry can still straddle a flush and go unrewritten; that is the
// accepted trade-off for constant-memory streaming.
//
// Transformer is a single-consumer pipeline stage: Read must not be called
// concurrently.
type Transformer struct {
	src    io.ReadCloser
	engine *Engine
	carry  int

	window  []byte // accumulated unrewritten bytes, ≤ 2×carry between reads
	pending []byte // rewritten bytes not yet handed to the caller
	scratch []byte
	eof     bool
	err     error
}

// NewTransformer wraps src so that everything read from the returned stream
// has been rewritten by engine. carry values ≤ 0 select DefaultCarry.
func NewTransformer(src io.ReadCloser, engine *Engine, carry int) *Transformer {
	if carry <= 0 {
		carry = DefaultCarry
	}
	return &Transformer{
		src:     src,
		engine:  engine,
		carry:   carry,
		scratch: make([]byte, 4096),
	}
}

// Read implements io.Reader. Output preserves the byte order of the logical
// input stream; a source error is returned as-is without flushing the
// partially-accumulated window.
func (t *Transformer) Read(p []byte) (int, error) {
	for len(t.pending) == 0 {
		if t.err != nil {
			return 0, t.err
		}
		if t.eof {
			return 0, io.EOF
		}

		n, err := t.src.Read(t.scratch)
		if n > 0 {
			t.window = append(t.window, t.scratch[:n]...)
			if len(t.window) > 2*t.carry {
				cut := t.safeCut(len(t.window) - t.carry)
				t.pending = append(t.pending, t.engine.Apply(string(t.window[:cut]))...)
				// Slide the tail to the front; copy handles the overlap.
				rest := copy(t.window, t.window[cut:])
				t.window = t.window[:rest]
			}
		}

		switch {
		case err == io.EOF:
			t.eof = true
			t.pending = append(t.pending, t.engine.Apply(string(t.window))...)
			t.window = nil
		case err != nil:
			// Abort: drop the window rather than emit a half-rewritten head.
			t.err = err
			t.window = nil
		}
	}

	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// safeCut moves the flush boundary backwards so it never lands inside a
// rule match: the head that gets rewritten and emitted must end where no
// pattern straddles into the retained tail. The cut is clamped so at most
// 2×carry bytes stay buffered, which is what caps a single rewritable
// pattern at the carry size.
func (t *Transformer) safeCut(cut int) int {
	floor := len(t.window) - 2*t.carry
	if floor < 0 {
		floor = 0
	}

	s := string(t.window)
	var spans [][]int
	for _, r := range t.engine.rules {
		spans = append(spans, r.re.FindAllStringIndex(s, -1)...)
	}

	// Lowering the cut can put it inside an earlier match, so iterate until
	// no span straddles it. The cut only ever decreases, so this terminates.
	for moved := true; moved; {
		moved = false
		for _, sp := range spans {
			if sp[0] < cut && cut < sp[1] {
				cut = sp[0]
				moved = true
			}
		}
	}

	if cut < floor {
		cut = floor
	}
	return cut
}

// Close releases the carry buffer and closes the source stream.
func (t *Transformer) Close() error {
	t.window = nil
	t.pending = nil
	return t.src.Close()
}
