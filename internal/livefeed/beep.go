package livefeed

import (
	"io"
	"strings"
	"sync"

	"github.com/snarg/freescanner-live/internal/scanner"
)

// Beeper renders an audible feedback cue.
type Beeper interface {
	Beep(style scanner.BeepStyle)
}

// BellBeeper writes terminal bells: one for activate, two for deactivate,
// three for denied.
type BellBeeper struct {
	mu sync.Mutex
	w  io.Writer
}

func NewBellBeeper(w io.Writer) *BellBeeper {
	return &BellBeeper{w: w}
}

func (b *BellBeeper) Beep(style scanner.BeepStyle) {
	n := 1
	switch style {
	case scanner.BeepDeactivate:
		n = 2
	case scanner.BeepDenied:
		n = 3
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	io.WriteString(b.w, strings.Repeat("\a", n))
}
