package ui

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Terminal writes views as text, coloured when attached to a TTY.
type Terminal struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
	last  View
}

// NewTerminal returns a Terminal on stdout.
func NewTerminal() *Terminal {
	fd := os.Stdout.Fd()
	color := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	return &Terminal{
		out:   colorable.NewColorable(os.Stdout),
		color: color,
	}
}

func NewTerminalWriter(w io.Writer, color bool) *Terminal {
	return &Terminal{out: w, color: color}
}

func (t *Terminal) Header() {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "%s\n%s\n\n", t.bold(Title), Subtitle)
}

// Show prints the parts of v that changed since the previous call.
func (t *Terminal) Show(v View) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.last
	t.last = v

	if v.Status != prev.Status {
		fmt.Fprintln(t.out, v.Status)
	}
	if v.Payload != "" && v.Payload != prev.Payload {
		fmt.Fprintf(t.out, "Selected: %s\n", v.Payload)
	}
	if v.Preview != "" && v.Preview != prev.Preview {
		fmt.Fprintf(t.out, "Recording saved: %s\n", v.Preview)
	}
	if v.Alert != "" && v.Alert != prev.Alert {
		fmt.Fprintf(t.out, "%s\n", t.paint(ColorFake, "! "+v.Alert))
	}
	if v.Result != nil && (prev.Result == nil || *v.Result != *prev.Result || prev.Busy) {
		t.writeResult(*v.Result)
	}
}

func (t *Terminal) writeResult(r ResultView) {
	fmt.Fprintf(t.out, "\n  %s\n  Confidence: %s\n\n", t.paint(r.Color, t.bold(r.Label)), t.bold(r.Confidence))
}

func (t *Terminal) paint(hex, s string) string {
	if !t.color {
		return s
	}
	r, g, b, ok := parseHex(hex)
	if !ok {
		return s
	}
	return fmt.Sprintf("\x1b[38;2;%d;%d;%dm%s\x1b[0m", r, g, b, s)
}

func (t *Terminal) bold(s string) string {
	if !t.color {
		return s
	}
	return "\x1b[1m" + s + "\x1b[22m"
}

func parseHex(hex string) (r, g, b uint8, ok bool) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), true
}
