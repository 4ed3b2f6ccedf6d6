package graphics

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Output receives raw escape sequences bound for the terminal.
type Output interface {
	WriteRaw(s string)
	Flush()
}

// TermOutput is a buffered Output over a writer, normally os.Stdout.
type TermOutput struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewTermOutput(w io.Writer) *TermOutput {
	return &TermOutput{w: bufio.NewWriter(w)}
}

func (o *TermOutput) WriteRaw(s string) {
	o.mu.Lock()
	o.w.WriteString(s)
	o.mu.Unlock()
}

func (o *TermOutput) Flush() {
	o.mu.Lock()
	o.w.Flush()
	o.mu.Unlock()
}

// Multiplexer identifies a terminal multiplexer sitting between us and the
// real terminal.
type Multiplexer int

const (
	MplexNone Multiplexer = iota
	MplexTmux
	MplexScreen
)

// Terminal describes the capabilities of the attached terminal that decide
// which graphics protocol can be used.
type Terminal struct {
	// Protocol support.
	Sixel bool
	Kitty bool
	Iterm bool

	Mplex Multiplexer

	// Passthrough wraps graphics sequences for the multiplexer, letting
	// them reach the underlying terminal. Required for kitty and iTerm
	// graphics inside tmux or screen.
	Passthrough bool

	// Cell dimensions in pixels, used to convert cell sizes to pixel
	// sizes for protocols and converters.
	CellWidth  int
	CellHeight int
}

// DetectTerminal infers terminal capabilities from the environment and,
// when stdout is a tty, from the window size ioctl. Detection is
// heuristic: terminals do not reliably advertise graphics support in the
// environment, so known emulators are matched by name.
func DetectTerminal() Terminal {
	t := Terminal{CellWidth: 10, CellHeight: 20}

	termName := os.Getenv("TERM")
	program := os.Getenv("TERM_PROGRAM")

	switch {
	case strings.HasPrefix(termName, "tmux") || os.Getenv("TMUX") != "":
		t.Mplex = MplexTmux
	case strings.HasPrefix(termName, "screen") || os.Getenv("STY") != "":
		t.Mplex = MplexScreen
	}

	if os.Getenv("KITTY_WINDOW_ID") != "" || termName == "xterm-kitty" {
		t.Kitty = true
	}
	switch program {
	case "iTerm.app", "WezTerm", "mintty", "vscode":
		t.Iterm = true
	case "MacTerm":
		t.Sixel = true
	}
	switch {
	case strings.Contains(termName, "sixel"),
		strings.HasPrefix(termName, "foot"),
		strings.HasPrefix(termName, "mlterm"),
		strings.HasPrefix(termName, "yaft"):
		t.Sixel = true
	}
	if termenv.NewOutput(os.Stdout).EnvNoColor() {
		t.Sixel, t.Kitty, t.Iterm = false, false, false
	}

	if w, h, ok := cellSizeFromIoctl(); ok {
		t.CellWidth, t.CellHeight = w, h
	}
	return t
}

// cellSizeFromIoctl derives the cell pixel size from the kernel's window
// size report. Returns false if stdout is not a terminal or the terminal
// does not report pixel dimensions.
func cellSizeFromIoctl() (int, int, bool) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0, 0, false
	}
	ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, false
	}
	if ws.Col == 0 || ws.Row == 0 || ws.Xpixel == 0 || ws.Ypixel == 0 {
		return 0, 0, false
	}
	return int(ws.Xpixel) / int(ws.Col), int(ws.Ypixel) / int(ws.Row), true
}

// screenChunkSize is the DCS payload limit imposed by GNU screen (768
// bytes per sequence, minus the wrapper overhead).
const screenChunkSize = 764

// WrapPassthrough wraps an escape sequence so a terminal multiplexer
// forwards it to the real terminal instead of swallowing it. A no-op when
// no multiplexer is present or passthrough is disabled.
func (t Terminal) WrapPassthrough(cmd string) string {
	if !t.Passthrough {
		return cmd
	}
	switch t.Mplex {
	case MplexTmux:
		return "\x1bPtmux;" + strings.ReplaceAll(cmd, "\x1b", "\x1b\x1b") + "\x1b\\"
	case MplexScreen:
		var sb strings.Builder
		for i := 0; i < len(cmd); i += screenChunkSize {
			end := min(i+screenChunkSize, len(cmd))
			sb.WriteString("\x1bP")
			sb.WriteString(cmd[i:end])
			sb.WriteString("\x1b\\")
		}
		return sb.String()
	default:
		return cmd
	}
}
