package graphics

import (
	"strings"
	"testing"
)

func TestWrapPassthroughDisabled(t *testing.T) {
	term := Terminal{Mplex: MplexTmux}
	if got := term.WrapPassthrough("\x1b[31m"); got != "\x1b[31m" {
		t.Errorf("passthrough applied while disabled: %q", got)
	}
}

func TestWrapPassthroughTmux(t *testing.T) {
	term := Terminal{Mplex: MplexTmux, Passthrough: true}
	got := term.WrapPassthrough("\x1b_Ga=t\x1b\\")
	if !strings.HasPrefix(got, "\x1bPtmux;") || !strings.HasSuffix(got, "\x1b\\") {
		t.Errorf("tmux framing wrong: %q", got)
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(got, "\x1bPtmux;"), "\x1b\\")
	if strings.Count(inner, "\x1b\x1b") != 2 {
		t.Errorf("escapes not doubled: %q", inner)
	}
}

func TestWrapPassthroughScreenChunks(t *testing.T) {
	term := Terminal{Mplex: MplexScreen, Passthrough: true}
	payload := strings.Repeat("x", screenChunkSize+10)
	got := term.WrapPassthrough(payload)
	if strings.Count(got, "\x1bP") != 2 {
		t.Errorf("expected 2 DCS chunks, got %d", strings.Count(got, "\x1bP"))
	}
	stripped := strings.ReplaceAll(strings.ReplaceAll(got, "\x1bP", ""), "\x1b\\", "")
	if stripped != payload {
		t.Error("payload altered by chunking")
	}
}

func TestWrapPassthroughNoMplex(t *testing.T) {
	term := Terminal{Passthrough: true}
	if got := term.WrapPassthrough("abc"); got != "abc" {
		t.Errorf("wrapped without a multiplexer: %q", got)
	}
}
