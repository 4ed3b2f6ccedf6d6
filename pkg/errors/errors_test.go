package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeInvalidFormat, "unknown format: %s", "webp")

	if err.Code != ErrCodeInvalidFormat {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodeInvalidFormat)
	}
	if err.Message != "unknown format: webp" {
		t.Errorf("Message = %q", err.Message)
	}
	if !strings.Contains(err.Error(), "INVALID_FORMAT") {
		t.Errorf("Error() should contain the code, got %q", err.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(ErrCodeConversionFailed, cause, "converting png")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped error should match its cause with errors.Is")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("Error() should include the cause, got %q", err.Error())
	}
}

func TestWrapKeepsPercentInArgs(t *testing.T) {
	// External tool output lands in the message via an argument, so any
	// verbs it happens to contain must stay literal.
	cause := stderrors.New("exit status 1")
	err := Wrap(ErrCodeConversionFailed, cause, "rsvg-convert: %s", "scaling at 50% failed")

	if err.Message != "rsvg-convert: scaling at 50% failed" {
		t.Errorf("Message = %q", err.Message)
	}
	if strings.Contains(err.Message, "%!") {
		t.Errorf("Message contains a formatting artifact: %q", err.Message)
	}
}

func TestIsMatchesCode(t *testing.T) {
	err := New(ErrCodeReentrantCall, "blocking call on scheduler goroutine")

	if !Is(err, ErrCodeReentrantCall) {
		t.Error("Is should match the error's own code")
	}
	if Is(err, ErrCodeRouteNotFound) {
		t.Error("Is should not match a different code")
	}
	if Is(stderrors.New("plain"), ErrCodeReentrantCall) {
		t.Error("Is should not match a non-structured error")
	}
}

func TestIsMatchesWrappedCode(t *testing.T) {
	inner := New(ErrCodeRouteNotFound, "no route")
	outer := Wrap(ErrCodeConversionFailed, inner, "conversion")

	// The outermost code wins.
	if !Is(outer, ErrCodeConversionFailed) {
		t.Error("Is should match the outermost code")
	}
	if GetCode(outer) != ErrCodeConversionFailed {
		t.Errorf("GetCode = %q, want %q", GetCode(outer), ErrCodeConversionFailed)
	}
}

func TestUserMessage(t *testing.T) {
	err := New(ErrCodeProtocolUnavailable, "no graphics protocol for sixel")
	if got := UserMessage(err); got != "no graphics protocol for sixel" {
		t.Errorf("UserMessage = %q", got)
	}

	plain := stderrors.New("plain failure")
	if got := UserMessage(plain); got != "plain failure" {
		t.Errorf("UserMessage for plain error = %q", got)
	}
}
