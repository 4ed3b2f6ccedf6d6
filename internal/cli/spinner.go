package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// spinnerFrames cycle at one frame per tick while a conversion runs.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner shows an animated progress indicator on stderr while a slow
// operation (a multi-hop conversion, a graphviz render) runs. It stops on
// context cancellation as well as on an explicit Stop call, so interrupted
// commands leave a clean line behind.
type Spinner struct {
	w       io.Writer
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	started time.Time

	mu       sync.Mutex
	message  string
	explicit bool
}

// newSpinner creates a spinner with the given message.
func newSpinner(message string) *Spinner {
	return newSpinnerWithContext(context.Background(), message)
}

// newSpinnerWithContext creates a spinner that also stops when ctx is
// cancelled.
func newSpinnerWithContext(ctx context.Context, message string) *Spinner {
	sctx, cancel := context.WithCancel(ctx)
	return &Spinner{
		w:       os.Stderr,
		ctx:     sctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
		message: message,
	}
}

// Start begins the animation. It must be paired with one of the Stop
// variants.
func (s *Spinner) Start() {
	s.started = time.Now()
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-s.ctx.Done():
				s.clearLine()
				return
			case <-ticker.C:
				s.mu.Lock()
				msg := s.message
				s.mu.Unlock()
				frame := spinnerFrames[i%len(spinnerFrames)]
				fmt.Fprintf(s.w, "\r%s %s", styleIconSpinner.Render(frame), StyleDim.Render(msg))
			}
		}
	}()
}

// SetMessage replaces the displayed message on the next frame.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	s.explicit = true
	s.mu.Unlock()
	s.cancel()
	<-s.stopped
}

// StopWithSuccess stops the spinner and prints a success line with the
// elapsed time.
func (s *Spinner) StopWithSuccess(message string) {
	s.Stop()
	printSuccess("%s %s", message, StyleDim.Render(fmt.Sprintf("(%s)", time.Since(s.started).Round(time.Millisecond))))
}

// StopWithError stops the spinner and prints an error line.
func (s *Spinner) StopWithError(message string) {
	s.Stop()
	printError("%s", message)
}

// Cancelled reports whether the spinner's context was cancelled from
// outside, as opposed to an explicit Stop.
func (s *Spinner) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx.Err() != nil && !s.explicit
}

func (s *Spinner) clearLine() {
	s.mu.Lock()
	msg := s.message
	s.mu.Unlock()
	fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", len(msg)+4))
}
