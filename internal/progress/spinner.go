// Package progress draws a one-line status while an upload is in flight.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

// TickInterval is how often the status line is redrawn.
const TickInterval = 250 * time.Millisecond

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner is a ProgressReporter writing to a terminal. On anything that is
// not a terminal it stays silent.
type Spinner struct {
	w        io.Writer
	interval time.Duration
	active   bool

	mu    sync.Mutex
	label string
	total int
	done  atomic.Int64
	stop  chan struct{}
	wg    sync.WaitGroup
}

// New returns a Spinner drawing on w, active only when w is a terminal.
func New(w io.Writer) *Spinner {
	return &Spinner{w: w, interval: TickInterval, active: IsTerminal(w)}
}

// NewForced returns a Spinner that draws on w whether or not it is a terminal.
func NewForced(w io.Writer, interval time.Duration) *Spinner {
	if interval <= 0 {
		interval = TickInterval
	}
	return &Spinner{w: w, interval: interval, active: true}
}

// IsTerminal reports whether w is an *os.File attached to a terminal.
func IsTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Start begins ticking. A second Start without Stop restarts the counter.
func (s *Spinner) Start(label string, total int) {
	if !s.active {
		return
	}
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label, s.total = label, total
	s.done.Store(0)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.stop)
}

// Advance adds n accepted items.
func (s *Spinner) Advance(n int) {
	s.done.Add(int64(n))
}

// Done is the number of items counted so far.
func (s *Spinner) Done() int { return int(s.done.Load()) }

// Stop ends the ticker, waits for it, and clears the line. Stop is safe to
// call when the spinner is not running.
func (s *Spinner) Stop() {
	s.mu.Lock()
	ch := s.stop
	s.stop = nil
	s.mu.Unlock()
	if ch == nil {
		return
	}
	close(ch)
	s.wg.Wait()
	fmt.Fprint(s.w, "\r\033[K")
}

func (s *Spinner) loop(stop <-chan struct{}) {
	defer s.wg.Done()
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for i := 0; ; i++ {
		select {
		case <-stop:
			return
		case <-t.C:
			s.mu.Lock()
			label, total := s.label, s.total
			s.mu.Unlock()
			fmt.Fprintf(s.w, "\r\033[K%s %s %d/%d", frames[i%len(frames)], label, s.Done(), total)
		}
	}
}
