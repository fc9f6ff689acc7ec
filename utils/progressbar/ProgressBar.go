// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ProgressBar prints a training progress bar to the terminal. The bar
// redraws in a background goroutine, either on a fixed tick or at
// every Increment, so a training loop only ever calls Increment and
// never blocks on terminal output.
type ProgressBar struct {
	width int

	// maxProgress is the number of Increment calls at which the bar
	// reaches 100%
	maxProgress int

	increments chan struct{}
	done       chan struct{}
	closed     bool

	updateEvery       time.Duration
	updateAtIncrement bool

	out io.Writer
}

// NewProgressBar returns a new progress bar that is width characters
// wide and reaches 100% after max Increment() calls. The bar redraws
// every updateEvery, and additionally at every Increment() call when
// updateAtIncrement is true.
func NewProgressBar(width, max int, updateEvery time.Duration,
	updateAtIncrement bool) *ProgressBar {
	return &ProgressBar{
		width:             width,
		maxProgress:       max,
		increments:        make(chan struct{}),
		done:              make(chan struct{}),
		updateEvery:       updateEvery,
		updateAtIncrement: updateAtIncrement,
		out:               os.Stdout,
	}
}

// Increment records one unit of progress. Each time an iteration is
// performed, Increment should be called.
func (p *ProgressBar) Increment() {
	select {
	case p.increments <- struct{}{}:
	case <-p.done:
	}
}

// Close stops the progress bar's background drawing and releases its
// resources. The bar cannot be restarted after closing.
func (p *ProgressBar) Close() {
	if p.closed {
		panic("close: close on closed progress bar")
	}
	p.closed = true
	close(p.done)
	fmt.Fprintln(p.out) // Jump to the next line after the printed bar
}

// Display starts drawing the progress bar. It should only be called
// once.
func (p *ProgressBar) Display() {
	go p.run()
}

// run redraws the bar until the progress bar is closed
func (p *ProgressBar) run() {
	tick := time.NewTicker(p.updateEvery)
	defer tick.Stop()

	progress := 0
	start := time.Now()

	for {
		select {
		case <-p.increments:
			if progress < p.maxProgress {
				progress++
			}
			if !p.updateAtIncrement {
				continue
			}

		case <-tick.C:

		case <-p.done:
			return
		}

		p.draw(progress, time.Since(start))
	}
}

// draw redraws the bar in place over the previously drawn bar
func (p *ProgressBar) draw(progress int, elapsed time.Duration) {
	var bar strings.Builder
	bar.WriteString("|")

	filled := p.width * progress / p.maxProgress
	for i := 0; i < p.width; i++ {
		if i < filled {
			bar.WriteString("█")
		} else {
			bar.WriteString(" ")
		}
	}
	fmt.Fprintf(&bar, "| [%.2f%% | elapsed: %v]",
		float64(progress)/float64(p.maxProgress)*100,
		elapsed.Truncate(time.Second))

	fmt.Fprintf(p.out, "\n\033[1A\033[K%v", bar.String())
}
