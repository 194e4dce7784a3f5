package utils

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// Progress represents a progress bar using mpb
type Progress struct {
	container   *mpb.Progress
	bar         *mpb.Bar
	enabled     bool
	mu          sync.Mutex
	current     int
	description string
}

var descLength = 20

// NewProgress creates a new progress bar with the given total count
func NewProgress(total int, enabled bool) *Progress {
	isTerm := isTerminal()

	var container *mpb.Progress
	var bar *mpb.Bar

	p := &Progress{
		container:   container,
		bar:         bar,
		enabled:     enabled && isTerm,
		description: "",
	}

	if enabled && isTerm {
		// Add space before progress bar
		fmt.Fprintln(os.Stderr)

		// Create mpb container that outputs to stderr
		container = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithWidth(64),
			mpb.WithRefreshRate(100*time.Millisecond),
		)

		// Create progress bar with decorators including dynamic description
		bar = container.New(int64(total),
			mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
			mpb.PrependDecorators(
				decor.Any(func(statistics decor.Statistics) string {
					desc := p.Description()
					if len(desc) > descLength {
						return desc[:descLength-2] + ".."
					}
					return desc
				}, decor.WC{W: descLength, C: decor.DindentRight}),
				decor.Name("  "),
				decor.CountersNoUnit("%d/%d", decor.WC{C: decor.DindentRight}),
			),
			mpb.AppendDecorators(
				decor.Percentage(),
			),
		)

		p.container = container
		p.bar = bar
	}

	return p
}

// Update updates the progress bar with current count and description
func (p *Progress) Update(current int, description string) {
	p.mu.Lock()
	p.current = current
	p.description = description
	p.mu.Unlock()

	if !p.enabled || p.bar == nil {
		return
	}
	p.bar.SetCurrent(int64(current))
}

// Increment advances the bar by one; safe for concurrent workers
func (p *Progress) Increment(description string) {
	p.mu.Lock()
	p.current++
	p.description = description
	p.mu.Unlock()

	if !p.enabled || p.bar == nil {
		return
	}
	p.bar.Increment()
}

// Current returns the count reached so far
func (p *Progress) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Description returns the latest description
func (p *Progress) Description() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.description
}

// Finish completes the progress bar and shuts down the container
func (p *Progress) Finish() {
	if !p.enabled || p.container == nil {
		return
	}

	// a bar that never reached its total would block Wait
	if !p.bar.Completed() {
		p.bar.Abort(false)
	}
	p.container.Wait()

	// Add space after progress bar
	fmt.Fprintln(os.Stderr)
}

// isTerminal checks if stderr is a terminal (TTY)
func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
