package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Indicator renders a one-line progress bar for long-running page and batch
// loops. It is safe for concurrent use; a nil *Indicator is a no-op.
type Indicator struct {
	mu         sync.Mutex
	out        io.Writer
	enabled    bool
	message    string
	total      int
	current    int
	failed     int
	startTime  time.Time
	lastUpdate time.Time
}

// NewIndicator creates a new progress indicator writing to out.
func NewIndicator(out io.Writer, message string, total int, enabled bool) *Indicator {
	return &Indicator{
		out:       out,
		enabled:   enabled && out != nil,
		message:   message,
		total:     total,
		startTime: time.Now(),
	}
}

func (p *Indicator) Start() {
	if p == nil || !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.lastUpdate = p.startTime
	fmt.Fprintf(p.out, "%s...\n", p.message)
}

// Update records current as the number of completed units.
func (p *Indicator) Update(current int) {
	if p == nil || !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	now := time.Now()

	// Redraw at most every 100ms
	if now.Sub(p.lastUpdate) < 100*time.Millisecond && current < p.total {
		return
	}
	p.lastUpdate = now
	p.render(now)
}

// Fail counts one failed unit; failures are shown next to the bar.
func (p *Indicator) Fail() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.failed++
	p.mu.Unlock()
}

func (p *Indicator) Failed() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}

func (p *Indicator) render(now time.Time) {
	elapsed := now.Sub(p.startTime)

	var failed string
	if p.failed > 0 {
		failed = fmt.Sprintf(" %d failed", p.failed)
	}

	if p.total > 0 {
		percentage := float64(p.current) / float64(p.total) * 100
		bar := p.createProgressBar(percentage)

		var eta string
		if p.current > 0 && elapsed > 0 {
			rate := float64(p.current) / elapsed.Seconds()
			remaining := float64(p.total-p.current) / rate
			eta = fmt.Sprintf(" ETA: %s", formatDuration(time.Duration(remaining*float64(time.Second))))
		}

		fmt.Fprintf(p.out, "\r%s [%s] %d/%d (%.1f%%)%s%s",
			p.message, bar, p.current, p.total, percentage, failed, eta)
		return
	}

	fmt.Fprintf(p.out, "\r%s %s (%d processed)%s", p.message, p.getSpinner(elapsed), p.current, failed)
}

func (p *Indicator) Finish() {
	if p == nil || !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.startTime)
	done := p.current
	if p.total > 0 {
		done = p.total
	}
	if p.failed > 0 {
		fmt.Fprintf(p.out, "\r%s ✓ Completed %d items (%d failed) in %s\n",
			p.message, done, p.failed, formatDuration(elapsed))
		return
	}
	fmt.Fprintf(p.out, "\r%s ✓ Completed %d items in %s\n", p.message, done, formatDuration(elapsed))
}

func (p *Indicator) FinishWithError(err error) {
	if p == nil || !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\r%s ✗ Failed after %s: %v\n",
		p.message, formatDuration(time.Since(p.startTime)), err)
}

func (p *Indicator) createProgressBar(percentage float64) string {
	const width = 30
	filled := int(percentage / 100.0 * width)

	var bar strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && percentage < 100 {
			bar.WriteString("▓")
		} else {
			bar.WriteString("░")
		}
	}
	return bar.String()
}

func (p *Indicator) getSpinner(elapsed time.Duration) string {
	spinners := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	index := int(elapsed.Milliseconds()/100) % len(spinners)
	return spinners[index]
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	return formatDuration(d)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
