// Package notify renders live alert notifications for the terminal UI.
package notify

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"stockpilot/internal/models"
)

// Renderer displays notifications and connection status to the user.
type Renderer interface {
	RenderNotification(n models.Notification)
	RenderStatus(connected bool)
	RenderList(notifications []models.Notification)
}

// Terminal renders notifications as colored terminal lines with an optional
// bell on critical and out-of-stock alerts.
type Terminal struct {
	out          io.Writer
	mu           sync.Mutex
	colorEnabled bool
	bellEnabled  bool

	low      *color.Color
	critical *color.Color
	oos      *color.Color
	ok       *color.Color
	bad      *color.Color
}

// NewTerminal creates a terminal renderer writing to stdout.
func NewTerminal(colorEnabled, bellEnabled bool) *Terminal {
	return NewTerminalWriter(os.Stdout, colorEnabled, bellEnabled)
}

// NewTerminalWriter creates a terminal renderer writing to out.
func NewTerminalWriter(out io.Writer, colorEnabled, bellEnabled bool) *Terminal {
	return &Terminal{
		out:          out,
		colorEnabled: colorEnabled,
		bellEnabled:  bellEnabled,
		low:          color.New(color.FgYellow),
		critical:     color.New(color.FgRed),
		oos:          color.New(color.FgRed, color.Bold),
		ok:           color.New(color.FgGreen),
		bad:          color.New(color.FgRed),
	}
}

// RenderNotification prints one notification line.
func (t *Terminal) RenderNotification(n models.Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()

	label := t.severityLabel(n.Severity)
	fmt.Fprintf(t.out, "%s  %s  %s\n", n.ReceivedAt.Format("15:04:05"), label, n.Message)

	if t.bellEnabled && (n.Severity == models.SeverityCritical || n.Severity == models.SeverityOutOfStock) {
		fmt.Fprint(t.out, "\a")
	}
}

// RenderStatus prints the connection indicator.
func (t *Terminal) RenderStatus(connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if connected {
		fmt.Fprintf(t.out, "%s alert feed connected\n", t.paint(t.ok, "●"))
	} else {
		fmt.Fprintf(t.out, "%s alert feed disconnected\n", t.paint(t.bad, "●"))
	}
}

// RenderList prints the current notification list, newest first.
func (t *Terminal) RenderList(notifications []models.Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(notifications) == 0 {
		fmt.Fprintln(t.out, "no active notifications")
		return
	}
	for _, n := range notifications {
		fmt.Fprintf(t.out, "%s  %s  %s\n",
			n.ReceivedAt.Format("15:04:05"), t.severityLabel(n.Severity), n.Message)
	}
}

func (t *Terminal) severityLabel(s models.Severity) string {
	switch s {
	case models.SeverityOutOfStock:
		return t.paint(t.oos, "[OUT OF STOCK]")
	case models.SeverityCritical:
		return t.paint(t.critical, "[CRITICAL]")
	default:
		return t.paint(t.low, "[LOW]")
	}
}

func (t *Terminal) paint(c *color.Color, s string) string {
	if !t.colorEnabled {
		return s
	}
	return c.Sprint(s)
}

// Ensure Terminal implements Renderer
var _ Renderer = (*Terminal)(nil)
