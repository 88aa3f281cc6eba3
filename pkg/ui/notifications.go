package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"xarchiver/pkg/config"
	"xarchiver/pkg/orchestrator"
)

// maxListedFailures caps the failures named in a batch notification
const maxListedFailures = 5

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %s with title %s`, appleScriptQuote(message), appleScriptQuote(title))
	return exec.Command("osascript", "-e", script).Run()
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
		$text = $template.GetElementsByTagName("text")
		$text.Item(0).AppendChild($template.CreateTextNode(%s)) | Out-Null
		$text.Item(1).AppendChild($template.CreateTextNode(%s)) | Out-Null
		$toast = [Windows.UI.Notifications.ToastNotification]::new($template)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("xarchiver").Show($toast)
	`, powershellQuote(title), powershellQuote(message))

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

func powershellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Notifier prints batch results to the console and, when enabled, sends a
// desktop notification
type Notifier struct {
	sender NotificationSender
	out    io.Writer
	cfg    config.NotificationConfig
}

// NewNotifier creates a Notifier for the current platform. A
// notification_type of "terminal" keeps output on the console only and
// "none" silences it.
func NewNotifier(cfg config.NotificationConfig) *Notifier {
	if cfg.NotificationType == "none" {
		cfg.Enabled = false
	}
	var sender NotificationSender
	if cfg.Enabled && cfg.NotificationType != "terminal" {
		switch runtime.GOOS {
		case "linux":
			sender = &LinuxNotificationSender{}
		case "darwin":
			sender = &MacOSNotificationSender{}
		case "windows":
			sender = &WindowsNotificationSender{}
		}
	}
	return NewNotifierWithSender(cfg, sender, os.Stdout)
}

// NewNotifierWithSender creates a Notifier with an explicit sender and console
func NewNotifierWithSender(cfg config.NotificationConfig, sender NotificationSender, out io.Writer) *Notifier {
	return &Notifier{sender: sender, out: out, cfg: cfg}
}

// SetOutput redirects the console copy of notifications
func (n *Notifier) SetOutput(w io.Writer) {
	n.out = w
}

// SendNotification sends a desktop notification and prints to console
func (n *Notifier) SendNotification(title, message string) {
	fmt.Fprintf(n.out, "\n%s: %s\n", Cyan(title), Yellow(message))
	n.send(title, message)
}

// SendError sends an error notification
func (n *Notifier) SendError(title, message string) {
	fmt.Fprintf(n.out, "\n%s: %s\n", Red(title), Red(message))
	n.send(title, message)
}

// SendSuccess sends a success notification
func (n *Notifier) SendSuccess(title, message string) {
	fmt.Fprintf(n.out, "\n%s: %s\n", Green(title), Green(message))
	n.send(title, message)
}

func (n *Notifier) send(title, message string) {
	if n.sender == nil || !n.cfg.Enabled {
		return
	}
	// desktop notifications are best effort
	_ = n.sender.Send(title, message)
}

// NotifyBatch reports a finished batch, honouring on_complete and on_error
func (n *Notifier) NotifyBatch(result orchestrator.BatchResult) {
	if !n.cfg.Enabled {
		return
	}
	title, message := FormatBatch(result)
	if result.Failed > 0 {
		if n.cfg.OnError {
			n.SendError(title, message)
		}
		return
	}
	if n.cfg.OnComplete {
		n.SendSuccess(title, message)
	}
}

// FormatBatch renders the title and body of a batch notification
func FormatBatch(result orchestrator.BatchResult) (string, string) {
	icon := "✅"
	if result.Failed > 0 {
		icon = "⚠️"
	}
	title := fmt.Sprintf("%s xarchiver batch finished", icon)

	var b strings.Builder
	fmt.Fprintf(&b, "Total: %d\nSuccess: %d\nSkipped: %d\nFailures: %d",
		result.Total, result.Succeeded, result.Skipped, result.Failed)

	failures := result.Failures()
	for i, f := range failures {
		if i == maxListedFailures {
			fmt.Fprintf(&b, "\n...and %d more", len(failures)-maxListedFailures)
			break
		}
		fmt.Fprintf(&b, "\n- %s: %s", f.URL, truncate(f.ErrorMsg, 50))
	}
	return title, b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
