package notify

import (
	"context"
	"io"
	"sync"

	"github.com/charmbracelet/log"
)

// TerminalNotifier prints notifications as styled lines, the terminal stand-in
// for a UI snackbar.
type TerminalNotifier struct {
	mu     sync.Mutex
	logger *log.Logger
}

// NewTerminalNotifier writes toasts to w, usually os.Stderr.
func NewTerminalNotifier(w io.Writer) *TerminalNotifier {
	return &TerminalNotifier{
		logger: log.NewWithOptions(w, log.Options{
			Level:  log.ErrorLevel,
			Prefix: "barrage-fly",
		}),
	}
}

// Error prints message at error level.
func (n *TerminalNotifier) Error(_ context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.logger.Error(message)
}
