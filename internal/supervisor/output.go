package supervisor

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"

	"yanode/internal/logging"
)

const maxPendingLine = 64 * 1024

// lineWriter forwards daemon output to the logger one line at a time.
type lineWriter struct {
	mu      sync.Mutex
	logger  *slog.Logger
	stream  string
	pending bytes.Buffer
}

func newLineWriter(logger *slog.Logger, stream string) *lineWriter {
	return &lineWriter{logger: logger, stream: stream}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending.Write(p)
	for {
		line, err := w.pending.ReadString('\n')
		if err != nil {
			// Incomplete line; keep it unless it grows without bound.
			if len(line) >= maxPendingLine {
				w.emit(line)
			} else {
				w.pending.Reset()
				w.pending.WriteString(line)
			}
			break
		}
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.Len() > 0 {
		w.emit(w.pending.String())
		w.pending.Reset()
	}
}

func (w *lineWriter) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}
	w.logger.Info(line, logging.String("stream", w.stream))
}
