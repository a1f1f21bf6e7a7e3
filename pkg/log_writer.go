package pkg

import (
	"io"

	"go.uber.org/multierr"
)

// LogWriter fans a single log line out to several outputs (e.g. stdout and
// a rotated log file). A failing output does not stop the others.
type LogWriter struct {
	outputs []io.Writer
}

func NewLogWriter(outputs ...io.Writer) *LogWriter {
	lw := &LogWriter{}
	for _, o := range outputs {
		if o != nil {
			lw.outputs = append(lw.outputs, o)
		}
	}
	return lw
}

// Write reports len(p) if at least one output took the whole line.
func (lw *LogWriter) Write(p []byte) (int, error) {
	var errs error
	written := false
	for _, o := range lw.outputs {
		n, err := o.Write(p)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if n == len(p) {
			written = true
		}
	}
	if !written {
		return 0, errs
	}
	return len(p), errs
}
