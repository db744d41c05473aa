package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/siriusu/siriusu/internal/telemetry"
)

const (
	readChunk = 1024
	// maxLine bounds a line that never sees a terminator; it is flushed as is.
	maxLine = 64 * 1024
)

// relayInput forwards each console line to the child's stdin. Write errors
// are dropped so a broken pipe never ends interactive forwarding.
func relayInput(ctx context.Context, r io.Reader, w io.Writer) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		_, _ = io.WriteString(w, sc.Text()+"\n")
	}
}

// relayOutput reads the child's stdout in fixed chunks, reassembles lines
// across chunk boundaries and logs each one at its classified severity.
// It returns when r reports end of stream or an error.
func relayOutput(r io.Reader, logger *slog.Logger, metrics *telemetry.Metrics) {
	var (
		c       Classifier
		pending []byte
	)
	buf := make([]byte, readChunk)

	emit := func(line []byte) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		severity, message, ok := c.Classify(string(line))
		if !ok {
			return
		}
		logger.Log(context.Background(), severity.Level(), message)
		metrics.RelayLine(severity.String())
	}

	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			start := 0
			for {
				i := bytes.IndexByte(pending[start:], '\n')
				if i < 0 {
					break
				}
				emit(pending[start : start+i])
				start += i + 1
			}
			pending = append(pending[:0], pending[start:]...)
			if len(pending) >= maxLine {
				emit(pending)
				pending = pending[:0]
			}
		}
		if err != nil {
			if len(pending) > 0 {
				emit(pending)
			}
			return
		}
	}
}
