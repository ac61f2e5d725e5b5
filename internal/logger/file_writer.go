package logger

import (
	"bufio"
	"os"
	"sync"
)

const fileBufferSize = 32 * 1024

// bufferedFileWriter serialises writes to a log file through a bufio.Writer.
// Records are flushed when the buffer fills or on Flush/Close.
type bufferedFileWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
}

func newBufferedFileWriter(path string) (*bufferedFileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &bufferedFileWriter{file: f, buf: bufio.NewWriterSize(f, fileBufferSize)}, nil
}

func (w *bufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return 0, os.ErrClosed
	}
	return w.buf.Write(p)
}

func (w *bufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return nil
	}
	return w.buf.Flush()
}

func (w *bufferedFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.buf = nil
	for _, err := range []error{flushErr, syncErr, closeErr} {
		if err != nil {
			return err
		}
	}
	return nil
}
