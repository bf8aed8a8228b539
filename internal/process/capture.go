package process

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"sync"
)

// logCapture copies a process's stdout and stderr into memory and, when
// configured, into log files.
type logCapture struct {
	stdoutBuf    *bytes.Buffer
	stderrBuf    *bytes.Buffer
	stdoutReader *io.PipeReader
	stderrReader *io.PipeReader
	stdoutWriter *io.PipeWriter
	stderrWriter *io.PipeWriter
	files        []*os.File
	wg           sync.WaitGroup
	mu           sync.RWMutex
}

// newLogCapture creates a new log capture instance. Empty paths skip the file.
func newLogCapture(stdoutPath, stderrPath string) (*logCapture, error) {
	lc := &logCapture{
		stdoutBuf: &bytes.Buffer{},
		stderrBuf: &bytes.Buffer{},
	}

	stdoutFile, err := lc.open(stdoutPath)
	if err != nil {
		return nil, err
	}
	stderrFile, err := lc.open(stderrPath)
	if err != nil {
		lc.closeFiles()
		return nil, err
	}

	lc.stdoutReader, lc.stdoutWriter = io.Pipe()
	lc.stderrReader, lc.stderrWriter = io.Pipe()

	lc.wg.Add(2)
	go lc.captureOutput(lc.stdoutReader, lc.stdoutBuf, stdoutFile)
	go lc.captureOutput(lc.stderrReader, lc.stderrBuf, stderrFile)

	return lc, nil
}

func (lc *logCapture) open(path string) (io.Writer, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	lc.files = append(lc.files, f)
	return f, nil
}

// captureOutput copies lines from reader into buffer and file.
func (lc *logCapture) captureOutput(reader io.Reader, buffer *bytes.Buffer, file io.Writer) {
	defer lc.wg.Done()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text() + "\n"
		lc.mu.Lock()
		buffer.WriteString(line)
		lc.mu.Unlock()
		if file != nil {
			_, _ = io.WriteString(file, line)
		}
	}
	// Keep draining after an over-long line so the writer never blocks.
	_, _ = io.Copy(io.Discard, reader)
}

// close closes the capture pipes and waits for completion
func (lc *logCapture) close() {
	lc.stdoutWriter.Close()
	lc.stderrWriter.Close()
	lc.wg.Wait()
	lc.closeFiles()
}

func (lc *logCapture) closeFiles() {
	for _, f := range lc.files {
		_ = f.Close()
	}
	lc.files = nil
}

func (lc *logCapture) stdout() string {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.stdoutBuf.String()
}

func (lc *logCapture) stderr() string {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.stderrBuf.String()
}
