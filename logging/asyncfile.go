package logging

import (
	"fmt"
	"os"
	"sync"
)

// AsyncFile queues writes to a file and performs them on a background goroutine
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	errs    int
}

// NewAsyncFile creates or truncates path and starts its writer
func NewAsyncFile(path string) (*AsyncFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100),
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues a copy of data
func (af *AsyncFile) Write(data []byte) (int, error) {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return 0, fmt.Errorf("async file %s is closed", af.file.Name())
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	af.queue <- buf
	return len(data), nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			af.mu.Lock()
			af.errs++
			af.mu.Unlock()
		}
	}
}

// Close drains the queue and closes the file. It reports an error when any queued write failed.
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	af.wg.Wait()
	if err := af.file.Close(); err != nil {
		return err
	}
	if af.errs > 0 {
		return fmt.Errorf("%d writes to %s failed", af.errs, af.file.Name())
	}
	return nil
}
