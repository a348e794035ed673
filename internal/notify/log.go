package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LogChannel appends notifications to a log file, one line each.
type LogChannel struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewLogChannel creates a file-backed channel at path. The file is
// opened lazily on first send.
func NewLogChannel(path string) *LogChannel {
	return &LogChannel{path: path}
}

func (c *LogChannel) Send(n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open notification log: %w", err)
		}
		c.file = file
	}

	line := fmt.Sprintf("%s [%s] %s\n",
		n.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), n.Title, n.Message)
	if _, err := c.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

func (c *LogChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}
