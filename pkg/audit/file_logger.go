package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	activeLogName  = "audit.log"
	rotatedPattern = "audit-*.log"
	rotatedStamp   = "20060102T150405.000000000Z"

	defaultMaxSize  = 100 << 20
	defaultMaxFiles = 10
)

var errLoggerClosed = errors.New("audit log is closed")

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	// BasePath is the directory holding audit.log and its rotated siblings
	BasePath string `env:"PATH"`
	Rotate   bool   `env:"ROTATE" envDefault:"true"`
	MaxSize  int64  `env:"MAX_SIZE" envDefault:"104857600"`
	MaxFiles int    `env:"MAX_FILES" envDefault:"10"`
}

// FileLogger appends events as JSON lines to BasePath/audit.log. With
// rotation on, a write that would push the file past MaxSize first moves it
// aside as audit-<UTC timestamp>.log, keeping the newest MaxFiles of those.
type FileLogger struct {
	cfg FileLoggerConfig
	now func() time.Time

	mu     sync.Mutex
	active *os.File
	size   int64
}

// NewFileLogger creates the directory if needed and opens audit.log for appending
func NewFileLogger(cfg FileLoggerConfig) (*FileLogger, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("audit log path is required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultMaxSize
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultMaxFiles
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	l := &FileLogger{cfg: cfg, now: time.Now}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) activePath() string {
	return filepath.Join(l.cfg.BasePath, activeLogName)
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.activePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat audit log file: %w", err)
	}
	l.active, l.size = f, info.Size()
	return nil
}

func (l *FileLogger) Log(ctx context.Context, event *AuditEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active == nil {
		return errLoggerClosed
	}
	if l.cfg.Rotate && l.size > 0 && l.size+int64(len(line)) > l.cfg.MaxSize {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("failed to rotate audit log: %w", err)
		}
	}

	n, err := l.active.Write(line)
	l.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// rotate is called with mu held
func (l *FileLogger) rotate() error {
	if err := l.active.Close(); err != nil {
		return err
	}
	l.active = nil

	rotated := filepath.Join(l.cfg.BasePath, "audit-"+l.now().UTC().Format(rotatedStamp)+".log")
	if err := os.Rename(l.activePath(), rotated); err != nil {
		return err
	}
	if err := l.open(); err != nil {
		return err
	}
	return l.prune()
}

// prune removes the oldest rotated files beyond MaxFiles. The timestamp in
// the name sorts lexically.
func (l *FileLogger) prune() error {
	rotated, err := filepath.Glob(filepath.Join(l.cfg.BasePath, rotatedPattern))
	if err != nil || len(rotated) <= l.cfg.MaxFiles {
		return err
	}
	sort.Strings(rotated)

	var errs []error
	for _, name := range rotated[:len(rotated)-l.cfg.MaxFiles] {
		errs = append(errs, os.Remove(name))
	}
	return errors.Join(errs...)
}

func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active == nil {
		return nil
	}
	err := l.active.Close()
	l.active = nil
	return err
}

// ReadLogs returns the first count events of the active file, or all of
// them when count <= 0. Rotated files are not read.
func (l *FileLogger) ReadLogs(count int) ([]*AuditEvent, error) {
	f, err := os.Open(l.activePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var events []*AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for scanner.Scan() && (count <= 0 || len(events) < count) {
		event := new(AuditEvent)
		if err := json.Unmarshal(scanner.Bytes(), event); err != nil {
			return nil, fmt.Errorf("failed to decode audit log line %d: %w", len(events)+1, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return events, nil
}
