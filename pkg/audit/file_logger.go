package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	activeLogName   = "audit.log"
	defaultMaxSize  = 100 * 1024 * 1024
	defaultMaxFiles = 10
)

// FileLoggerConfig configures the file sink.
type FileLoggerConfig struct {
	// BasePath is the directory the log files live in.
	BasePath string
	// Rotate enables size-based rotation of audit.log.
	Rotate   bool
	MaxSize  int64
	MaxFiles int
}

// DefaultFileLoggerConfig returns the production defaults.
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		BasePath: "/var/log/karat/audit",
		Rotate:   true,
		MaxSize:  defaultMaxSize,
		MaxFiles: defaultMaxFiles,
	}
}

// FileLogger appends audit events as JSON lines to audit.log under the
// configured directory. Rotated files are named audit-<timestamp>.log
// and pruned past MaxFiles.
type FileLogger struct {
	cfg FileLoggerConfig

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewFileLogger opens (creating if needed) the audit log directory and
// the active log file.
func NewFileLogger(cfg FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultMaxSize
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultMaxFiles
	}

	l := &FileLogger{cfg: cfg}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) activePath() string {
	return filepath.Join(l.cfg.BasePath, activeLogName)
}

// open rotates first when the active file is already over budget, then
// opens it for appending. Callers hold l.mu or are the constructor.
func (l *FileLogger) open() error {
	if l.cfg.Rotate {
		if info, err := os.Stat(l.activePath()); err == nil && info.Size() >= l.cfg.MaxSize {
			if err := l.rotate(); err != nil {
				return err
			}
		}
	}

	file, err := os.OpenFile(l.activePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

// rotate renames the active file aside and prunes old rotations.
func (l *FileLogger) rotate() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	stamp := time.Now().Format("2006-01-02-15-04-05")
	rotated := filepath.Join(l.cfg.BasePath, fmt.Sprintf("audit-%s.log", stamp))
	if err := os.Rename(l.activePath(), rotated); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	// Pruning failure must not lose the event being written.
	if err := l.prune(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prune old audit logs: %v\n", err)
	}
	return nil
}

// prune deletes the oldest rotated files past the retention count.
// Rotated names embed their timestamp, so lexicographic order is
// chronological order.
func (l *FileLogger) prune() error {
	rotated, err := filepath.Glob(filepath.Join(l.cfg.BasePath, "audit-*.log"))
	if err != nil {
		return err
	}
	if len(rotated) <= l.cfg.MaxFiles {
		return nil
	}

	sort.Strings(rotated)
	for _, stale := range rotated[:len(rotated)-l.cfg.MaxFiles] {
		if err := os.Remove(stale); err != nil {
			fmt.Fprintf(os.Stderr, "failed to remove old audit log %s: %v\n", stale, err)
		}
	}
	return nil
}

// Log appends the event as one JSON line, rotating first when the
// active file is over budget.
func (l *FileLogger) Log(ctx context.Context, event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cfg.Rotate && l.file != nil {
		if info, err := l.file.Stat(); err == nil && info.Size() >= l.cfg.MaxSize {
			if err := l.open(); err != nil {
				return err
			}
		}
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (l *FileLogger) LogAuthentication(ctx context.Context, eventType EventType, userID, userEmail string, status EventStatus, message string) error {
	return l.Log(ctx, authenticationEvent(ctx, eventType, userID, userEmail, status, message))
}

func (l *FileLogger) LogAuthorization(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	return l.Log(ctx, authorizationEvent(ctx, eventType, userID, resourceType, resourceID, status, message))
}

func (l *FileLogger) LogDataMutation(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	return l.Log(ctx, mutationEvent(ctx, eventType, userID, resourceType, resourceID, changes, message))
}

func (l *FileLogger) LogStoreAction(ctx context.Context, eventType EventType, userID, storeID, message string) error {
	return l.Log(ctx, storeActionEvent(ctx, eventType, userID, storeID, message))
}

func (l *FileLogger) LogAccess(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, message string) error {
	return l.Log(ctx, accessEvent(ctx, eventType, userID, resourceType, resourceID, message))
}

func (l *FileLogger) LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error {
	return l.Log(ctx, httpRequestEvent(ctx, r, statusCode, duration, err))
}

// Close closes the active log file. Safe to call more than once.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadLogs reads up to count events from the active log file, oldest
// first. A count of zero or less reads everything.
func (l *FileLogger) ReadLogs(count int) ([]*AuditEvent, error) {
	file, err := os.Open(l.activePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var events []*AuditEvent
	decoder := json.NewDecoder(file)
	for {
		var event AuditEvent
		if err := decoder.Decode(&event); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode audit log entry: %w", err)
		}
		events = append(events, &event)
		if count > 0 && len(events) >= count {
			break
		}
	}
	return events, nil
}
