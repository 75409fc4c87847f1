package audit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// MultiLogger fans every event out to a set of sinks, typically the DB
// writer plus a file copy. By default sinks are written asynchronously;
// SetAsync(false) makes Log block until every sink has written.
type MultiLogger struct {
	sinks []Logger
	async bool

	wg   sync.WaitGroup
	errs chan error
}

// NewMultiLogger wraps the given sinks. Events fan out asynchronously
// until SetAsync flips the mode.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	return &MultiLogger{
		sinks: sinks,
		async: true,
		errs:  make(chan error, len(sinks)),
	}
}

// SetAsync toggles between fire-and-forget and blocking fan-out.
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log fans the event out to every sink. In async mode it returns
// immediately and errors are collected via GetErrors; in sync mode it
// returns the first sink error after attempting all sinks.
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	if len(m.sinks) == 0 {
		return nil
	}

	if !m.async {
		var firstErr error
		for _, sink := range m.sinks {
			if err := sink.Log(ctx, event); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, sink := range m.sinks {
		m.wg.Add(1)
		go func(s Logger) {
			defer m.wg.Done()
			if err := s.Log(ctx, event); err != nil {
				// Drop the error when the buffer is full; audit fan-out
				// must not block request handling.
				select {
				case m.errs <- err:
				default:
				}
			}
		}(sink)
	}
	return nil
}

func (m *MultiLogger) LogAuthentication(ctx context.Context, eventType EventType, userID, userEmail string, status EventStatus, message string) error {
	return m.Log(ctx, authenticationEvent(ctx, eventType, userID, userEmail, status, message))
}

func (m *MultiLogger) LogAuthorization(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	return m.Log(ctx, authorizationEvent(ctx, eventType, userID, resourceType, resourceID, status, message))
}

func (m *MultiLogger) LogDataMutation(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	return m.Log(ctx, mutationEvent(ctx, eventType, userID, resourceType, resourceID, changes, message))
}

func (m *MultiLogger) LogStoreAction(ctx context.Context, eventType EventType, userID, storeID, message string) error {
	return m.Log(ctx, storeActionEvent(ctx, eventType, userID, storeID, message))
}

func (m *MultiLogger) LogAccess(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, message string) error {
	return m.Log(ctx, accessEvent(ctx, eventType, userID, resourceType, resourceID, message))
}

func (m *MultiLogger) LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error {
	return m.Log(ctx, httpRequestEvent(ctx, r, statusCode, duration, err))
}

// Wait blocks until all in-flight async writes have finished.
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// GetErrors drains and returns the errors collected from async writes.
func (m *MultiLogger) GetErrors() []error {
	var out []error
	for {
		select {
		case err := <-m.errs:
			out = append(out, err)
		default:
			return out
		}
	}
}

// Close drains in-flight writes and closes every sink, returning the
// first close error.
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close audit sink: %w", err)
		}
	}
	close(m.errs)
	return firstErr
}
