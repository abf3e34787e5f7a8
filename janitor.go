package warden

import (
	"context"
	"time"
)

// Janitor is a running background cleanup started by Manager.StartCleanup.
type Janitor struct {
	m      *Manager
	cancel context.CancelFunc
	done   chan struct{}
}

// StartCleanup starts sweeping expired sessions in the background: once
// immediately, then every CleanupInterval. After a failed sweep it waits
// CleanupBackoff before resuming its schedule.
//
// The cleanup runs until ctx is cancelled, Stop is called, or the manager is
// closed. Only one can run per manager at a time; starting a second while the
// first is alive returns ErrCleanupRunning.
func (m *Manager) StartCleanup(ctx context.Context) (*Janitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.janitor != nil {
		select {
		case <-m.janitor.done:
		default:
			return nil, ErrCleanupRunning
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	j := &Janitor{
		m:      m,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.janitor = j

	go j.run(ctx)
	return j, nil
}

// Stop cancels the cleanup and waits for it to exit.
// A sweep in progress is abandoned at its next store call.
func (j *Janitor) Stop() {
	j.cancel()
	<-j.done
}

// Done is closed when the cleanup has exited.
func (j *Janitor) Done() <-chan struct{} {
	return j.done
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.done)

	policy := j.m.policy
	logger := j.m.logger

	logger.Info("session cleanup started",
		"interval", policy.CleanupInterval,
	)
	defer logger.Info("session cleanup stopped")

	ticker := time.NewTicker(policy.CleanupInterval)
	defer ticker.Stop()

	for {
		if _, err := j.m.CleanupExpiredSessions(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("session cleanup failed",
				"error", err,
				"retry_in", policy.CleanupBackoff,
			)
			if !sleep(ctx, policy.CleanupBackoff) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
