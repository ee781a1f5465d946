package engine

import (
	"context"
	"errors"
	"sync"
)

var ErrRunInProgress = errors.New("run already in progress")

// Locker guards against overlapping runs. Acquire fails with
// ErrRunInProgress while another holder exists.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// LocalLock serializes runs inside one process.
type LocalLock struct {
	mu sync.Mutex
}

func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

func (l *LocalLock) Acquire(ctx context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	return l.mu.Unlock, nil
}
