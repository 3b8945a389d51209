package synth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// NoticeBusy is shown when a synthesis is triggered while one is running.
const NoticeBusy = "Please wait for synthesis to finish."

// ErrBusy is returned when the lock is already held.
var ErrBusy = errors.New("synthesis already running")

// Notifier shows a short message to the user.
type Notifier func(msg string)

// Lock guards one request block against concurrent syntheses.
type Lock struct {
	busy atomic.Bool
}

// TryAcquire takes the lock if it is free.
func (l *Lock) TryAcquire() bool {
	return l.busy.CompareAndSwap(false, true)
}

func (l *Lock) Release() {
	l.busy.Store(false)
}

// Busy reports whether the lock is held.
func (l *Lock) Busy() bool {
	return l.busy.Load()
}

// RunLocked runs fn while holding the lock. When the lock is taken fn does
// not run, notify gets NoticeBusy and ErrBusy is returned. A failure of fn
// is reported through notify once and returned.
func (l *Lock) RunLocked(ctx context.Context, notify Notifier, fn func(context.Context) error) error {
	if notify == nil {
		notify = func(string) {}
	}
	if !l.TryAcquire() {
		notify(NoticeBusy)
		return ErrBusy
	}
	defer l.Release()

	if err := fn(ctx); err != nil {
		notify(ErrorNotice(err))
		return err
	}
	return nil
}

// ErrorNotice formats a synthesis failure for the user.
func ErrorNotice(err error) string {
	return fmt.Sprintf("synthesis encountered an error: %s", err.Error())
}

// Locks hands out one Lock per key.
type Locks struct {
	m sync.Map
}

// For returns the lock for key, creating it on first use.
func (l *Locks) For(key string) *Lock {
	lock, _ := l.m.LoadOrStore(key, &Lock{})
	return lock.(*Lock)
}
