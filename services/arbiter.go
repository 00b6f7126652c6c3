package services

import (
	"sync"
	"time"

	"service-nanny/internal/logger"
	"service-nanny/internal/models"
)

/**
 * Single-holder lock over the exclusive resource
 * @description
 * - At most one service name holds the resource at any instant
 * - Acquire by the current holder is a no-op success
 * - Release by anyone else is a no-op
 */
type Arbiter struct {
	mu     sync.Mutex
	holder string
	since  time.Time
	now    func() time.Time
}

func NewArbiter() *Arbiter {
	return &Arbiter{now: time.Now}
}

// TryAcquire makes name the holder, or fails with *ResourceBusyError naming the current holder.
func (a *Arbiter) TryAcquire(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder == name {
		return nil
	}
	if a.holder != "" {
		return &ResourceBusyError{Holder: a.holder}
	}
	a.holder = name
	a.since = a.now()
	setHolderGauge("", name)
	logger.Infof("Resource acquired by [%s]", name)
	return nil
}

// Release clears the holder if it is name and reports whether it did.
func (a *Arbiter) Release(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder == "" || a.holder != name {
		return false
	}
	a.holder = ""
	a.since = time.Time{}
	setHolderGauge(name, "")
	logger.Infof("Resource released by [%s]", name)
	return true
}

func (a *Arbiter) CurrentHolder() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder, a.holder != ""
}

func (a *Arbiter) Info() models.HolderInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder == "" {
		return models.HolderInfo{}
	}
	holder := a.holder
	since := a.since
	return models.HolderInfo{Holder: &holder, Since: &since}
}
