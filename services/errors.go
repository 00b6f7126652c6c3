package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindUnknownService   ErrorKind = "service.unknown"
	KindResourceConflict ErrorKind = "resource.conflict"
	KindStartFailed      ErrorKind = "service.start_failed"
	KindStopFailed       ErrorKind = "service.stop_failed"
	KindLogsUnavailable  ErrorKind = "logs.unavailable"
	KindDiscoveryFailed  ErrorKind = "discovery.failed"
	KindInternal         ErrorKind = "internal"
)

/**
 * Failure of one orchestrator operation
 * @property {string} Op - Operation name (start, stop, status, logs, discover)
 * @property {string} Service - Service the operation targeted
 * @property {ErrorKind} Kind - Classification used by the control surface
 * @property {string} Holder - Current resource holder, set for conflicts and forced-stop failures
 * @property {error} Err - Cause
 */
type OpError struct {
	Op      string
	Service string
	Kind    ErrorKind
	Holder  string
	Err     error
}

func (e *OpError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s '%s'", e.Op, e.Service)
	switch e.Kind {
	case KindUnknownService:
		b.WriteString(": unknown service")
	case KindResourceConflict:
		fmt.Fprintf(&b, ": exclusive resource held by '%s'", e.Holder)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// ResourceBusyError is returned by the arbiter when another service holds the resource.
type ResourceBusyError struct {
	Holder string
}

func (e *ResourceBusyError) Error() string {
	return fmt.Sprintf("exclusive resource held by '%s'", e.Holder)
}

/**
 * Partial discovery failure
 * @property {map[string]error} Skipped - Directory to the reason it was skipped
 * @description
 * - Returned alongside a valid count, the registry is already updated
 */
type DiscoveryError struct {
	Skipped map[string]error
}

func (e *DiscoveryError) Error() string {
	dirs := make([]string, 0, len(e.Skipped))
	for dir := range e.Skipped {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	parts := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		parts = append(parts, fmt.Sprintf("%s: %v", dir, e.Skipped[dir]))
	}
	return fmt.Sprintf("%d manifest(s) skipped: %s", len(dirs), strings.Join(parts, "; "))
}

// KindOf classifies any error returned by this package.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	var busy *ResourceBusyError
	if errors.As(err, &busy) {
		return KindResourceConflict
	}
	var discErr *DiscoveryError
	if errors.As(err, &discErr) {
		return KindDiscoveryFailed
	}
	return KindInternal
}

// HolderOf returns the holder carried by a conflict error, if any.
func HolderOf(err error) string {
	var opErr *OpError
	if errors.As(err, &opErr) && opErr.Holder != "" {
		return opErr.Holder
	}
	var busy *ResourceBusyError
	if errors.As(err, &busy) {
		return busy.Holder
	}
	return ""
}

func unknownService(op, name string) error {
	return &OpError{Op: op, Service: name, Kind: KindUnknownService}
}
