package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUpdateOutdated marks a diff at or below the already applied
	// sequence id. Such diffs are silently skipped.
	ErrUpdateOutdated = errors.New("order book update is outdated")

	// ErrContinuityGap marks a diff that does not chain onto the last
	// applied sequence id. The local book can no longer be trusted.
	ErrContinuityGap = errors.New("order book update breaks sequence continuity")

	// ErrChecksumMismatch marks a book whose top levels no longer match
	// the exchange-supplied checksum.
	ErrChecksumMismatch = errors.New("order book checksum mismatch")

	// ErrBufferOverflow marks an update buffer that dropped diffs while
	// no authoritative snapshot was held.
	ErrBufferOverflow = errors.New("update buffer overflowed while unsynced")

	// ErrStaleSnapshot marks a REST snapshot that no buffered diff can
	// chain onto. The caller has to fetch a fresh one.
	ErrStaleSnapshot = errors.New("snapshot does not bridge onto buffered updates")

	ErrNotSynced       = errors.New("order book is not synced")
	ErrUnknownExchange = errors.New("unknown exchange")
)

// SnapshotFetchError wraps any network, HTTP or payload failure of a REST
// snapshot request. Partial data is never returned alongside it.
type SnapshotFetchError struct {
	Exchange string
	Symbol   string
	Cause    error
}

func (e *SnapshotFetchError) Error() string {
	return fmt.Sprintf("%s: snapshot fetch for %s failed: %s", e.Exchange, e.Symbol, e.Cause)
}

func (e *SnapshotFetchError) Unwrap() error {
	return e.Cause
}
