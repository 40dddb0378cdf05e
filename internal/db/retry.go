package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pbelyaev/kinoscribe/internal/logger"
)

// isBusy reports whether err is a SQLITE_BUSY-style lock contention
// error worth retrying. Anything else (syntax errors, constraint
// violations, missing tables) fails immediately.
func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// ExecWithRetry runs a write statement, retrying on lock contention
// with exponential backoff. The event bus fanout and the scan loop
// write from separate goroutines, so transient SQLITE_BUSY errors are
// expected under load.
func ExecWithRetry(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	var err error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		var result sql.Result
		result, err = db.Exec(query, args...)
		if err == nil {
			return result, nil
		}
		if !isBusy(err) {
			return nil, err
		}
		if attempt < MaxRetries-1 {
			delay := RetryDelay * time.Duration(1<<attempt)
			logger.Debugf("Database busy, retrying in %v (attempt %d/%d)", delay, attempt+1, MaxRetries)
			time.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("database busy after %d retries: %w", MaxRetries, err)
}

// QueryWithRetry runs a read query with the same backoff policy as
// ExecWithRetry. The caller owns the returned rows.
func QueryWithRetry(db *sql.DB, query string, args ...interface{}) (*sql.Rows, error) {
	var err error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		var rows *sql.Rows
		rows, err = db.Query(query, args...)
		if err == nil {
			return rows, nil
		}
		if !isBusy(err) {
			return nil, err
		}
		if attempt < MaxRetries-1 {
			delay := RetryDelay * time.Duration(1<<attempt)
			logger.Debugf("Database busy on query, retrying in %v (attempt %d/%d)", delay, attempt+1, MaxRetries)
			time.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("database busy after %d retries: %w", MaxRetries, err)
}
