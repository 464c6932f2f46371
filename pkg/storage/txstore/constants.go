package txstore

import "time"

const (
	SQLiteFilename = "weave.db"

	DBBusyTimeout  = 30 * time.Second
	DBCacheSizeKiB = 64 * 1024

	// WriteRetryMaxElapsed bounds retries of writes that hit SQLITE_BUSY.
	WriteRetryMaxElapsed = 30 * time.Second
	WriteRetryInitial    = 50 * time.Millisecond
)
