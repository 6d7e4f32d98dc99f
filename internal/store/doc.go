// Package store persists processed-file results in SQLite. Row existence
// doubles as the ingestion idempotency record: a filename with a result
// is never queued again until it is forgotten.
package store
