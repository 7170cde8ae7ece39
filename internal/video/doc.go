// Package video persists video journal entries in SQLite.
//
// The Store owns schema management and every query the daemon issues. Busy
// retries and WAL mode keep concurrent pipeline runs and API reads from
// tripping over each other on a single database file.
package video
