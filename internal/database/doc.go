// Package database provides the PostgreSQL connection pool for the notification
// archive.
package database
