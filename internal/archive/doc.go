// Package archive persists received notifications to PostgreSQL.
//
// A Writer subscribes to a session's notification events. Handlers only enqueue,
// so a slow database never stalls the socket. A background loop batches rows and
// flushes on size or interval with INSERT ... ON CONFLICT (id) DO NOTHING, so a
// notification redelivered after a reconnect is stored once.
//
// Storage failures are logged and counted. They never reach the connection.
package archive
