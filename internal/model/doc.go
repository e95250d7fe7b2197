// Package model defines the notification record shared by the archive and the
// tools.
//
// Conventions:
//   - Timestamps: int64 microseconds since Unix epoch, 0 when unknown
//   - IDs: uuid.UUID, derived from the payload id when the server sends one
package model
