// Package endpoint derives the real-time notification endpoint from the HTTP API
// base address.
//
// The scheme is upgraded (http → ws, https → wss), host and port are kept, any
// path on the API base is replaced by Path, and the session identity is attached
// as the userId query parameter:
//
//	https://api.example.com:8443/api/v1  →  wss://api.example.com:8443/ws/notifications?userId=u1
//
// When the API base is missing or cannot be parsed the development default
// DevelopmentAPIBase is used instead. Resolution never performs network I/O.
package endpoint
