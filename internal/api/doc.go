// Package api implements the HTTP status API and WebSocket update stream of
// the MPD bridge.
//
// This package provides:
//   - Health and player status endpoints
//   - On-demand player reconnect
//   - Item update history from the local SQLite store
//   - A WebSocket hub that streams every published item update
//   - Middleware stack (request ID, logging, recovery, body limit)
//
// # Endpoints
//
//	GET  /health
//	GET  /api/v1/players
//	GET  /api/v1/players/{id}
//	POST /api/v1/players/{id}/reconnect
//	GET  /api/v1/players/{id}/history?limit=50
//	GET  /api/v1/items/{item}/history?limit=50
//	GET  /api/v1/ws
//
// # Graceful Degradation
//
// History is optional. Without a store the history endpoints answer
// 503 and every other endpoint keeps working.
package api
