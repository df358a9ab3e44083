// Package server provides the HTTP control surface for wamux.
//
// The API lets an operator inspect and manage sessions without touching the
// configuration file by hand:
//
//   - /api/health, /api/stats: liveness and aggregate counters
//   - /api/config: read or replace the session list
//   - /api/sessions/*: list active sessions, start one, restart all
//   - /api/session/{name}/*: status, restart and removal of one session
//   - /api/backup/status: reachability of the credential backup store
//   - /api/events: Server-Sent Events mirrored from the event bus
//   - /api/logs: tail of the log file
//
// Errors are returned as {"error": {"code": ..., "message": ...}} with the
// codes INVALID_REQUEST, NOT_FOUND and INTERNAL_ERROR.
package server
