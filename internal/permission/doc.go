// Package permission resolves who may run which command.
//
// Resolver computes a types.PermissionResult for every message: owner and
// sudo status come from the session descriptor bound to the connection,
// never from other sessions; group admin and group ownership come from group
// metadata, cached per session in a GroupCache so one tenant never sees
// another's entries.
//
// Participants may encode admin status as a role string ("admin",
// "superadmin") or as boolean flags; any of them is enough. When metadata
// cannot be fetched, resolution degrades to the direct-chat result and
// admin-gated commands simply fail their check.
//
// Check and CheckMode turn a result plus a command's Requirements into a
// *DeniedError naming the first requirement that failed.
package permission
