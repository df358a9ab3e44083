// Package event provides the in-process event bus used to connect wamux
// components without direct references.
//
// The session store publishes ConfigChanged when the persisted session list
// changes on disk, the command registry publishes CommandsReloaded, the
// supervisor publishes SessionStateChanged and SessionRemoved on every
// lifecycle transition, and the dispatcher publishes CommandExecuted.
//
// Subscribers registered with Subscribe or SubscribeAll receive the typed
// Event value. Every event is also mirrored as JSON onto a watermill
// gochannel topic; the HTTP event stream consumes it through Stream.
package event
