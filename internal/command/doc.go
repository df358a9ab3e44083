// Package command holds the command registry shared by every session.
//
// Commands come from two places:
//
//  1. Built-in handlers passed to NewRegistry.
//  2. Markdown manifests under the commands directory (any depth).
//
// A manifest starts with YAML frontmatter and is followed by an optional
// body:
//
//	---
//	name: rules
//	description: Show the group rules
//	category: group
//	aliases: [regles]
//	groupOnly: true
//	---
//	Rules of {{.Group.Subject}}:
//	1. Be nice, {{.PushName}}.
//
// A manifest that sets handler binds a built-in handler under its own name
// and flags, which is how built-ins are renamed or restricted without code
// changes. Otherwise the body is rendered with text/template and sent as the
// reply.
//
// The registry is read through an atomic pointer. Reload builds a fresh
// table and swaps it in, so a dispatch running during a reload sees either
// the old or the new table, never a mix.
package command
