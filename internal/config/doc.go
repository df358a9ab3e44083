// Package config provides settings loading and path management for wamux.
//
// Settings are process-level knobs (data directory, HTTP listener, reconnect
// and sweep timings, backup endpoint). They are distinct from the session
// configuration file, which lives in the data directory and is owned by the
// sessionstore package.
//
// # Loading
//
// Load merges sources in priority order:
//
//  1. Built-in defaults (Default)
//  2. Global settings (~/.config/wamux/wamux.jsonc)
//  3. Project settings (wamux.json / wamux.jsonc in the working directory)
//  4. WAMUX_CONFIG file
//  5. WAMUX_* environment variables
//
// A .env file in the working directory is read first with godotenv, so its
// values are visible to both {env:VAR} placeholders and the overrides.
//
// # Formats
//
// Settings files are JSON with comments, stripped with tidwall/jsonc.
// Durations accept Go duration strings ("10s") or integer milliseconds.
//
// # Paths
//
// GetPaths follows the XDG base directory layout:
//   - Data: ~/.local/share/wamux (config.json, sessions/, commands/)
//   - Config: ~/.config/wamux
//   - State: ~/.local/state/wamux (logs)
package config
