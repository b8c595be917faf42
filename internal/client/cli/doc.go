// Package cli provides the interactive TacticalLink command-line client.
//
// It wires configuration, the local credential database, the backend
// client and the session, polling and read-model services into a REPL.
// Typical flow: restore a saved session, start the connectivity watcher and
// the event printer, then execute user commands.
//
// Key features:
//   - Register / Login / Logout
//   - Direct conversations and rooms, with self-destructing and read-once
//     messages
//   - Room creation and joining by id or private join key
//   - Threat status, admin dashboard and polling metrics
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher, and runREPL for details.
package cli
