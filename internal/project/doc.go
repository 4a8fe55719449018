// Package project implements the local side of mergin synchronization.
//
// A mergin project is an ordinary directory with a .mergin/ meta
// directory next to the user's files. The meta directory holds
// mergin.json — the snapshot of the project state at the last successful
// sync — plus temporary files created while a sync is in flight. All
// change detection works by comparing three states:
//
//   - the snapshot in mergin.json (what the server had last time)
//   - the actual files on disk (what the user has now)
//   - the file listing reported by the server (what the server has now)
//
// Comparing snapshot vs. disk yields push changes; comparing snapshot
// vs. server yields pull changes. File identity is SHA-1 checksum plus
// size — mtimes are recorded but never trusted.
//
// Conflicting edits (a file changed both locally and on the server) are
// never merged: the local version is preserved as a "_conflict_copy"
// sibling and the server version wins, matching the behavior of the
// original client when diff-based merging is unavailable.
package project
