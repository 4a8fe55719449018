// Package model defines the domain types and value objects for the
// mergin CLI.
//
// This package contains pure data structures with no external dependencies.
// All entities (FileInfo, Changes, ProjectInfo, etc.) mirror the JSON
// shapes exchanged with a Mergin server and persisted in the local
// .mergin/mergin.json metadata file, so their field tags are part of the
// wire format and must not change casually.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
