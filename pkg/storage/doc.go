// Package storage writes archive files safely.
//
// Manager owns one document's assets directory: it remembers which files are
// already present so re-runs skip them, and SaveAsset streams a body through a
// temporary file that is renamed into place only when complete.
// WriteFileAtomic gives the same guarantee for whole-file writes such as the
// ledger, meta.json and the index. SanitizeFilename turns titles and author
// names into portable folder names.
package storage
