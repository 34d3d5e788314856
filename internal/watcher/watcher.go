// Package watcher keeps the corpus in step with a folder: file events are
// debounced into batches, then created or modified files are ingested and
// removed files are deleted.
package watcher

import (
	"time"
)

// Operation is a file system change kind.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	// OpRename is reported for the old name; the new name arrives as a create.
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change. Path is absolute.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a FolderWatcher.
type Options struct {
	// DebounceWindow is how long a path must be quiet before it is emitted.
	DebounceWindow time.Duration
	// EventBufferSize bounds queued batches.
	EventBufferSize int
	// Extensions limits which files produce events; empty means all.
	Extensions []string
}

// DefaultOptions returns a 500ms debounce and a 64-batch buffer.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		EventBufferSize: 64,
	}
}

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}
