package importer

import "github.com/rotisserie/eris"

var (
	// ErrAlreadyRunning is returned by Run when a session is already being
	// driven. No state changes.
	ErrAlreadyRunning = eris.New("importer: session already running")

	// ErrNoSession is returned when Run, Pause, Resume or Cancel is called
	// with no session loaded.
	ErrNoSession = eris.New("importer: no session loaded")

	// ErrNotRunning is returned by Pause when the session is not running.
	ErrNotRunning = eris.New("importer: session not running")

	// ErrNotPaused is returned by Resume when the session is not paused.
	ErrNotPaused = eris.New("importer: session not paused")
)

// duplicateKeyMessage is the per-item error recorded when a record's taxId
// already exists in the durable collection.
const duplicateKeyMessage = "duplicate key"
