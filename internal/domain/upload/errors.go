package upload

import "errors"

// Validation failures: reported to the client, nothing touched.
var (
	ErrNoFile           = errors.New("no file provided")
	ErrEmptyFile        = errors.New("file is empty")
	ErrFileTooLarge     = errors.New("file exceeds maximum allowed size")
	ErrInvalidFolder    = errors.New("folder name is invalid")
	ErrFolderNotAllowed = errors.New("folder is not allowed")
	ErrUnknownTable     = errors.New("unknown catalog table")
	ErrNoChanges        = errors.New("no metadata fields provided")
)

var (
	// ErrPlacement means the destination could not be prepared or written.
	ErrPlacement = errors.New("failed to place file on disk")
	// ErrCatalogWrite means the file is on disk but has no catalog row.
	ErrCatalogWrite = errors.New("failed to write catalog row")
	// ErrPathConflict is a unique violation on the path column.
	ErrPathConflict = errors.New("a catalog row already uses this path")
	ErrNotFound     = errors.New("file not found")
)
