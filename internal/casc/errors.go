package casc

import "errors"

// Error classes shared by every layer of the reader. Callers classify
// failures with errors.Is; the wrapped message carries the detail.
var (
	// ErrFormat is returned for malformed headers, magics and field widths.
	ErrFormat = errors.New("casc: malformed data")

	// ErrUnsupportedCodec is returned for a BLTE frame whose codec tag is recognized
	// as a frame but is not implemented.
	ErrUnsupportedCodec = errors.New("casc: unsupported frame codec")

	// ErrUnsupportedFormat is returned for a root file that no decoder handles.
	ErrUnsupportedFormat = errors.New("casc: unsupported root format")

	// ErrConfig is returned for missing or contradictory discovery inputs.
	ErrConfig = errors.New("casc: invalid storage configuration")

	// ErrIO is returned for read failures, archive corruption detected while
	// opening a file and internal invariant violations.
	ErrIO = errors.New("casc: i/o error")

	// ErrNotSupported is returned by mutating operations on read-only streams.
	ErrNotSupported = errors.New("casc: operation not supported")

	// ErrNotLocal is returned when a file exists in the namespace but at least one
	// of its spans is missing from the local archives.
	ErrNotLocal = errors.New("casc: file not available locally")
)
