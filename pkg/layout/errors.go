package layout

import (
	"errors"
	"fmt"
)

var (
	ErrBadMagic         = errors.New("bad magic")
	ErrUnsupportedFile  = errors.New("unsupported version or revision")
	ErrTruncated        = errors.New("truncated data")
	ErrOutOfRange       = errors.New("coordinate out of range")
	ErrUnknownWorld     = errors.New("unknown world")
	ErrIncompleteTrack  = errors.New("incomplete track")
	ErrInvalidExtension = errors.New("invalid file extension")
)

// FormatError reports a layout file that does not follow the LYT binary format.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid layout: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid layout %v: %s: %v", e.Path, e.Reason, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// ConfigError reports invalid parameters given to the layout writer.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid layout config %v: %s: %v", e.Field, e.Reason, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
