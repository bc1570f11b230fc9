package catalog

import (
	"fmt"

	"cuelang.org/go/cue/token"
)

// Error codes for catalog loading.
const (
	ErrCodeNotFound    = "C001" // Directory missing or not a directory
	ErrCodeNoFiles     = "C002" // No CUE files in directory
	ErrCodeLoadFailed  = "C003" // CUE instance failed to load
	ErrCodeBuildFailed = "C004" // CUE value failed to build or validate
	ErrCodeDecode      = "C005" // Value does not decode into the table types
	ErrCodeReference   = "C006" // Dangling cross reference between tables
)

// LoadError describes why a catalog could not be loaded.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
