// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.20
//

package radiolocate

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned by setters and constructors when a value
	// is out of range, the wrong length, or missing. State is never changed.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrLocked is returned when configuration is mutated, or Estimate is
	// re-entered, while an estimation is in progress.
	ErrLocked = errors.New("estimator is locked")

	// ErrNotReady is returned by Estimate when readings are missing,
	// insufficient, or quality scores do not match the reading count.
	ErrNotReady = errors.New("estimator is not ready")

	// ErrNoConsensus is returned when the robust iteration budget is
	// exhausted without ever producing a usable candidate model.
	ErrNoConsensus = errors.New("no consensus reached")

	// ErrEstimation is returned when the final solve or refinement fails,
	// typically on degenerate receiver geometry.
	ErrEstimation = errors.New("estimation failed")
)

// argErrorf wraps ErrInvalidArgument with a formatted detail message.
func argErrorf(format string, a ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, a...)...)
}
