// Package entitlement decides whether a user may upload another file.
//
// Paid users are never limited. Free users get FreeUploadLimit uploads in
// total.
package entitlement

import (
	"errors"
	"fmt"
)

// FreeUploadLimit is the number of uploads a user may make before paying.
const FreeUploadLimit = 2

// ErrLimitExceeded is matched by every LimitError.
var ErrLimitExceeded = errors.New("free upload limit exceeded")

// LimitError carries the numbers behind a denial.
type LimitError struct {
	Limit int
	Used  int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("free upload limit exceeded: %d of %d used", e.Used, e.Limit)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// Check allows the upload when the user has paid or is still under the free
// limit, and returns a *LimitError otherwise.
func Check(hasPaid bool, uploadCount int) error {
	if hasPaid {
		return nil
	}
	if uploadCount < FreeUploadLimit {
		return nil
	}
	return &LimitError{Limit: FreeUploadLimit, Used: uploadCount}
}

// Remaining returns how many free uploads are left. unlimited is true for
// paid users, in which case remaining is meaningless.
func Remaining(hasPaid bool, uploadCount int) (remaining int, unlimited bool) {
	if hasPaid {
		return 0, true
	}
	remaining = FreeUploadLimit - uploadCount
	if remaining < 0 {
		remaining = 0
	}
	return remaining, false
}
