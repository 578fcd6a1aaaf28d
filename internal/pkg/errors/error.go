package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrSessionExpired        = errors.New("session expired or invalid")
	ErrInvalidQRCode         = errors.New("invalid qr code")
	ErrScanInProgress        = errors.New("scan already in progress")
	ErrNoActiveCheckIn       = errors.New("no active check-in")
	ErrCheckInAlreadyOpen    = errors.New("check-in already open")
	ErrWorkdayFinished       = errors.New("workday already finished")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrPhotoCaptureFailed    = errors.New("photo capture failed")
	ErrPhotoCaptureCancelled = errors.New("photo capture cancelled")
	ErrNetwork               = errors.New("network or server error")
	ErrInvalidPIN            = errors.New("invalid pin code")
)

// TooFarError rejects a check-out attempted outside the allowed radius.
// Distance and Limit are in meters, Distance rounded for display.
type TooFarError struct {
	Distance int
	Limit    int
}

func (e *TooFarError) Error() string {
	return fmt.Sprintf("too far from check-in point: %dm away, limit is %dm", e.Distance, e.Limit)
}

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
