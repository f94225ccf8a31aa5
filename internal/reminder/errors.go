package reminder

import "errors"

var (
	ErrInvalidTimezone       = errors.New("invalid timezone")
	ErrInvalidTriggerTime    = errors.New("invalid trigger time")
	ErrPermissionDenied      = errors.New("notification permission denied")
	ErrAdapterScheduleFailed = errors.New("adapter schedule failed")
	ErrAdapterCancelFailed   = errors.New("adapter cancel failed")
	ErrDocumentCorrupt       = errors.New("reminders document corrupt")

	ErrNotFound           = errors.New("reminder not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrUnsupportedTrigger = errors.New("unsupported trigger")
)
