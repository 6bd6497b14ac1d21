package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrAdmission is wrapped by every error that rejects a new job.
	ErrAdmission = errors.New("job rejected")

	ErrTooManyRecipients = fmt.Errorf("%w: too many recipients", ErrAdmission)
	ErrTooManyActiveJobs = fmt.Errorf("%w: too many active jobs", ErrAdmission)

	ErrInvalidTemplate = errors.New("invalid message template")
	ErrNotFound        = errors.New("job not found")
)
