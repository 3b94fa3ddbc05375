package service

import (
	"fmt"

	"villaops/internal/database"
	"villaops/internal/models"

	"github.com/rs/zerolog"
)

var bookingTransitions = map[string][]string{
	models.StatusPending:  {models.StatusApproved, models.StatusRejected, models.StatusCancelled},
	models.StatusApproved: {models.StatusCancelled, models.StatusCompleted},
}

var jobTransitions = map[string][]string{
	models.JobStatusPending:    {models.JobStatusAssigned, models.JobStatusCancelled},
	models.JobStatusAssigned:   {models.JobStatusAssigned, models.JobStatusInProgress, models.JobStatusCancelled},
	models.JobStatusInProgress: {models.JobStatusCompleted, models.JobStatusCancelled},
}

func checkTransition(table map[string][]string, kind, from, to string) error {
	for _, allowed := range table[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s -> %s", database.ErrInvalidTransition, kind, from, to)
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", database.ErrValidation, fmt.Sprintf(format, args...))
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func orNop(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return logger
}
