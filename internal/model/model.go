package model

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrUniquenessConflict = errors.New("uniqueness conflict")
	ErrPersistence        = errors.New("persistence failure")
	// ErrSerializationFailure is a transaction the database aborted because
	// it raced a concurrent one (serialization failure or deadlock).
	ErrSerializationFailure = errors.New("serialization failure")
)

// Retryable reports whether running the whole unit of work again may
// succeed: the number was taken, or the transaction lost a race.
func Retryable(err error) bool {
	return errors.Is(err, ErrUniquenessConflict) || errors.Is(err, ErrSerializationFailure)
}

// Client owns jobs and invoices.
type Client struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Job represents a single freight operation.
//
// - JobNumber is globally unique and only changes during a job type migration.
// - JobType is always canonical for jobs created after the migration.
type Job struct {
	ID          string    `json:"id" db:"id"`
	ClientID    string    `json:"clientId" db:"client_id"`
	JobNumber   string    `json:"jobNumber" db:"job_number"`
	JobType     JobType   `json:"jobType" db:"job_type"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// JobFilter narrows job listings.
type JobFilter struct {
	JobType  *JobType
	ClientID string
	Limit    int
}
