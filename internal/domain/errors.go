package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrValidation marks malformed or out of range input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized is returned when a caller identity is required but missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is the parent of every lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited is returned when a client exceeded its request quota.
	ErrRateLimited = errors.New("rate limited")

	// ErrQuizNotFound indicates the quiz is missing or inactive.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrQuestionNotFound indicates no question with that id exists in the given quiz.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
)

// ValidationError carries human readable reasons for rejecting input.
type ValidationError struct {
	Messages []string
}

// NewValidationError builds a ValidationError from one or more reasons.
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// RateLimitError reports how long the client should wait before retrying.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfterSeconds rounds the retry hint up to whole seconds, never below one.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
