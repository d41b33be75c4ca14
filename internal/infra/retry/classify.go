package retry

import (
	"errors"
	"strings"
)

// FailureClass buckets an error to decide retry eligibility and backoff.
type FailureClass string

const (
	// ClassTransient covers temporary conditions (locks, connections, timeouts)
	ClassTransient FailureClass = "transient"
	// ClassResource covers contention and rate limits
	ClassResource FailureClass = "resource"
	// ClassValidation covers bad input, never retried
	ClassValidation FailureClass = "validation"
	// ClassAuthorization covers permission failures, never retried
	ClassAuthorization FailureClass = "authorization"
	// ClassBusiness covers domain-rule violations, never retried
	ClassBusiness FailureClass = "business"
	// ClassSystem is the fallback for unknown errors, retried
	ClassSystem FailureClass = "system"
)

// BusinessError marks a domain-rule violation so the retry loop gives up
// immediately instead of hammering a rule that will keep failing.
type BusinessError struct {
	Msg string
}

func (e *BusinessError) Error() string { return e.Msg }

var transientKeywords = []string{"deadlock", "lock wait", "connection", "timeout", "temporary"}
var resourceKeywords = []string{"resource", "busy", "unavailable", "limit exceeded"}
var validationKeywords = []string{"validation", "invalid", "format", "required"}
var authorizationKeywords = []string{"permission", "unauthorized", "forbidden"}

// Classify buckets err by type and message keywords.
func Classify(err error) FailureClass {
	if err == nil {
		return ClassSystem
	}

	var be *BusinessError
	if errors.As(err, &be) {
		return ClassBusiness
	}

	msg := strings.ToLower(err.Error())

	if containsAny(msg, transientKeywords) {
		return ClassTransient
	}
	if containsAny(msg, resourceKeywords) {
		return ClassResource
	}
	if containsAny(msg, authorizationKeywords) {
		return ClassAuthorization
	}
	if containsAny(msg, validationKeywords) {
		return ClassValidation
	}

	return ClassSystem
}

// Retryable reports whether a failure class is worth another attempt.
func (c FailureClass) Retryable() bool {
	switch c {
	case ClassTransient, ClassResource, ClassSystem:
		return true
	default:
		return false
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
