// Package provider contains the clients for external AI generation APIs.
// Each adapter normalizes its provider's JSON into the shared TaskStatus
// shape; provider-specific payloads never leak past this package.
package provider

import (
	"context"
	"errors"
)

// State is the normalized lifecycle state of an external generation task
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// ErrUnavailable indicates the provider could not be reached or returned a
// server error. Transient: callers may try a fallback provider.
var ErrUnavailable = errors.New("provider unavailable")

// Request is the provider-agnostic generation request
type Request struct {
	Prompt string
	Params map[string]any
}

// TaskStatus is the normalized status of an external generation task
type TaskStatus struct {
	State        State
	ResultURI    string
	ErrorMessage string
}

// Client is the uniform interface over external generation APIs
type Client interface {
	// Name identifies the provider in job records and logs
	Name() string

	// Submit sends a generation request and returns the provider's task id
	Submit(ctx context.Context, req *Request) (string, error)

	// GetStatus queries the current state of a previously submitted task
	GetStatus(ctx context.Context, taskID string) (*TaskStatus, error)
}
