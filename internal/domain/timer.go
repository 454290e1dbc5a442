// Package domain holds the Timer entity and its lifecycle rules.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is a Timer's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// IsTerminal reports whether status never changes again once reached.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusExecuting, StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// CallbackKind is the discriminant of a CallbackConfig tagged union.
type CallbackKind string

const (
	CallbackHTTP    CallbackKind = "http"
	CallbackPublish CallbackKind = "publish"
)

func (k CallbackKind) valid() bool {
	return k == CallbackHTTP || k == CallbackPublish
}

// HTTPCallback describes the webhook branch of CallbackConfig.
type HTTPCallback struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

// PublishCallback describes the message-broker branch of CallbackConfig.
type PublishCallback struct {
	Topic      string            `json:"topic"`
	RoutingKey string            `json:"routing_key,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
}

// CallbackConfig is a tagged union whose active variant is named by Kind.
// Exactly one of HTTP or Publish is populated, matching Kind.
type CallbackConfig struct {
	Kind    CallbackKind     `json:"type"`
	HTTP    *HTTPCallback    `json:"http,omitempty"`
	Publish *PublishCallback `json:"publish,omitempty"`
}

var (
	// ErrCallbackVariantMismatch means the populated branch doesn't match Kind.
	ErrCallbackVariantMismatch = errors.New("domain: callback_config variant does not match callback_kind")
	// ErrInvalidCallbackKind means Kind is neither http nor publish.
	ErrInvalidCallbackKind = errors.New("domain: invalid callback_kind")
	// ErrInvalidHTTPCallback flags a malformed HttpCallback payload.
	ErrInvalidHTTPCallback = errors.New("domain: invalid http callback")
	// ErrInvalidPublishCallback flags a malformed PublishCallback payload.
	ErrInvalidPublishCallback = errors.New("domain: invalid publish callback")
)

// Validate enforces invariant 4: callback_config variant matches callback_kind.
func (c CallbackConfig) Validate() error {
	if !c.Kind.valid() {
		return ErrInvalidCallbackKind
	}
	switch c.Kind {
	case CallbackHTTP:
		if c.HTTP == nil || c.Publish != nil {
			return ErrCallbackVariantMismatch
		}
		if c.HTTP.URL == "" {
			return fmt.Errorf("%w: url is required", ErrInvalidHTTPCallback)
		}
	case CallbackPublish:
		if c.Publish == nil || c.HTTP != nil {
			return ErrCallbackVariantMismatch
		}
		if c.Publish.Topic == "" {
			return fmt.Errorf("%w: topic is required", ErrInvalidPublishCallback)
		}
	}
	return nil
}

// Timer is the system's sole durable entity: a bound callback to fire once
// at execute_at, tracked through a one-way lifecycle.
type Timer struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExecuteAt      time.Time
	CallbackConfig CallbackConfig
	Status         Status
	LastError      *string
	ExecutedAt     *time.Time
	Metadata       json.RawMessage
}

// NewTimer constructs a Pending timer with a fresh identity. now and
// minimumCreationDelay enforce the creation-time edge of the eventual
// consistency budget (spec §6: minimumCreationDelay).
func NewTimer(now time.Time, executeAt time.Time, callback CallbackConfig, metadata json.RawMessage, minimumCreationDelay time.Duration) (*Timer, error) {
	if err := callback.Validate(); err != nil {
		return nil, err
	}
	if !executeAt.After(now.Add(minimumCreationDelay)) {
		return nil, fmt.Errorf("%w: execute_at must be at least %s in the future", ErrExecuteAtTooSoon, minimumCreationDelay)
	}
	return &Timer{
		ID:             uuid.New(),
		CreatedAt:      now,
		UpdatedAt:      now,
		ExecuteAt:      executeAt,
		CallbackConfig: callback,
		Status:         StatusPending,
		Metadata:       metadata,
	}, nil
}

// ErrExecuteAtTooSoon is returned when execute_at violates minimumCreationDelay.
var ErrExecuteAtTooSoon = errors.New("domain: execute_at too soon")

// InActivationWindow reports whether the timer belongs in the hot set for
// the window [now-recoveryLookback, now+activationLookahead], per invariant 5.
// Only Pending timers qualify, matching LoadActivationWindow; Executing rows
// left by a crash re-enter only after the startup RecoverStaleExecuting
// sweep has reset them to Pending.
func (t Timer) InActivationWindow(now time.Time, recoveryLookback, activationLookahead time.Duration) bool {
	if t.Status != StatusPending {
		return false
	}
	lower := now.Add(-recoveryLookback)
	upper := now.Add(activationLookahead)
	return !t.ExecuteAt.Before(lower) && !t.ExecuteAt.After(upper)
}

// CheckInvariants verifies the universal invariants from spec §3 hold for
// the receiver. Used by tests as a defensive check.
func (t Timer) CheckInvariants() error {
	if !t.Status.valid() {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	executedSet := t.ExecutedAt != nil
	wantExecuted := t.Status == StatusCompleted || t.Status == StatusFailed
	if executedSet != wantExecuted {
		return errors.New("domain: executed_at set iff status in {completed, failed}")
	}
	errSet := t.LastError != nil
	if errSet != (t.Status == StatusFailed) {
		return errors.New("domain: last_error set iff status = failed")
	}
	if err := t.CallbackConfig.Validate(); err != nil {
		return err
	}
	return nil
}
