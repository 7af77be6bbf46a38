package provider

import (
	"errors"
	"fmt"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindReadTimeout             Kind = "read_timeout"
	KindConnectError            Kind = "connect_error"
	KindRemoteDisconnect        Kind = "remote_disconnect"
	KindProviderUnavailable     Kind = "provider_unavailable"
	KindRateLimited             Kind = "rate_limited"
	KindMaxTokensExceeded       Kind = "max_tokens_exceeded"
	KindContentModeration       Kind = "content_moderation"
	KindStructuredGeneration    Kind = "structured_generation_error"
	KindModelDoesNotSupportMode Kind = "model_does_not_support_mode"
	KindMissingModel            Kind = "missing_model"
	KindInvalidFile             Kind = "invalid_file"
	KindFileTooLarge            Kind = "file_too_large"
	KindBadRequest              Kind = "bad_request"
	KindProviderInternal        Kind = "provider_internal_error"
	KindUnknownProvider         Kind = "unknown_provider_error"
	KindJSONSchemaValidation    Kind = "json_schema_validation_error"
)

type behavior struct {
	retryable    bool
	capture      bool
	storeTaskRun bool
}

var behaviors = map[Kind]behavior{
	KindReadTimeout:             {retryable: true},
	KindConnectError:            {retryable: true},
	KindRemoteDisconnect:        {retryable: true},
	KindProviderUnavailable:     {capture: true},
	KindRateLimited:             {},
	KindMaxTokensExceeded:       {storeTaskRun: true},
	KindContentModeration:       {},
	KindStructuredGeneration:    {},
	KindModelDoesNotSupportMode: {capture: true},
	KindMissingModel:            {},
	KindInvalidFile:             {},
	KindFileTooLarge:            {},
	KindBadRequest:              {},
	KindProviderInternal:        {capture: true},
	KindUnknownProvider:         {capture: true},
	KindJSONSchemaValidation:    {capture: true, storeTaskRun: true},
}

// Transient reports whether the kind is a network failure that is retried
// against the same endpoint.
func (k Kind) Transient() bool {
	return behaviors[k].retryable
}

// FailoverCandidate reports whether the kind moves a regional call to another region.
func (k Kind) FailoverCandidate() bool {
	return k == KindRateLimited
}

// TriggersFallback reports whether callers should retry the same request on a different provider.
func (k Kind) TriggersFallback() bool {
	switch k {
	case KindModelDoesNotSupportMode, KindMissingModel, KindProviderUnavailable, KindRateLimited:
		return true
	}
	return false
}

// UserMessage is a message safe to show to end users.
func (k Kind) UserMessage() string {
	switch k {
	case KindContentModeration:
		return "The request was flagged by the provider's content moderation."
	case KindStructuredGeneration:
		return "The provider rejected the output schema."
	case KindFileTooLarge:
		return "A file in the request is too large for the provider."
	case KindInvalidFile:
		return "A file in the request could not be processed by the provider."
	case KindMaxTokensExceeded:
		return "The model reached its maximum number of tokens."
	}
	return "Generation failed."
}

// Error is the typed failure of a provider call.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	Retryable    bool `json:"retryable"`
	Capture      bool `json:"capture"`
	StoreTaskRun bool `json:"store_task_run"`

	StatusCode int    `json:"status_code,omitempty"`
	RawPayload string `json:"raw_payload,omitempty"`
	Provider   Name   `json:"provider,omitempty"`
	Model      string `json:"model,omitempty"`
	Region     string `json:"region,omitempty"`

	// Failover marks an availability failure of one region, such as a
	// regional outage, which moves the call on like a rate limit does.
	Failover bool `json:"failover,omitempty"`

	Err error `json:"-"`
}

// ErrorOption customizes an Error at construction.
type ErrorOption func(*Error)

// WithStatus records the HTTP status code.
func WithStatus(code int) ErrorOption { return func(e *Error) { e.StatusCode = code } }

// WithRaw records the raw vendor payload.
func WithRaw(body []byte) ErrorOption { return func(e *Error) { e.RawPayload = string(body) } }

// WithCause wraps an underlying error.
func WithCause(err error) ErrorOption { return func(e *Error) { e.Err = err } }

// WithFailover marks the error as a regional availability failure.
func WithFailover() ErrorOption { return func(e *Error) { e.Failover = true } }

// WithCapture overrides the capture decision.
func WithCapture(capture bool) ErrorOption { return func(e *Error) { e.Capture = capture } }

// WithStoreTaskRun overrides the billing decision.
func WithStoreTaskRun(store bool) ErrorOption { return func(e *Error) { e.StoreTaskRun = store } }

// NewError creates an Error with the default decisions of kind.
func NewError(kind Kind, message string, options ...ErrorOption) *Error {
	b := behaviors[kind]
	e := &Error{
		Kind:         kind,
		Message:      message,
		Retryable:    b.retryable,
		Capture:      b.capture,
		StoreTaskRun: b.storeTaskRun,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind, so the Err* sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// FailoverCandidate reports whether e moves a regional call to another region.
func (e *Error) FailoverCandidate() bool {
	return e.Failover || e.Kind.FailoverCandidate()
}

// WithProvider stamps provider, model and region on e and returns it.
func (e *Error) WithProvider(name Name, model, region string) *Error {
	if e.Provider == "" {
		e.Provider = name
	}
	if e.Model == "" {
		e.Model = model
	}
	if e.Region == "" {
		e.Region = region
	}
	return e
}

// Sentinels for errors.Is.
var (
	ErrReadTimeout             = &Error{Kind: KindReadTimeout}
	ErrConnectError            = &Error{Kind: KindConnectError}
	ErrRemoteDisconnect        = &Error{Kind: KindRemoteDisconnect}
	ErrProviderUnavailable     = &Error{Kind: KindProviderUnavailable}
	ErrRateLimited             = &Error{Kind: KindRateLimited}
	ErrMaxTokensExceeded       = &Error{Kind: KindMaxTokensExceeded}
	ErrContentModeration       = &Error{Kind: KindContentModeration}
	ErrStructuredGeneration    = &Error{Kind: KindStructuredGeneration}
	ErrModelDoesNotSupportMode = &Error{Kind: KindModelDoesNotSupportMode}
	ErrMissingModel            = &Error{Kind: KindMissingModel}
	ErrInvalidFile             = &Error{Kind: KindInvalidFile}
	ErrFileTooLarge            = &Error{Kind: KindFileTooLarge}
	ErrBadRequest              = &Error{Kind: KindBadRequest}
	ErrProviderInternal        = &Error{Kind: KindProviderInternal}
	ErrUnknownProvider         = &Error{Kind: KindUnknownProvider}
	ErrJSONSchemaValidation    = &Error{Kind: KindJSONSchemaValidation}
)

// AsError returns the *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or the empty kind when err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// IsFailoverCandidate reports whether err should move a regional call to another region.
func IsFailoverCandidate(err error) bool {
	e, ok := AsError(err)
	return ok && e.FailoverCandidate()
}

// IsTransient reports whether err is a retryable network failure.
func IsTransient(err error) bool {
	return KindOf(err).Transient()
}
