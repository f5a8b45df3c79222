package intake

import (
	"errors"
	"fmt"

	"github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/service"
)

// AttributeHTTPMethod is the message attribute selecting the operation.
const AttributeHTTPMethod = "HttpMethod"

// Supported operation kinds.
const (
	MethodCreate = "POST"
	MethodUpdate = "PUT"
)

// Message is one inbound change request, independent of the transport that delivered it.
type Message struct {
	ID         string
	Body       string
	Attributes map[string]string
}

// Method returns the operation kind carried by the message.
func (m Message) Method() string {
	return m.Attributes[AttributeHTTPMethod]
}

// ParseError reports a message body that is not valid JSON.
type ParseError struct {
	MessageID string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse message %s: %v", e.MessageID, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// BatchError aborts a batch at the message that failed.
type BatchError struct {
	Index     int
	MessageID string
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("message %d (%s): %v", e.Index, e.MessageID, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether redelivering the message could succeed.
// Malformed, invalid and conflicting messages fail the same way every time. A publish failure follows a
// committed write, so a replay would only conflict.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var (
		parseErr      *ParseError
		validationErr *service.ValidationError
		publishErr    *service.PublishError
	)
	switch {
	case errors.As(err, &parseErr),
		errors.As(err, &validationErr),
		errors.As(err, &publishErr),
		errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrNotFound):
		return false
	default:
		return true
	}
}
