// Package protocol defines the messages exchanged between the host and the worker.
// Every message is JSON inside a length-prefixed frame.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lhaig/boundcheck/internal/channel"
	"github.com/lhaig/boundcheck/internal/model"
	"github.com/lhaig/boundcheck/internal/verify"
)

// RequestType selects what the worker does with a request
type RequestType string

const (
	Verify   RequestType = "verify"
	Shutdown RequestType = "shutdown"
)

// Request is sent from the host to the worker
type Request struct {
	Type        RequestType     `json:"type"`
	ID          uuid.UUID       `json:"id"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Class       json.RawMessage `json:"class,omitempty"`
}

// NewVerifyRequest wraps class in a request with a fresh ID
func NewVerifyRequest(class *model.ClassModel, fingerprint string) (*Request, error) {
	data, err := model.EncodeClass(class)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", class.Name, err)
	}
	return &Request{Type: Verify, ID: uuid.New(), Fingerprint: fingerprint, Class: data}, nil
}

// NewShutdownRequest asks the worker to exit
func NewShutdownRequest() *Request {
	return &Request{Type: Shutdown, ID: uuid.New()}
}

// DecodeClass returns the class model carried by a verify request
func (r *Request) DecodeClass() (*model.ClassModel, error) {
	if r.Type != Verify {
		return nil, fmt.Errorf("%s request carries no class", r.Type)
	}
	return model.DecodeClass(r.Class)
}

// ErrorType is the headline outcome of a verification
type ErrorType string

const (
	Success        ErrorType = "Success"
	Exception      ErrorType = "Exception"
	RequireError   ErrorType = "RequireError"
	EnsureError    ErrorType = "EnsureError"
	InvariantError ErrorType = "InvariantError"
	AssumeError    ErrorType = "AssumeError"
)

func errorTypeOf(k model.ViolationKind) ErrorType {
	switch k {
	case model.RequireViolation:
		return RequireError
	case model.EnsureViolation:
		return EnsureError
	case model.InvariantViolation:
		return InvariantError
	default:
		return AssumeError
	}
}

// Response is sent from the worker to the host, one per verify request
type Response struct {
	RequestID  uuid.UUID         `json:"request_id"`
	ClassName  string            `json:"class"`
	ErrorType  ErrorType         `json:"error_type"`
	MethodName string            `json:"method,omitempty"`
	LocationID string            `json:"location,omitempty"`
	Text       string            `json:"text,omitempty"`
	Skipped    bool              `json:"skipped,omitempty"`
	Details    string            `json:"details,omitempty"`
	Sequences  int               `json:"sequences,omitempty"`
	Violations []model.Violation `json:"violations,omitempty"`
	Exceptions []string          `json:"exceptions,omitempty"`
	Bounded    []string          `json:"bounded,omitempty"`
}

// FromResult converts a verifier result. The headline fields describe the first
// violation, or the first exception when there is none.
func FromResult(id uuid.UUID, r *verify.Result) *Response {
	resp := &Response{
		RequestID:  id,
		ClassName:  r.ClassName,
		ErrorType:  Success,
		Skipped:    r.State == verify.Skipped,
		Sequences:  r.Sequences,
		Violations: r.Violations,
		Exceptions: r.Exceptions,
		Bounded:    r.Bounded,
	}
	switch {
	case len(r.Violations) > 0:
		v := r.Violations[0]
		resp.ErrorType = errorTypeOf(v.Kind)
		resp.MethodName = v.Method
		resp.LocationID = v.Location.ID()
		resp.Text = v.Text
		resp.Details = v.Message
	case len(r.Exceptions) > 0:
		resp.ErrorType = Exception
		resp.Details = strings.Join(r.Exceptions, "\n")
	}
	return resp
}

// ExceptionResponse reports a request the worker could not process at all
func ExceptionResponse(id uuid.UUID, className string, err error) *Response {
	return &Response{
		RequestID:  id,
		ClassName:  className,
		ErrorType:  Exception,
		Details:    err.Error(),
		Exceptions: []string{err.Error()},
	}
}

// Result rebuilds the verifier result a response was made from
func (r *Response) Result() *verify.Result {
	res := &verify.Result{
		ClassName:  r.ClassName,
		State:      verify.Safe,
		Violations: r.Violations,
		Exceptions: r.Exceptions,
		Bounded:    r.Bounded,
		Sequences:  r.Sequences,
	}
	switch {
	case r.Skipped:
		res.State = verify.Skipped
	case len(r.Violations) > 0:
		res.State = verify.ViolationFound
	}
	return res
}

// Encode frames one message
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return channel.Frame(data), nil
}

// DecodeRequests parses every framed request in b
func DecodeRequests(b []byte) ([]*Request, error) {
	return decodeAll[Request](b)
}

// DecodeRequest parses the payload of one frame
func DecodeRequest(payload []byte) (*Request, error) {
	req := new(Request)
	if err := json.Unmarshal(payload, req); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return req, nil
}

// DecodeResponses parses every framed response in b
func DecodeResponses(b []byte) ([]*Response, error) {
	return decodeAll[Response](b)
}

func decodeAll[T any](b []byte) ([]*T, error) {
	frames, err := channel.SplitFrames(b)
	out := make([]*T, 0, len(frames))
	for _, f := range frames {
		msg := new(T)
		if err := json.Unmarshal(f, msg); err != nil {
			return out, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, msg)
	}
	return out, err
}
