// Package provision holds the idempotent create-if-absent operations the
// bootstrap issues against its target services. Every operation is safe to
// re-run: a pre-existing resource is success, not an error. The one
// exception, OAuth client registration, is documented on its method.
package provision

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies provisioning failures. All kinds are fatal to the
// bootstrap run; nothing here is retried internally.
type ErrorKind int

const (
	// Unreachable means the service did not respond at all.
	Unreachable ErrorKind = iota
	// Rejected means the service answered with a validation or permission
	// error.
	Rejected
	// MalformedResponse means the service answered but an expected field was
	// absent.
	MalformedResponse
)

func (k ErrorKind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case Rejected:
		return "rejected"
	case MalformedResponse:
		return "malformed response"
	}
	return "unknown"
}

// Error wraps a provisioning failure with its classification and the
// resource being provisioned.
type Error struct {
	Kind     ErrorKind
	Resource string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provision %s: %s: %v", e.Resource, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrap classifies err for the named resource. Network-level failures are
// Unreachable; anything the service said itself is Rejected.
func wrap(resource string, err error) error {
	if err == nil {
		return nil
	}
	kind := Rejected
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) {
		kind = Unreachable
	}
	return &Error{Kind: kind, Resource: resource, Err: err}
}
