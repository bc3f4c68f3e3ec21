// Package types holds the data model and error taxonomy shared across every
// FTL2 component: hosts, inventories, modules, bundles, execution records,
// and the tagged errors the executor and fan-out driver propagate.
package types

import (
	"errors"
	"fmt"
)

// Kind tags an FTL2 error so callers can branch on failure class instead of
// matching error strings.
type Kind string

const (
	KindInventoryInvalid  Kind = "InventoryInvalid"
	KindPolicyDenied      Kind = "PolicyDenied"
	KindSecretMissing     Kind = "SecretMissing"
	KindBundleBuildFailed Kind = "BundleBuildFailed"
	KindTransportLost     Kind = "TransportLost"
	KindProtocolError     Kind = "ProtocolError"
	KindTimeout           Kind = "Timeout"
	KindCancelled         Kind = "Cancelled"
	KindModuleFailed      Kind = "ModuleFailed"
)

// Error is the tagged error value every FTL2 operation returns on failure.
type Error struct {
	Kind   Kind
	Host   string // empty when the error is not host-scoped
	Reason string
	Err    error // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Host != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s(%s): %s: %v", e.Kind, e.Host, e.Reason, e.Err)
		}
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Host, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &Error{Kind: KindTimeout}) match any *Error of the
// same kind, keyed only by kind.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

func NewError(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: cause}
}

func NewHostError(kind Kind, host, reason string, cause error) *Error {
	return &Error{Kind: kind, Host: host, Reason: reason, Err: cause}
}

// PolicyDenied builds the error for a denied call: the matching deny
// rule's reason is its Reason, so the message reads
// "PolicyDenied: <reason>", and no audit record is created
// for a call that never dispatches.
func PolicyDenied(reason string) *Error {
	return &Error{Kind: KindPolicyDenied, Reason: reason}
}

// SecretMissing is fatal at context entry: an unresolved secret binding
// fails closed rather than silently running with a missing value.
func SecretMissing(name string) *Error {
	return &Error{Kind: KindSecretMissing, Reason: fmt.Sprintf("secret %q not resolved", name)}
}

// KindOf extracts the Kind from err, ok=false if err is not a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
