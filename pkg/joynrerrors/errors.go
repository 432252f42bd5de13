// Copyright joynr-sub007 Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package joynrerrors defines the single error taxonomy shared by the
// arbitration, subscription and dispatch components, replacing the
// DiscoveryException / ApplicationException<DiscoveryError> split of
// the original implementation with one sum type keyed on Kind.
package joynrerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates the error taxonomy.
type Kind int

const (
	// Timeout means a blocking wait exceeded its deadline.
	Timeout Kind = iota
	// DiscoveryFailed means arbitration exhausted with no compatible provider.
	DiscoveryFailed
	// NoCompatibleProvider is a DiscoveryFailed specialization carrying the
	// set of incompatible versions observed during arbitration.
	NoCompatibleProvider
	// PublicationMissed means the scheduler detected no publication within
	// alertAfterIntervalMs.
	PublicationMissed
	// SubscriptionSetupFailed means the router failed to register a
	// multicast receiver.
	SubscriptionSetupFailed
	// InvalidArgument means QoS or parameter validation failed before
	// enqueuing work.
	InvalidArgument
	// ShutdownInProgress means the component was stopped while the
	// operation was pending.
	ShutdownInProgress
	// InternalError means unexpected state that should be logged loudly.
	InternalError
)

func (k Kind) String() string {
	switch k {
	case Timeout:
		return "Timeout"
	case DiscoveryFailed:
		return "DiscoveryFailed"
	case NoCompatibleProvider:
		return "NoCompatibleProvider"
	case PublicationMissed:
		return "PublicationMissed"
	case SubscriptionSetupFailed:
		return "SubscriptionSetupFailed"
	case InvalidArgument:
		return "InvalidArgument"
	case ShutdownInProgress:
		return "ShutdownInProgress"
	case InternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// Version is duplicated here (rather than imported from pkg/discovery) to
// keep the error taxonomy free of a dependency on the discovery package;
// discovery.Version converts to it trivially.
type Version struct {
	Major uint32
	Minor uint32
}

// Error is the single error type returned across component boundaries.
// Callers switch on Kind rather than type-asserting concrete error types.
type Error struct {
	Kind Kind
	// Message is a human-readable description, already safe to log or
	// surface to a caller.
	Message string
	// IncompatibleVersions is populated only for Kind == NoCompatibleProvider.
	IncompatibleVersions []Version
	// cause carries the github.com/pkg/errors stack trace: for New, an error
	// holding Message itself; for Wrap, the wrapped error annotated with
	// Message. It is nil only for NewIncompatibleVersions.
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New builds an Error of the given kind with a formatted message, wrapped
// through github.com/pkg/errors so the construction site gets a stack trace
// attached for InternalError/Timeout diagnostics.
func New(kind Kind, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Message: msg, cause: errors.New(msg)}
}

// Wrap builds an Error of the given kind around an existing error, preserving
// it as the Unwrap()-able cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Message: msg, cause: errors.Wrap(cause, msg)}
}

// NewIncompatibleVersions builds a NoCompatibleProvider error carrying the
// observed incompatible provider versions, per spec §8's invariant that the
// terminal error for an all-incompatible result set carries exactly the
// versions observed.
func NewIncompatibleVersions(versions []Version) *Error {
	return &Error{
		Kind:                 NoCompatibleProvider,
		Message:              fmt.Sprintf("no compatible provider found, incompatible versions: %v", versions),
		IncompatibleVersions: versions,
	}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
