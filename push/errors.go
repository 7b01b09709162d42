/*
 * Copyright 2024 the apnsgate authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package push defines the error taxonomy shared by the apnsgate packages.
package push

import (
	"fmt"
	"time"
)

// Error is a specialized error. Everything the gateway client reports to the
// caller, from informational notices to rejected notifications, implements it.
type Error interface {
	error
	isPushError() // Placeholder function to distinguish these from error class
}

type implementsPushError struct{}

func (*implementsPushError) isPushError() {}

var _ Error = &InfoReport{}
var _ Error = &ErrorReport{}
var _ Error = &BadNotification{}
var _ Error = &NotConnectedError{}
var _ Error = &ConnectionError{}
var _ Error = &RetryError{}
var _ Error = &UnsubscribeUpdate{}

// InfoReport is not an actual error.
// But it is worthy to be reported to the user.
type InfoReport struct {
	implementsPushError
	info string
}

func (e *InfoReport) Error() string {
	return e.info
}

// NewInfo returns an InfoReport for the given message (severity 'info').
func NewInfo(msg string) *InfoReport {
	return &InfoReport{info: msg}
}

// NewInfof returns an InfoReport for the given format string and arguments (severity 'info').
func NewInfof(f string, v ...interface{}) *InfoReport {
	return &InfoReport{info: fmt.Sprintf(f, v...)}
}

// ErrorReport is like InfoReport, but has a higher severity.
type ErrorReport struct {
	implementsPushError
	msg string
}

func (e *ErrorReport) Error() string {
	return e.msg
}

// NewError returns an ErrorReport for the given error message (severity 'error').
func NewError(msg string) *ErrorReport {
	return &ErrorReport{msg: msg}
}

// NewErrorf returns an ErrorReport for the given format string and arguments (severity 'error').
func NewErrorf(f string, v ...interface{}) *ErrorReport {
	return &ErrorReport{msg: fmt.Sprintf(f, v...)}
}

/*********************/

// BadNotification is returned when a notification cannot be turned into frame
// bytes: the payload exceeds the size ceiling, a custom key collides with the
// reserved "aps" key, or the device token hex does not decode. These are
// construction errors and never reach the network.
type BadNotification struct {
	implementsPushError
	Details string
}

func (e *BadNotification) Error() string {
	return fmt.Sprintf("bad notification: %s", e.Details)
}

// NewBadNotificationWithDetails creates a BadNotification with a detail message.
func NewBadNotificationWithDetails(details string) *BadNotification {
	return &BadNotification{Details: details}
}

// NotConnectedError is returned by Send when the connection state machine is
// not in the Connected state.
type NotConnectedError struct {
	implementsPushError
	State string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("not connected (state %s)", e.State)
}

// NewNotConnectedError creates a NotConnectedError naming the current state.
func NewNotConnectedError(state string) *NotConnectedError {
	return &NotConnectedError{State: state}
}

// ConnectionError wraps transport-level connect/write failures.
type ConnectionError struct {
	implementsPushError
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

// NewConnectionError creates a ConnectionError wrapping err.
func NewConnectionError(err error) *ConnectionError {
	return &ConnectionError{Err: err}
}

// RetryError tells the caller a failed operation is worth re-attempting after
// the given duration. The client itself does not loop on these.
type RetryError struct {
	implementsPushError
	After  time.Duration
	Reason error
}

func (e *RetryError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("retry after %v (%v)", e.After, e.Reason)
	}
	return fmt.Sprintf("retry after %v", e.After)
}

// NewRetryErrorWithReason builds a RetryError with the error that caused it.
func NewRetryErrorWithReason(after time.Duration, reason error) *RetryError {
	return &RetryError{After: after, Reason: reason}
}

// UnsubscribeUpdate reports a device token the feedback service marked as no
// longer valid. Timestamp is when the gateway observed the token invalid.
type UnsubscribeUpdate struct {
	implementsPushError
	Token     string
	Timestamp time.Time
}

func (e *UnsubscribeUpdate) Error() string {
	return fmt.Sprintf("unsubscribe token %s at %v", e.Token, e.Timestamp)
}

// NewUnsubscribeUpdate reports that token became invalid at the given time.
func NewUnsubscribeUpdate(token string, timestamp time.Time) *UnsubscribeUpdate {
	return &UnsubscribeUpdate{Token: token, Timestamp: timestamp}
}
