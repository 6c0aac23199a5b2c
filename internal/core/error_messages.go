package core

// error_messages.go maps pipeline errors to stable codes for HTTP responses
// and support tickets.
//
// Codes by category:
//
//	FILE001 source object missing           ErrSourceUnavailable
//	FILE002 not a readable CSV              ErrMalformedFile
//	FILE003 object outside upload prefix    ErrOutsideUploadPrefix
//	FILE004 relocation failed               ErrRelocate
//	QUE001  enqueue failed                  ErrEnqueue
//	QUE002  queued body undecodable         ErrDecodeUnit
//	DB001   identity already used           ErrProductExists
//	DB002   connection refused              "connection refused"
//	DB003   constraint violation            "violates", "constraint"
//	UPL001  file name missing               "file name is required"
//	UPL002  not a csv name                  "only csv files are allowed"
//	UPL003  request cancelled               context.Canceled
//	UPL004  request timed out               context.DeadlineExceeded
//	UPL005  parse slots exhausted           ErrTooManyParses
//	RATE001 rate limited                    "rate limit"
//	ERR000  anything else
//
// Sentinels are matched with errors.Is first. Text patterns are matched
// case-insensitively afterwards, first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	target error
	msg    UserMessage
}

var sentinelMessages = []sentinelMessage{
	{ErrSourceUnavailable, UserMessage{
		Message: "The uploaded file could not be found",
		Action:  "Upload the file again",
		Code:    "FILE001",
	}},
	{ErrMalformedFile, UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure the file is comma-separated with a header row",
		Code:    "FILE002",
	}},
	{ErrOutsideUploadPrefix, UserMessage{
		Message: "File is not in the upload folder",
		Action:  "Upload through the import endpoint",
		Code:    "FILE003",
	}},
	{ErrRelocate, UserMessage{
		Message: "File was imported but could not be archived",
		Action:  "Rows may be imported again if the file is reprocessed",
		Code:    "FILE004",
	}},
	{ErrEnqueue, UserMessage{
		Message: "Rows could not be queued for import",
		Action:  "Please try again in a few moments",
		Code:    "QUE001",
	}},
	{ErrDecodeUnit, UserMessage{
		Message: "A queued row could not be read",
		Action:  "Contact support with the message ID",
		Code:    "QUE002",
	}},
	{ErrProductExists, UserMessage{
		Message: "A product with this ID already exists",
		Action:  "Please try again",
		Code:    "DB001",
	}},
	{ErrTooManyParses, UserMessage{
		Message: "Too many files are being imported right now",
		Action:  "The upload will be retried automatically",
		Code:    "UPL005",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL003",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "UPL004",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns covers errors from drivers and handlers that carry no sentinel.
var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to a backing service",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates",
		msg: UserMessage{
			Message: "Data violates a store constraint",
			Action:  "Check prices are positive and counts are not negative",
			Code:    "DB003",
		},
	},
	{
		pattern: "constraint",
		msg: UserMessage{
			Message: "Data violates a store constraint",
			Action:  "Check prices are positive and counts are not negative",
			Code:    "DB003",
		},
	},
	{
		pattern: "file name is required",
		msg: UserMessage{
			Message: "File name is required",
			Action:  "Pass the file name in the name query parameter",
			Code:    "UPL001",
		},
	},
	{
		pattern: "only csv files are allowed",
		msg: UserMessage{
			Message: "Only CSV files are allowed",
			Action:  "Rename or export the file with a .csv extension",
			Code:    "UPL002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches. Check the logs for the
// original error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
//	msg := MapError(fmt.Errorf("%w: empty file", ErrMalformedFile))
//	// msg.Code == "FILE002"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
