package errors

import (
	"fmt"
	"strings"
)

const (
	MessageUnknownError = "unknown error"
)

type Reason string

const (
	ReasonSchema     Reason = "SchemaError"
	ReasonSyntax     Reason = "SyntaxError"
	ReasonResolution Reason = "ResolutionError"
	ReasonType       Reason = "TypeError"
	ReasonReference  Reason = "ReferenceError"
	ReasonMerge      Reason = "MergeError"
)

type location string

type offset int

// Error is a single compilation failure. Offset is meaningful only for
// SyntaxError and is -1 otherwise.
type Error struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path,omitempty"`
	Offset  int    `json:"offset"`
}

func (e *Error) Error() string {
	msg := e.Message
	if len(msg) == 0 {
		msg = MessageUnknownError
	}
	var b strings.Builder
	if e.Reason != "" {
		b.WriteString(string(e.Reason))
	}
	if e.Path != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString("at " + e.Path)
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&b, " (offset %d)", e.Offset)
	}
	if b.Len() == 0 {
		return msg
	}
	return b.String() + ": " + msg
}

func New(reason Reason, path fmt.Stringer, text string) *Error {
	return Smart(reason, Path(path), text)
}

func Newf(reason Reason, path fmt.Stringer, format string, args ...interface{}) *Error {
	return Smart(reason, Path(path), fmt.Sprintf(format, args...))
}

func Path(p fmt.Stringer) location {
	if p == nil {
		return ""
	}
	return location(p.String())
}

func Offset(n int) offset {
	return offset(n)
}

// Smart builds an *Error from loosely typed arguments. The first argument of
// each kind wins; an *Error argument supplies every field that has not been
// set yet.
func Smart(args ...interface{}) *Error {
	err := &Error{Offset: -1}
	var reasonSet, messageSet, pathSet, offsetSet, errSet bool
	for _, arg := range args {
		switch a := arg.(type) {
		case *Error:
			if errSet || a == nil {
				continue
			}
			if !reasonSet {
				err.Reason = a.Reason
				reasonSet = true
			}
			if !messageSet {
				err.Message = a.Message
				messageSet = true
			}
			if !pathSet && a.Path != "" {
				err.Path = a.Path
				pathSet = true
			}
			if !offsetSet && a.Offset >= 0 {
				err.Offset = a.Offset
				offsetSet = true
			}
			errSet = true
		case error:
			if errSet || messageSet {
				continue
			}
			err.Message = a.Error()
			messageSet = true
			errSet = true
		case Reason:
			if reasonSet {
				continue
			}
			err.Reason = a
			reasonSet = true
		case location:
			if pathSet {
				continue
			}
			err.Path = string(a)
			pathSet = true
		case offset:
			if offsetSet {
				continue
			}
			err.Offset = int(a)
			offsetSet = true
		case string:
			if messageSet {
				continue
			}
			err.Message = a
			messageSet = true
		}
	}
	return err
}

// ReasonOf returns the reason of the first *Error found in err.
func ReasonOf(err error) Reason {
	switch e := err.(type) {
	case *Error:
		return e.Reason
	case *List:
		if len(e.Errors) > 0 {
			return e.Errors[0].Reason
		}
	}
	return ""
}

// Is reports whether err is, or contains, an error with the given reason.
func Is(err error, reason Reason) bool {
	switch e := err.(type) {
	case *Error:
		return e.Reason == reason
	case *List:
		for _, item := range e.Errors {
			if item.Reason == reason {
				return true
			}
		}
	}
	return false
}
