package errors

import (
	"fmt"
	"strings"
)

// List is the batch of errors reported for one document section.
type List struct {
	Section string   `json:"section,omitempty"`
	Errors  []*Error `json:"errors"`
}

func NewList(section string) *List {
	return &List{Section: section}
}

func (l *List) Add(errs ...*Error) {
	for _, e := range errs {
		if e != nil {
			l.Errors = append(l.Errors, e)
		}
	}
}

// Append adds err to the list. Lists are flattened, other errors are wrapped
// with the given reason.
func (l *List) Append(reason Reason, path fmt.Stringer, err error) {
	if err == nil {
		return
	}
	switch e := err.(type) {
	case *Error:
		l.Add(e)
	case *List:
		l.Add(e.Errors...)
	default:
		l.Add(Smart(reason, Path(path), err))
	}
}

func (l *List) Extend(other *List) {
	if other == nil {
		return
	}
	l.Add(other.Errors...)
}

func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Errors)
}

// Err returns nil for an empty list so a *List is never returned as a
// non-nil error interface holding no errors.
func (l *List) Err() error {
	if l.Len() == 0 {
		return nil
	}
	return l
}

func (l *List) Error() string {
	if l.Len() == 0 {
		return MessageUnknownError
	}
	lines := make([]string, 0, len(l.Errors))
	for _, e := range l.Errors {
		lines = append(lines, e.Error())
	}
	head := fmt.Sprintf("%d error(s)", len(l.Errors))
	if l.Section != "" {
		head = fmt.Sprintf("section %q: %s", l.Section, head)
	}
	return head + ":\n\t" + strings.Join(lines, "\n\t")
}
