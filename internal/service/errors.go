package service

import (
	"errors"
	"fmt"
)

// Kind classifies a failed conversion request for the HTTP layer.
type Kind int

const (
	KindInternal Kind = iota
	KindConverterNotFound
	KindFetch
	KindNoCalendar
	KindParse
	KindConversion
)

func (k Kind) String() string {
	switch k {
	case KindConverterNotFound:
		return "converter_not_found"
	case KindFetch:
		return "fetch"
	case KindNoCalendar:
		return "no_calendar"
	case KindParse:
		return "parse"
	case KindConversion:
		return "conversion"
	default:
		return "internal"
	}
}

// Error is returned by Service.Convert.
type Error struct {
	Kind      Kind
	Converter string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Converter, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Converter, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
