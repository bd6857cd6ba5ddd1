// Package errdefs defines the closed set of error kinds returned by the
// workspace data-access packages.
//
// Every error leaving a dataset, attribution, analysis, project or workspace
// call is an *Error carrying one Kind and the offending key. Container
// library errors are kept as the cause but never decide the kind.
package errdefs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration is a malformed manifest, label file or pattern.
	KindConfiguration
	// KindNotFound is an absent sample, attribution, analysis key or project.
	KindNotFound
	// KindOutOfRange is an index outside a store's valid range.
	KindOutOfRange
	// KindClosed is an access to an unopened or closed resource.
	KindClosed
	// KindDataIntegrity is stored data that violates an invariant.
	KindDataIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNotFound:
		return "not_found"
	case KindOutOfRange:
		return "out_of_range"
	case KindClosed:
		return "closed"
	case KindDataIntegrity:
		return "data_integrity"
	default:
		return "unknown"
	}
}

// Sentinels for use with errors.Is. ErrOutOfRange errors also match
// ErrNotFound.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrOutOfRange    = errors.New("out of range")
	ErrClosed        = errors.New("resource closed")
	ErrDataIntegrity = errors.New("data integrity violation")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindNotFound:
		return ErrNotFound
	case KindOutOfRange:
		return ErrOutOfRange
	case KindClosed:
		return ErrClosed
	case KindDataIntegrity:
		return ErrDataIntegrity
	default:
		return nil
	}
}

// Error is the error type returned at the data-access boundary.
type Error struct {
	Kind Kind
	// Op is the failing operation, e.g. "attribution get".
	Op string
	// Level names what Key identifies: index, method, category, clustering,
	// embedding, project, label.
	Level string
	Key   string
	// Path is the file involved, if any.
	Path string
	// Field is the manifest field at fault for configuration errors.
	Field  string
	Detail string
	Err    error

	index   int
	indexed bool
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	add := func(s string) {
		if s == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(s)
	}
	add(e.Path)
	if e.Field != "" {
		add("field " + e.Field)
	}
	switch {
	case e.indexed:
		add("index " + strconv.Itoa(e.index))
	case e.Level != "" && e.Key != "":
		add(fmt.Sprintf("%s %q", e.Level, e.Key))
	case e.Key != "":
		add(strconv.Quote(e.Key))
	}
	if s := e.Kind.sentinel(); s != nil {
		add(s.Error())
	}
	add(e.Detail)
	if e.Err != nil {
		add(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if target == e.Kind.sentinel() {
		return true
	}
	return e.Kind == KindOutOfRange && target == ErrNotFound
}

// Index returns the offending index when the error names one.
func (e *Error) Index() (int, bool) {
	return e.index, e.indexed
}

// WithPath returns e with Path set.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithIndex returns e naming index as the offending index.
func (e *Error) WithIndex(index int) *Error {
	e.Level, e.index, e.indexed = "index", index, true
	return e
}

// WithCause returns e with Err set.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// Configuration reports a malformed manifest, label file or pattern.
func Configuration(op, path, field string, err error) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Path: path, Field: field, Err: err}
}

// Configurationf is Configuration with a formatted detail and no cause.
func Configurationf(op, path, field, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Path: path, Field: field, Detail: fmt.Sprintf(format, args...)}
}

// NotFound reports an absent key at the given level.
func NotFound(op, level, key string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Level: level, Key: key}
}

// NotFoundIndex reports an index with no entry in an otherwise valid range.
func NotFoundIndex(op string, index int) *Error {
	return &Error{Kind: KindNotFound, Op: op, Level: "index", index: index, indexed: true}
}

// OutOfRange reports an index outside [0, length).
func OutOfRange(op string, index, length int) *Error {
	return &Error{
		Kind:    KindOutOfRange,
		Op:      op,
		Level:   "index",
		Detail:  fmt.Sprintf("valid range is [0, %d)", length),
		index:   index,
		indexed: true,
	}
}

// Closed reports an access to a resource that is not open.
func Closed(op, subject string) *Error {
	return &Error{Kind: KindClosed, Op: op, Key: subject}
}

// Integrity reports stored data that violates an invariant.
func Integrity(op, path, format string, args ...any) *Error {
	return &Error{Kind: KindDataIntegrity, Op: op, Path: path, Detail: fmt.Sprintf(format, args...)}
}

// IntegrityIndex is Integrity naming the offending index.
func IntegrityIndex(op, path string, index int, format string, args ...any) *Error {
	e := Integrity(op, path, format, args...)
	e.Level, e.index, e.indexed = "index", index, true
	return e
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IndexOf returns the offending index carried by err, if any.
func IndexOf(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Index()
	}
	return 0, false
}
