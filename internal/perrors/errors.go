// Package perrors defines the error kinds raised across the generation
// engine: validation, YAML parsing, generation, and backend errors.
package perrors

import "fmt"

// ValidationError is raised while a blueprint is being loaded or built, before
// any generation or IO happens. It carries the file, item and field names
// where available so a caller can point the user at the offending entry.
type ValidationError struct {
	File    string
	Item    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Item != "" {
		if e.Field != "" {
			msg = fmt.Sprintf("item %q, field %q: %s", e.Item, e.Field, msg)
		} else {
			msg = fmt.Sprintf("item %q: %s", e.Item, msg)
		}
	}
	if e.File != "" {
		msg = fmt.Sprintf("file %q: %s", e.File, msg)
	}
	return msg
}

// Validationf builds a ValidationError with no item/field context.
func Validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ValidationItemf builds a ValidationError scoped to an item.
func ValidationItemf(item, format string, args ...any) error {
	return &ValidationError{Item: item, Message: fmt.Sprintf(format, args...)}
}

// ValidationFieldf builds a ValidationError scoped to an item and field.
func ValidationFieldf(item, field, format string, args ...any) error {
	return &ValidationError{Item: item, Field: field, Message: fmt.Sprintf(format, args...)}
}

// WithFile attaches a file name to a ValidationError, matching the loader's
// contract of tagging errors with the originating blueprint file.
func WithFile(err error, file string) error {
	if ve, ok := err.(*ValidationError); ok {
		ve.File = file
		return ve
	}
	return err
}

// YAMLError is returned only by the blueprint loader; it carries the file
// name and the underlying parser diagnostic.
type YAMLError struct {
	File string
	Err  error
}

func (e *YAMLError) Error() string {
	return fmt.Sprintf("error parsing %q: %s", e.File, e.Err)
}

func (e *YAMLError) Unwrap() error { return e.Err }

// NewYAMLError wraps a parser error with the originating file name.
func NewYAMLError(file string, err error) error {
	return &YAMLError{File: file, Err: err}
}

// GenerationError is raised from within a generator's Next() call: uniqueness
// exhaustion, unresolved variables, bad gender, empty non-nullable choices,
// invalid template/Jinja expressions at evaluate time.
type GenerationError struct {
	Item    string
	Field   string
	Message string
}

func (e *GenerationError) Error() string {
	msg := e.Message
	if e.Item != "" {
		if e.Field != "" {
			return fmt.Sprintf("item %q, field %q: %s", e.Item, e.Field, msg)
		}
		return fmt.Sprintf("item %q: %s", e.Item, msg)
	}
	return msg
}

// Generationf builds a GenerationError with no item/field context.
func Generationf(format string, args ...any) error {
	return &GenerationError{Message: fmt.Sprintf(format, args...)}
}

// GenerationFieldf builds a GenerationError scoped to an item and field.
func GenerationFieldf(item, field, format string, args ...any) error {
	return &GenerationError{Item: item, Field: field, Message: fmt.Sprintf(format, args...)}
}

// BackendError wraps a connection, query, or constraint failure surfaced by a
// Backend implementation.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("backend error during %s: %s", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Backendf wraps an error with the operation that produced it.
func Backendf(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: err}
}
