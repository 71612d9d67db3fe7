// Package diag defines the diagnostics every check in the tool reports.
//
// Checks never stop at the first problem. They return a List with one entry
// per violation, and the caller turns the list into an error with List.Err
// when it needs one. The resulting *Error matches the sentinel of every kind
// it contains, so callers can use errors.Is without walking the list.
package diag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a diagnostic.
type Kind string

const (
	KindNotFound                  Kind = "not_found"
	KindAmbiguousInterface        Kind = "ambiguous_interface"
	KindNonCompliant              Kind = "non_compliant"
	KindMissingSignal             Kind = "missing_signal"
	KindDirectionMismatch         Kind = "direction_mismatch"
	KindWidthMismatch             Kind = "width_mismatch"
	KindUnresolvedWidth           Kind = "unresolved_width"
	KindNoSignalsBound            Kind = "no_signals_bound"
	KindDirectionConflict         Kind = "direction_conflict"
	KindMultipleDrivers           Kind = "multiple_drivers"
	KindUnconnectedRequiredSignal Kind = "unconnected_required_signal"
	KindUnconnectedOptionalSignal Kind = "unconnected_optional_signal"
	KindIncompatibleInterfaces    Kind = "incompatible_interfaces"
	KindDanglingOutput            Kind = "dangling_output"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Sentinel errors, one per kind that can fail an operation.
var (
	ErrNotFound                  = errors.New("not found")
	ErrAmbiguousInterface        = errors.New("ambiguous interface")
	ErrNonCompliant              = errors.New("interface not compliant")
	ErrDirectionConflict         = errors.New("direction conflict")
	ErrMultipleDrivers           = errors.New("multiple drivers")
	ErrUnconnectedRequiredSignal = errors.New("unconnected required signal")
	ErrWidthMismatch             = errors.New("width mismatch")
	ErrIncompatibleInterfaces    = errors.New("incompatible interfaces")
)

// compliance-level kinds all roll up to ErrNonCompliant.
var sentinels = map[Kind]error{
	KindNotFound:                  ErrNotFound,
	KindAmbiguousInterface:        ErrAmbiguousInterface,
	KindNonCompliant:              ErrNonCompliant,
	KindMissingSignal:             ErrNonCompliant,
	KindDirectionMismatch:         ErrNonCompliant,
	KindNoSignalsBound:            ErrNonCompliant,
	KindWidthMismatch:             ErrWidthMismatch,
	KindDirectionConflict:         ErrDirectionConflict,
	KindMultipleDrivers:           ErrMultipleDrivers,
	KindUnconnectedRequiredSignal: ErrUnconnectedRequiredSignal,
	KindIncompatibleInterfaces:    ErrIncompatibleInterfaces,
}

// Sentinel returns the sentinel error for a kind, or nil.
func Sentinel(k Kind) error { return sentinels[k] }

// Diagnostic is one finding, located by module, interface and signal.
type Diagnostic struct {
	Kind      Kind     `json:"kind"`
	Severity  Severity `json:"severity"`
	Module    string   `json:"module,omitempty"`
	Interface string   `json:"interface,omitempty"`
	Instance  string   `json:"instance,omitempty"`
	Signal    string   `json:"signal,omitempty"`
	Port      string   `json:"port,omitempty"`
	Message   string   `json:"message"`
}

func (d Diagnostic) String() string {
	var loc []string
	if d.Module != "" {
		loc = append(loc, d.Module)
	}
	if d.Instance != "" {
		loc = append(loc, d.Instance)
	} else if d.Interface != "" {
		loc = append(loc, d.Interface)
	}
	if d.Signal != "" {
		loc = append(loc, d.Signal)
	} else if d.Port != "" {
		loc = append(loc, d.Port)
	}
	if len(loc) == 0 {
		return fmt.Sprintf("%s [%s]: %s", d.Severity, d.Kind, d.Message)
	}
	return fmt.Sprintf("%s [%s] %s: %s", d.Severity, d.Kind, strings.Join(loc, "."), d.Message)
}

// IsError reports whether the diagnostic fails the operation.
func (d Diagnostic) IsError() bool { return d.Severity == SeverityError }

// List is an ordered collection of diagnostics.
type List []Diagnostic

// Add appends a diagnostic.
func (l *List) Add(d Diagnostic) { *l = append(*l, d) }

// Errorf appends an error-severity diagnostic built from a template.
func (l *List) Errorf(kind Kind, tmpl Diagnostic, format string, args ...any) {
	tmpl.Kind = kind
	tmpl.Severity = SeverityError
	tmpl.Message = fmt.Sprintf(format, args...)
	l.Add(tmpl)
}

// Warnf appends a warning-severity diagnostic built from a template.
func (l *List) Warnf(kind Kind, tmpl Diagnostic, format string, args ...any) {
	tmpl.Kind = kind
	tmpl.Severity = SeverityWarning
	tmpl.Message = fmt.Sprintf(format, args...)
	l.Add(tmpl)
}

// Errors returns the error-severity entries.
func (l List) Errors() List { return l.filter(SeverityError) }

// Warnings returns the warning-severity entries.
func (l List) Warnings() List { return l.filter(SeverityWarning) }

func (l List) filter(s Severity) List {
	var out List
	for _, d := range l {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

// HasErrors reports whether any entry is an error.
func (l List) HasErrors() bool {
	for _, d := range l {
		if d.IsError() {
			return true
		}
	}
	return false
}

// OfKind returns entries with the given kind.
func (l List) OfKind(k Kind) List {
	var out List
	for _, d := range l {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

// Counts returns the number of errors, warnings and info entries.
func (l List) Counts() (errs, warns, infos int) {
	for _, d := range l {
		switch d.Severity {
		case SeverityError:
			errs++
		case SeverityWarning:
			warns++
		case SeverityInfo:
			infos++
		}
	}
	return errs, warns, infos
}

// Sorted returns a copy ordered by module, instance, signal and kind.
// Insertion order is kept for entries that compare equal.
func (l List) Sorted() List {
	out := append(List(nil), l...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		if a.Instance != b.Instance {
			return a.Instance < b.Instance
		}
		if a.Signal != b.Signal {
			return a.Signal < b.Signal
		}
		return a.Kind < b.Kind
	})
	return out
}

// Err returns nil when the list has no errors, otherwise an *Error holding
// every error-severity entry.
func (l List) Err() error {
	errs := l.Errors()
	if len(errs) == 0 {
		return nil
	}
	return &Error{Diagnostics: errs}
}

// Error carries a complete list of error diagnostics.
type Error struct {
	Diagnostics List
}

func (e *Error) Error() string {
	if len(e.Diagnostics) == 1 {
		return e.Diagnostics[0].String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors:", len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		b.WriteString("\n  - ")
		b.WriteString(d.String())
	}
	return b.String()
}

// Is matches the sentinel of any contained diagnostic kind.
func (e *Error) Is(target error) bool {
	for _, d := range e.Diagnostics {
		if s := sentinels[d.Kind]; s != nil && s == target {
			return true
		}
	}
	return false
}
