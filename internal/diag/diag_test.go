package diag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListErrMatchesEverySentinel(t *testing.T) {
	var l List
	l.Errorf(KindMultipleDrivers, Diagnostic{Module: "mem", Port: "irq"}, "two drivers")
	l.Errorf(KindMissingSignal, Diagnostic{Module: "dma", Signal: "awvalid"}, "missing")
	l.Warnf(KindUnconnectedOptionalSignal, Diagnostic{Module: "dma"}, "optional")

	err := l.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMultipleDrivers))
	assert.True(t, errors.Is(err, ErrNonCompliant))
	assert.False(t, errors.Is(err, ErrDirectionConflict))

	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Len(t, de.Diagnostics, 2, "warnings are not part of the error")
}

func TestListErrNilWithoutErrors(t *testing.T) {
	var l List
	l.Warnf(KindWidthMismatch, Diagnostic{}, "wider")
	assert.NoError(t, l.Err())
	assert.False(t, l.HasErrors())
}

func TestCounts(t *testing.T) {
	l := List{
		{Severity: SeverityError},
		{Severity: SeverityWarning},
		{Severity: SeverityWarning},
		{Severity: SeverityInfo},
	}
	e, w, i := l.Counts()
	assert.Equal(t, 1, e)
	assert.Equal(t, 2, w)
	assert.Equal(t, 1, i)
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{
		Kind:     KindUnconnectedRequiredSignal,
		Severity: SeverityError,
		Module:   "mem",
		Instance: "s_axi",
		Signal:   "aresetn",
		Message:  "no driver",
	}
	assert.Equal(t, "error [unconnected_required_signal] mem.s_axi.aresetn: no driver", d.String())
}

func TestSortedIsStable(t *testing.T) {
	l := List{
		{Module: "b", Kind: KindMissingSignal, Message: "1"},
		{Module: "a", Kind: KindMissingSignal, Message: "2"},
		{Module: "a", Kind: KindMissingSignal, Message: "3"},
	}
	s := l.Sorted()
	assert.Equal(t, []string{"2", "3", "1"}, []string{s[0].Message, s[1].Message, s[2].Message})
	assert.Equal(t, "1", l[0].Message, "original list untouched")
}
