package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordLogger struct{ lines []string }

func (r *recordLogger) Debug(format string, args ...any) { r.record("DEBUG", format, args...) }
func (r *recordLogger) Info(format string, args ...any)  { r.record("INFO", format, args...) }
func (r *recordLogger) Warn(format string, args ...any)  { r.record("WARN", format, args...) }
func (r *recordLogger) Error(format string, args ...any) { r.record("ERROR", format, args...) }

func (r *recordLogger) record(tag, format string, args ...any) {
	r.lines = append(r.lines, tag+" "+fmt.Sprintf(format, args...))
}

func TestMultiFansOutToEveryLogger(t *testing.T) {
	a, b := &recordLogger{}, &recordLogger{}
	l := Multi(a, nil, b)

	l.Info("run %d", 1)
	l.Error("boom")

	want := []string{"INFO run 1", "ERROR boom"}
	assert.Equal(t, want, a.lines)
	assert.Equal(t, want, b.lines)
}

func TestMultiCollapsesDegenerateCases(t *testing.T) {
	assert.Equal(t, Nop(), Multi())

	a := &recordLogger{}
	assert.Equal(t, Logger(a), Multi(a))
	assert.Equal(t, Logger(a), Multi(nil, a, nil))

	// Nested fan-outs are flattened rather than stacked.
	b := &recordLogger{}
	Multi(Multi(a, b), a).Info("once")
	assert.Equal(t, []string{"INFO once", "INFO once"}, a.lines)
	assert.Equal(t, []string{"INFO once"}, b.lines)
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop(), OrNop(nil))

	var typed *recordLogger
	assert.Equal(t, Nop(), OrNop(typed))

	a := &recordLogger{}
	assert.Equal(t, Logger(a), OrNop(a))
}
