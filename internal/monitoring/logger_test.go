package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLoggerCapturesOutput(t *testing.T) {
	orig := Logf
	defer func() { Logf = orig }()

	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})

	Logf("[TRACK] lost #%d", 3)
	assert.Equal(t, []string{"[TRACK] lost #3"}, got)
}

func TestSetLoggerNilMutes(t *testing.T) {
	orig := Logf
	defer func() { Logf = orig }()

	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("muted %d", 1) })
}
