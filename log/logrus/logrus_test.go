package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/memocache"
)

func TestLoggerFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	cause := errors.New("boom")
	l.Error("flush all failed", memocache.Fields{"err": cause, "group": "g"})
	l.Debug("plain", nil)

	require.Len(t, hook.AllEntries(), 2)
	e := hook.AllEntries()[0]
	assert.Equal(t, logrus.ErrorLevel, e.Level)
	assert.Equal(t, "flush all failed", e.Message)
	assert.Equal(t, "memocache", e.Data["component"])
	assert.Equal(t, "g", e.Data["group"])
	assert.Equal(t, cause, e.Data[logrus.ErrorKey])

	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
}
