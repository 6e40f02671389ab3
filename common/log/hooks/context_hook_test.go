package hooks

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestContextHookRecordsCallSite(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.Out = &buf
	logger.AddHook(NewContextHook())

	logger.WithFields(logrus.Fields{"job": "1K5"}).Info("hello")

	out := buf.String()
	assert.Contains(t, out, "file:line")
	// The recorded location must be this call site, not a frame inside the
	// logging machinery, and must carry no trailing stack offset.
	assert.Contains(t, out, "context_hook_test.go:")
	assert.NotContains(t, out, "+0x")
	assert.NotContains(t, out, "entry.go:")
}
