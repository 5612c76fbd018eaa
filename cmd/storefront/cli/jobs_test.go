package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJobsCLI(t *testing.T) *JobsCLI {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewJobsCLI(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRunRequiresCommand(t *testing.T) {
	c := newJobsCLI(t)
	var out bytes.Buffer

	assert.Error(t, c.Run(context.Background(), nil, &out))
	assert.Error(t, c.Run(context.Background(), []string{"trigger"}, &out))
	assert.Error(t, c.Run(context.Background(), []string{"purge"}, &out))
	assert.Empty(t, out.String())
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	c := newJobsCLI(t)

	_, err := c.Trigger(context.Background(), "mail:send")
	assert.ErrorContains(t, err, "unsupported job mail:send")
}

func TestNilCLIIsNotConfigured(t *testing.T) {
	var c *JobsCLI

	_, err := c.Trigger(context.Background(), "rbac:catalog_sync")
	assert.ErrorContains(t, err, "not configured")
	_, err = c.InspectQueue(context.Background())
	assert.ErrorContains(t, err, "not configured")
}
