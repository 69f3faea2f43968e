package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r, err := New("pipekv_test")
	require.NoError(t, err)

	start := time.Now()
	r.Request("insert", "ok", start)
	r.Request("insert", "ok", start)
	r.Request("insert", "invalid", start)
	r.Request("", "invalid", start)
	r.Evicted("lru")
	r.ProtocolError()
	r.Connections(3)

	assert.Equal(t, 2.0, r.Counter("request", "insert", "ok"))
	assert.Equal(t, 1.0, r.Counter("request", "insert", "invalid"))
	assert.Equal(t, 1.0, r.Counter("request", "unknown", "invalid"))
	assert.Equal(t, 1.0, r.Counter("evicted", "lru"))
	assert.Equal(t, 1.0, r.Counter("protocol_error"))
	assert.Zero(t, r.Counter("request", "search", "ok"))
	assert.NotNil(t, r.Sink())
}
