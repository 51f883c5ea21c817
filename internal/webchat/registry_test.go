package webchat

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/medibook/internal/observability/metrics"
)

const sessionMetrics = `
# HELP medibook_sessions_active Conversation sessions currently registered
# TYPE medibook_sessions_active gauge
medibook_sessions_active %ACTIVE%
# HELP medibook_sessions_rejected_total Connections refused because the session registry was full
# TYPE medibook_sessions_rejected_total counter
medibook_sessions_rejected_total %REJECTED%
`

func expectSessions(t *testing.T, reg *prometheus.Registry, active, rejected string) {
	t.Helper()
	want := strings.NewReplacer("%ACTIVE%", active, "%REJECTED%", rejected).Replace(sessionMetrics)
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(want),
		"medibook_sessions_active", "medibook_sessions_rejected_total"))
}

func TestRegistry_Capacity(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(2, metrics.NewBookingMetrics(reg), nil)
	a, b, c := &Client{ID: "a"}, &Client{ID: "b"}, &Client{ID: "c"}

	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))
	assert.ErrorIs(t, r.Register(c), ErrRegistryFull)
	assert.Equal(t, 2, r.Count())
	expectSessions(t, reg, "2", "1")

	r.Remove("a")
	r.Remove("a")
	assert.Equal(t, 1, r.Count())
	expectSessions(t, reg, "1", "1")
	require.NoError(t, r.Register(c))
}

func TestRegistry_Unbounded(t *testing.T) {
	r := NewRegistry(0, nil, nil)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Register(&Client{ID: id}))
	}
	assert.Equal(t, 3, r.Count())
}
