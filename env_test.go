package orabridge

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semihalev/go-orabridge/nca"
	"github.com/semihalev/go-orabridge/nca/ncafake"
)

// newTestConn opens a connection on a fresh fake adapter. The cleanup
// closes the connection if the test left it open, stops the env and checks
// that nothing leaked.
func newTestConn(t *testing.T, fopts ncafake.Options, opts ...Option) (*Connection, *ncafake.Adapter) {
	t.Helper()
	fake := ncafake.New(fopts)
	env, err := NewEnv(fake, append([]Option{WithWorkers(2)}, opts...)...)
	require.NoError(t, err)

	conn, err := env.Connect(context.Background(), nca.ConnectParams{Username: "scott", Password: "tiger", ConnectString: "localhost/XEPDB1"})
	require.NoError(t, err)

	t.Cleanup(func() {
		if conn.usable() == nil {
			assert.NoError(t, conn.Close(context.Background()))
		}
		require.NoError(t, env.Close())
		st := fake.Stats()
		assert.Zero(t, st.LiveAllocs, "live allocations")
		assert.Zero(t, st.DoubleFrees, "double frees")
		assert.Zero(t, st.BadReleases, "bad releases")
		assert.Zero(t, st.LiveStatements, "live statements")
		assert.Zero(t, st.LiveLobs, "live LOBs")
		assert.Zero(t, st.LiveConns, "live connections")
		assert.Zero(t, st.LiveErrorContexts, "live error contexts")
		assert.Zero(t, st.Violations, "overlapping native calls")
		assert.Zero(t, env.Arena().Live(), "arena handles")
	})
	return conn, fake
}

func TestNewEnvValidatesConfig(t *testing.T) {
	fake := ncafake.New(ncafake.Options{})

	_, err := NewEnv(fake, WithFetchArraySize(0))
	require.Error(t, err)
	assert.True(t, IsError(err, ErrUsage))

	_, err = NewEnv(fake, WithWorkers(0))
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.FetchAsBuffer = []nca.DBType{nca.DBTypeClob}
	_, err = NewEnv(fake, WithConfig(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NJS-021")
}

func TestEnvRegistersMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	fake := ncafake.New(ncafake.Options{})
	env, err := NewEnv(fake, WithRegisterer(reg), WithWorkers(1))
	require.NoError(t, err)
	defer env.Close()

	conn, err := env.Connect(context.Background(), nca.ConnectParams{Username: "scott"})
	require.NoError(t, err)
	require.NoError(t, conn.Ping(context.Background()))
	require.NoError(t, conn.Close(context.Background()))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["orabridge_tasks_submitted_total"])
	assert.True(t, names["orabridge_tasks_completed_total"])

	// A second env cannot register the same collectors.
	_, err = NewEnv(fake, WithRegisterer(reg))
	assert.Error(t, err)
}

func TestConnectFailure(t *testing.T) {
	fake := ncafake.New(ncafake.Options{})
	env, err := NewEnv(fake, WithWorkers(1))
	require.NoError(t, err)
	defer env.Close()

	_, err = env.Connect(context.Background(), nca.ConnectParams{Username: "invalid"})
	require.Error(t, err)
	assert.True(t, IsError(err, ErrNative))
	assert.Contains(t, err.Error(), "ORA-01017")
	assert.Zero(t, fake.Stats().LiveErrorContexts)
}

func TestClosedEnvRejectsConnect(t *testing.T) {
	env, err := NewEnv(ncafake.New(ncafake.Options{}), WithWorkers(1))
	require.NoError(t, err)
	require.NoError(t, env.Close())
	require.NoError(t, env.Close())

	_, err = env.Connect(context.Background(), nca.ConnectParams{})
	assert.ErrorIs(t, err, ErrSchedulerClosed)
}
