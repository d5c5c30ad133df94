package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	require.NotNil(t, client)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, -1, client.MaxReconnects())
	assert.Equal(t, 2*time.Second, client.ReconnectWait())
	assert.Equal(t, 30*time.Second, client.PingInterval())
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, time.Second, client.Backoff())
	assert.False(t, client.IsHealthy())
}

func TestNewClientAppliesOptions(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithMaxReconnects(5),
		WithReconnectWait(500*time.Millisecond),
		WithPingInterval(time.Minute),
		WithClientName("vmeflow-test"),
		WithCompression(true),
		WithCircuitBreaker(3, 10*time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, 5, client.MaxReconnects())
	assert.Equal(t, 500*time.Millisecond, client.ReconnectWait())
	assert.Equal(t, time.Minute, client.PingInterval())
	assert.Equal(t, "vmeflow-test", client.clientName)
	assert.True(t, client.compression)
	assert.Equal(t, int32(3), client.circuitThreshold)
	assert.Equal(t, 10*time.Second, client.maxBackoff)
}

func TestNewClientRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  ClientOption
	}{
		{"nil logger", WithLogger(nil)},
		{"maxReconnects below -1", WithMaxReconnects(-2)},
		{"negative reconnectWait", WithReconnectWait(-time.Second)},
		{"zero pingInterval", WithPingInterval(0)},
		{"zero connection timeout", WithConnectionTimeout(0)},
		{"zero drain timeout", WithDrainTimeout(0)},
		{"zero circuit threshold", WithCircuitBreaker(0, time.Second)},
		{"zero max backoff", WithCircuitBreaker(5, 0)},
		{"negative health interval", WithHealthCheckInterval(-time.Second)},
		{"empty username", WithCredentials("", "secret")},
		{"empty token", WithToken("")},
		{"empty client name", WithClientName("")},
		{"nil metrics registry", WithMetrics(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient("nats://localhost:4222", tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestConnectionStatusString(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusCircuitOpen, "circuit_open"},
		{ConnectionStatus(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithCircuitBreaker(3, time.Minute),
	)
	require.NoError(t, err)

	// Below threshold the circuit stays closed
	client.recordFailure()
	client.recordFailure()
	assert.NotEqual(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(2), client.Failures())

	// Threshold failure opens the circuit and doubles backoff
	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, 2*time.Second, client.Backoff())
}

func TestCircuitBreakerBackoffDoubling(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithCircuitBreaker(1, 8*time.Second),
	)
	require.NoError(t, err)

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, 2*time.Second, client.Backoff())

	// Failures while open keep widening the backoff up to the cap
	client.recordFailure()
	assert.Equal(t, 4*time.Second, client.Backoff())
	client.recordFailure()
	assert.Equal(t, 8*time.Second, client.Backoff())
	client.recordFailure()
	assert.Equal(t, 8*time.Second, client.Backoff(), "backoff must not exceed maxBackoff")
}

func TestResetCircuitRestoresDefaults(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithCircuitBreaker(1, time.Minute),
	)
	require.NoError(t, err)

	client.recordFailure()
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, time.Second, client.Backoff())
}

func TestTestCircuitClosesOpenCircuit(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithCircuitBreaker(1, time.Minute),
	)
	require.NoError(t, err)

	client.recordFailure()
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.testCircuit()
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestConnectFailsFastWhenCircuitOpen(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	client.status.Store(StatusCircuitOpen)

	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestWaitForConnectionTimesOut(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = client.WaitForConnection(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublishRequiresConnection(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = client.Publish(context.Background(), "vmeflow.readout", []byte("data"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSubscribeRequiresConnection(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	_, err = client.Subscribe(context.Background(), "vmeflow.readout",
		func(context.Context, []byte) {})
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.QueueSubscribe(context.Background(), "vmeflow.readout", "feed",
		func(context.Context, []byte) {})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestRTTRequiresConnection(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	_, err = client.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestGetStatusReportsFailures(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	before := time.Now()
	client.recordFailure()
	client.recordFailure()

	status := client.GetStatus()
	assert.Equal(t, StatusDisconnected, status.Status)
	assert.Equal(t, int32(2), status.FailureCount)
	assert.False(t, status.LastFailureTime.Before(before))
	assert.Equal(t, int32(0), status.Reconnects)
	assert.Equal(t, time.Duration(0), status.RTT)
}

func TestCloseIsIdempotent(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, client.Close(ctx))
	require.NoError(t, client.Close(ctx))
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestCloseClearsCredentials(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithCredentials("user", "secret"),
		WithToken("token"),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, client.Close(ctx))

	assert.Empty(t, client.username)
	assert.Empty(t, client.password)
	assert.Empty(t, client.token)
}

func TestConnectionOptionsIncludeAuth(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithCredentials("user", "secret"),
		WithClientName("vmeflow"),
	)
	require.NoError(t, err)

	// Base handlers plus auth plus name
	opts := client.ConnectionOptions()
	assert.GreaterOrEqual(t, len(opts), 11)
}

func TestOnHealthChangeCallback(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	called := make(chan bool, 1)
	client.OnHealthChange(func(healthy bool) {
		called <- healthy
	})

	client.handleClosed(nil)

	select {
	case healthy := <-called:
		assert.False(t, healthy)
	case <-time.After(time.Second):
		t.Fatal("health change callback was not invoked")
	}
	assert.Equal(t, StatusDisconnected, client.Status())
}
