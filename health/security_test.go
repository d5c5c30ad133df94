package health

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/vmeflow/component"
)

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty message",
			input: "",
			want:  "",
		},
		{
			name:  "clean message passes through",
			input: "event buffer overflow",
			want:  "event buffer overflow",
		},
		{
			name:  "unix path",
			input: "run config missing at /var/lib/vmeflow/runs/run042.json",
			want:  "run config missing at [PATH]",
		},
		{
			name:  "windows path",
			input: "listmode file locked: D:\\daq\\run042.mvmelst",
			want:  "listmode file locked: [PATH]",
		},
		{
			name:  "nats url",
			input: "cannot reach nats://daq-host:4222 after 5 attempts",
			want:  "cannot reach [URL] after 5 attempts",
		},
		{
			name:  "https url keeps surrounding text",
			input: "monitor upstream https://grafana.internal/api/v2 returned 503",
			want:  "monitor upstream [URL] returned 503",
		},
		{
			name:  "bare ip address",
			input: "MVLC unreachable at 10.0.177.20",
			want:  "MVLC unreachable at [IP]",
		},
		{
			name:  "ip with port collapses to both tags",
			input: "MVLC unreachable at 10.0.177.20:32768",
			want:  "MVLC unreachable at [IP][PORT]",
		},
		{
			name:  "bind port",
			input: "listener cannot bind :8861",
			want:  "listener cannot bind [PORT]",
		},
		{
			name:  "token assignment",
			input: "auth error: token=s3cr3t rejected",
			want:  "auth error: [REDACTED] rejected",
		},
		{
			name:  "password with colon",
			input: "ftp password:hunter2 in config",
			want:  "ftp [REDACTED] in config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeErrorMessage(tt.input))
		})
	}
}

// Component errors often carry the connection string that failed. The
// /healthz payload must never echo it back.
func TestFromComponentHealthSanitizesError(t *testing.T) {
	status := FromComponentHealth("readout-feed", component.HealthStatus{
		Healthy:   false,
		LastError: "dial nats://10.1.2.3:4222 failed",
	})

	assert.Equal(t, "dial [URL] failed", status.Message)
	assert.NotContains(t, status.Message, "4222")
	assert.NotContains(t, status.Message, "10.1.2.3")
}
