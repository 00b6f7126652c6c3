package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationMarshalsAsString(t *testing.T) {
	b, err := json.Marshal(ServiceInfo{
		ServiceDescriptor: ServiceDescriptor{Name: "ocr", HealthTimeout: Duration(time.Second)},
		Status:            StateRunning,
		LastHealth:        &HealthResult{Healthy: true, Latency: Duration(1500 * time.Millisecond)},
	})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"healthTimeout":"1s"`)
	assert.Contains(t, string(b), `"latency":"1.5s"`)
}

func TestDurationUnmarshal(t *testing.T) {
	var desc ServiceDescriptor
	require.NoError(t, json.Unmarshal([]byte(`{"name":"ocr","healthTimeout":"2s"}`), &desc))
	assert.Equal(t, Duration(2*time.Second), desc.HealthTimeout)

	// older daemons sent nanoseconds
	require.NoError(t, json.Unmarshal([]byte(`{"healthTimeout":3000000000}`), &desc))
	assert.Equal(t, Duration(3*time.Second), desc.HealthTimeout)

	assert.Error(t, json.Unmarshal([]byte(`{"healthTimeout":"soon"}`), &desc))
	assert.Error(t, json.Unmarshal([]byte(`{"healthTimeout":true}`), &desc))
	assert.Equal(t, "2m0s", Duration(2*time.Minute).String())
}
