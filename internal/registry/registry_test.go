package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ied/internal/adapterclient"
	"ied/internal/models"
)

func descriptors(urls ...string) []models.AdapterDescriptor {
	out := make([]models.AdapterDescriptor, len(urls))
	for i, u := range urls {
		out[i] = models.AdapterDescriptor{
			Name:          "chain" + string(rune('A'+i)),
			ChainID:       "chain" + string(rune('A'+i)),
			BaseURL:       u,
			PublishPath:   "/publish",
			SubscribePath: "/subscribe",
			HealthPath:    "/health",
		}
	}
	return out
}

func TestNewFailsOnZeroAdapters(t *testing.T) {
	_, err := New(nil, adapterclient.DefaultConfig(), zap.NewNop())
	require.Error(t, err)
}

func TestNewBuildsLookups(t *testing.T) {
	reg, err := New(descriptors("http://a", "http://b"), adapterclient.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	assert.Len(t, reg.All(), 2)
	assert.Equal(t, []string{"chainA", "chainB"}, reg.Names())
	assert.Equal(t, []string{"chainA", "chainB"}, reg.ChainIDs())

	c, ok := reg.ByName("chainA")
	require.True(t, ok)
	assert.Equal(t, "chainA", c.Name())

	c, ok = reg.ByChainID("chainB")
	require.True(t, ok)
	assert.Equal(t, "chainB", c.Name())

	_, ok = reg.ByName("missing")
	assert.False(t, ok)
}

func TestHealthCheckUpdatesSnapshot(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"UP"}`))
	}))
	defer up.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	reg, err := New(descriptors(up.URL, down.URL), adapterclient.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	results := reg.HealthCheck(context.Background())
	assert.True(t, results["chainA"])
	assert.False(t, results["chainB"])

	assert.Equal(t, 1, reg.HealthyCount())
	snap := reg.Snapshot()
	assert.True(t, snap["chainA"])
	assert.False(t, snap["chainB"])
}
