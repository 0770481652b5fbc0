package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ied/internal/adapterclient"
	"ied/internal/cache"
	"ied/internal/config"
	"ied/internal/models"
	"ied/internal/registry"
	"ied/internal/subscription"
)

func newTestCache(t *testing.T) cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisCacheFromClient(client)
}

func healthyAdapterServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"UP"}`))
		case "/subscribe":
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunInstallsSubscriptionsOnHealthyAdapters(t *testing.T) {
	srv := healthyAdapterServer(t)

	reg, err := registry.New([]models.AdapterDescriptor{
		{Name: "chainA", ChainID: "chainA", BaseURL: srv.URL, PublishPath: "/publish", SubscribePath: "/subscribe", HealthPath: "/health"},
	}, adapterclient.DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	c := newTestCache(t)
	subMgr := subscription.New(reg, c, nil, time.Second, zaptest.NewLogger(t))

	cfg := &config.Config{
		Environment: "development",
		IEDBaseURL:  "http://ied",
		InternalSubscription: config.InternalSubscriptionConfig{
			EventTypes: []string{"*"},
		},
	}

	result, err := Run(context.Background(), cfg, c, reg, subMgr, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 1, result.HealthyAdapters)
	assert.Equal(t, 1, subMgr.Count())
}

func TestRunFailsFastInProductionWithZeroHealthyAdapters(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	reg, err := registry.New([]models.AdapterDescriptor{
		{Name: "chainA", ChainID: "chainA", BaseURL: down.URL, PublishPath: "/publish", SubscribePath: "/subscribe", HealthPath: "/health"},
	}, adapterclient.DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	c := newTestCache(t)
	subMgr := subscription.New(reg, c, nil, time.Second, zaptest.NewLogger(t))

	cfg := &config.Config{Environment: "production"}

	_, err = Run(context.Background(), cfg, c, reg, subMgr, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestRunContinuesInDevelopmentWithZeroHealthyAdapters(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	reg, err := registry.New([]models.AdapterDescriptor{
		{Name: "chainA", ChainID: "chainA", BaseURL: down.URL, PublishPath: "/publish", SubscribePath: "/subscribe", HealthPath: "/health"},
	}, adapterclient.DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	c := newTestCache(t)
	subMgr := subscription.New(reg, c, nil, time.Second, zaptest.NewLogger(t))

	cfg := &config.Config{Environment: "development"}

	result, err := Run(context.Background(), cfg, c, reg, subMgr, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 0, result.HealthyAdapters)
}
