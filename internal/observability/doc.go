// Package observability provides structured logging and health/readiness
// checks for the interchain event distributor.
//
// Initialize the logger once at startup:
//
//	logger, err := observability.InitLogger(cfg.Environment)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Register health and readiness checks as components come online:
//
//	checker := observability.NewHealthChecker(version)
//	checker.RegisterReadinessCheck("cache", observability.RedisHealthCheck(cache.Ping))
//	checker.RegisterReadinessCheck("adapter:chainA", observability.AdapterHealthCheck("chainA", func(ctx context.Context) error {
//	    if !client.HealthCheck(ctx) {
//	        return errors.New("adapter chainA is not UP")
//	    }
//	    return nil
//	}))
//
//	http.HandleFunc("/health", checker.HealthHandler())
package observability
