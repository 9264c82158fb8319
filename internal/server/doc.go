// Package server provides HTTP server management for the holder and verifier
// roles.
//
// Architecture:
//   - RouteProvider: each role implements this to contribute routes
//   - Manager: combines RouteProviders into one HTTP server and adds the
//     shared middleware and the /health and /status endpoints
//
// Usage:
//
//	mgr := server.NewManager(&server.ServerConfig{
//	    HTTPAddress:  cfg.Server.Host,
//	    HTTPPort:     cfg.Server.Port,
//	    CORS:         cfg.Server.CORS,
//	    LoggingLevel: cfg.Logging.Level,
//	}, logger)
//
//	mgr.AddProvider(server.NewHolderProvider(handlers))
//	mgr.AddProvider(server.NewVerifierProvider(handlers, limiter, logger))
//
//	mgr.Start(ctx)
package server
