// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

/*
Package supervisor provides process supervision for Tidegate using suture v4.

The supervisor tree organizes the gateway's long-running services into two
layers for failure isolation:

	RootSupervisor ("tidegate")
	├── EdgeSupervisor ("edge-layer")
	│   └── HTTPServerService
	└── MaintenanceSupervisor ("maintenance-layer")
	    ├── HealthChecker (backend /health probes)
	    └── CacheJanitorService (expired entry sweeps)

A crash in a maintenance loop never takes down the HTTP listener; the proxy
keeps serving with the last known backend health until the loop restarts.
Crashed services restart automatically with exponential backoff, and context
cancellation triggers an orderly shutdown of the whole tree.

# Usage

	tree, err := supervisor.NewTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    log.Fatal(err)
	}
	tree.AddEdgeService(services.NewHTTPServerService(server, 10*time.Second))
	tree.AddMaintenanceService(checker)
	tree.AddMaintenanceService(services.NewCacheJanitorService(cache, 10*time.Minute))

	if err := tree.Serve(ctx); err != nil {
	    log.Printf("supervisor stopped: %v", err)
	}

# Service Interface

All services implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Returning nil stops the service for good; returning an error triggers a
supervised restart; a cancelled context means shutdown was requested and the
service should return promptly.

# Debugging Shutdown Issues

If services do not stop within the configured timeout,
UnstoppedServiceReport lists the stragglers.
*/
package supervisor
