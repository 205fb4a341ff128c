// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

/*
Package services provides suture.Service wrappers for Tidegate components.

Each wrapper adapts a component lifecycle to suture's context-aware Serve
pattern and implements fmt.Stringer so supervisor events name the service:

  - HTTPServerService bridges *http.Server's blocking ListenAndServe to
    Serve, with graceful Shutdown under a configurable drain timeout.
  - CacheJanitorService periodically sweeps expired cache entries so a
    durable store does not accumulate dead keys between reads.

The gateway's backend HealthChecker implements suture.Service directly and
needs no wrapper here.

Return values determine supervisor behavior: nil stops the service cleanly
with no restart, an error triggers a supervised restart, and ctx.Err() after
cancellation is the normal shutdown path.
*/
package services
