// Package api implements the read-only status HTTP API.
//
// This package provides:
//   - GET /api/v1/health          component health (database, MQTT, InfluxDB)
//   - GET /api/v1/run             live snapshot of the current or last run
//   - GET /api/v1/scripts         scripts in the catalog
//   - GET /api/v1/scripts/{name}  one catalog entry with its document
//   - GET /api/v1/ws              WebSocket stream of run events
//   - GET /metrics                Prometheus exposition
//
// The server is started alongside a run so that dashboards and scrapers
// can follow it. It never changes engine state.
//
// # Graceful Degradation
//
// Every dependency except the logger is optional. Routes whose backing
// component is absent answer 503.
package api
