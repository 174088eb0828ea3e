// Package server implements the UDP listener for EmotiBit records and the HTTP
// API endpoints. Datagrams are decoded by a worker pool, with every source
// pinned to one worker so its records keep arrival order. Records are grouped
// into per-device sessions and counted for the /stats and /metrics endpoints.
package server
