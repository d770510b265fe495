// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection layer of hioload-netio.
//
// Provides:
//   - TOML configuration with defaults, validation and hot reload
//   - Prometheus collectors on a private registry
//   - Named debug probes with state export
package control
