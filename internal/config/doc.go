// Package config loads, normalizes, and validates bundleeval configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// BUNDLEEVAL_SERVICE_COMMAND and PORT. The Config type carries every knob the
// coordinator, workers and service handles need, so ports, paths and header
// sets are decided once and threaded through constructors.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
