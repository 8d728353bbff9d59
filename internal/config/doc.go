// Package config defines the settings used by the folio binaries and provides
// helpers to load, validate and save them in YAML format.
//
// The Config type holds the HTTP listen address, store and cache connection
// parameters, and the countdown/reminder policy applied to issued folios.
package config
