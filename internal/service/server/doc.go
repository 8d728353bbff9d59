// Package server wires the folio lifecycle core to its storage,
// notification, and HTTP transport layers and runs the long-lived
// folio-server process.
package server
