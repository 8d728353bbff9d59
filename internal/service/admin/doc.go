// Package admin implements the folio-admin command line client. It
// talks to the folio server's HTTP API to confirm, override, stop, and
// inspect folios from an operator's terminal.
package admin
