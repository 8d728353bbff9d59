// Package httpapi exposes the folio lifecycle over HTTP: issuance and
// trigger endpoints for the conversational flow and the admin surface,
// plus the public consulta status page reached via the document's QR code.
package httpapi
