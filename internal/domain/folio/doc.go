// Package folio holds the domain model shared by the lifecycle core:
// the Folio identifier, its persisted Record, the Status state machine,
// and the Actor performing administrative actions.
package folio
