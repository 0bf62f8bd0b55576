// Package core provides the business logic for tabular file ingestion and
// account administration.
//
// The package is independent of any transport or storage engine. Web
// handlers, background jobs and tests drive it through [Service]; record
// stores and artifact storage are injected through the interfaces in
// store.go.
//
// # Ingestion
//
// [Service.Upload] stores the raw bytes under a random name, reads a bounded
// preview through the tabular package, suggests a type per column with
// [SuggestColumns] and persists a [File]. CSV is streamed and stops at the
// preview cap, so the recorded row count of a large CSV is provisional
// ([File.RowCountExact] is false) until the [Reconciler] recounts it in the
// background. Workbooks are read whole and are exact from the start.
//
// # Authorization
//
// Every file and user operation takes the acting [Actor] and consults
// [AccessPolicy] before touching data. File access is granted to owners and
// to holders of the matching override permission; listings filter instead of
// failing. User administration requires manage_users.
//
// # Error Handling
//
// Domain failures are returned as [*Error] with an [ErrorKind] the transport
// maps to a status code. Anything unclassified is internal; [MapError] turns
// it into a stable message and support code:
//
//   - DB001-DB003: Database errors (duplicates, connections, timeouts)
//   - FILE001-FILE005: File errors (size, parsing, missing artifacts)
//   - UPL001-UPL003: Upload errors (throttled, cancelled, timed out)
//
// # Audit Logging
//
// Mutations are recorded in the audit log with a severity:
//
//   - Low: registration, uploads, column and profile updates
//   - Medium: file deletions
//   - High: permission changes and user deletions
package core
