// Package core provides the business logic for the results portal.
//
// This package holds all domain logic independent of any UI, transport or
// database driver. It is used by the web server, the portalctl CLI and the
// tests without modification.
//
// # Architecture
//
//   - Store: persistence is reached only through the [Store] and [Queries]
//     interfaces. Implementations live in internal/store.
//   - Reconciler: applies one parsed [Batch] to the identity and score
//     stores and returns a [Summary].
//   - Service: the entry point for callers. It gates imports, owns the
//     transaction and serves the dashboard aggregations.
//
// # Batch Import
//
//  1. Caller hands [Service.ImportBatch] an io.Reader with the CSV upload
//  2. The upload gate ([UploadLimiter]) admits one batch at a time
//  3. [ReadBatch] strips a BOM, sanitises UTF-8 and checks the header
//  4. The [Reconciler] runs every row inside a single store transaction
//  5. The transaction commits, or rolls back on a storage error or dry run
//
// Row problems never fail a batch. They are counted in [Summary.Errors]
// and logged with their line number.
//
// # Student Identifiers
//
// Admins and students share one id space. A batch row claiming an id held
// by an admin creates the student at max(id)+1 and reports the remap. The
// claimed id is stored on the student so later batches find the same
// account again.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a code for support reference:
//
//   - VAL001-VAL002: Batch structure (missing columns, no header)
//   - FILE001-FILE005: File errors (size, format, empty)
//   - DB001-DB005: Database errors (duplicates, connections, locks, id space)
//   - UPL001-UPL003: Upload gate and request lifecycle
//   - AUTH001-AUTH004: Login, role and form token checks
package core
