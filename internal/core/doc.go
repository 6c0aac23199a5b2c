// Package core provides the business logic of the catalog import pipeline.
//
// The package has no transport dependencies. Object storage, the unit-of-work
// queue, the transactional product store and the notification channel are all
// reached through small interfaces so the same code runs behind the HTTP event
// intake, the queue worker, the CLI and the tests.
//
// # Pipeline
//
//	object created ──► FileParser ──► queue ──► Processor ──► store + notification
//
//   - [ValidateRow] turns one decoded CSV row into an [Item] or a
//     [RejectionError]. It is pure and never returns a partial item.
//   - [EncodeUnit] and [DecodeUnit] convert an [Item] to and from the JSON
//     body carried by the queue.
//   - [FileParser] streams one uploaded object, enqueues one unit per valid
//     row and then relocates the object into the processed namespace.
//   - [Processor] commits a batch of queued units. Each unit is decoded,
//     validated, assigned a fresh identity and written as a product plus its
//     stock in one transaction. Failures are isolated per unit and reported in
//     the returned [BatchOutcome].
//   - [ParseLimiter] bounds how many files are parsed at once.
//
// # Delivery semantics
//
// Relocation is copy-then-delete. A crash between the two steps leaves the
// source object in the upload namespace and a retriggered parse enqueues every
// row again. The processor assigns identities at commit time, so a redelivered
// unit produces a second product. The pipeline is at-least-once end to end.
//
// # Error Handling
//
// Sentinel errors ([ErrSourceUnavailable], [ErrMalformedFile], [ErrEnqueue],
// [ErrRelocate], [ErrDecodeUnit], [ErrProductExists], [ErrTooManyParses]) are wrapped with context
// and matched with errors.Is. Errors shown to HTTP clients are mapped to coded
// messages with [MapError].
package core
