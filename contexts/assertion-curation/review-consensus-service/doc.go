// Package reviewconsensus implements the review consensus service inside the
// assertion-curation context.
//
// The module hands documents to reviewers under exclusive, expiring leases,
// validates and atomically records their decisions, derives conflicts and an
// arbitration queue from the append-only decision log, records terminal admin
// rulings, and exports the finalized consensus as JSON lines or immutable
// snapshots. Business rules live in the application/domain layers; storage,
// vocabulary and file publishing sit behind ports and adapters.
package reviewconsensus
