// Package sync contains the domain model for the bidirectional synchronization
// engine that keeps CRM business records (contacts, products, sales documents)
// consistent with their counterparts in an external accounting system.
//
// The package defines the entities (SyncMapping, SyncJob, SyncBatch), the record
// union crossing the converter boundary, the classified error taxonomy that makes
// retry decisions data rather than control flow, and the ports implemented by the
// infrastructure layer (mapping store, job/batch persistence, remote API client,
// local record store, status tracker).
package sync
