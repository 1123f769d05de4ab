// Package journal keeps a local SQLite record of what happened to an
// appliance: connection status transitions and faults being raised or
// cleared.
//
// The journal is the audit trail that survives restarts and outlives the
// in-memory state store. A Recorder attaches to an appliance.Device and
// writes entries from its status and message callbacks; the HTTP API reads
// them back newest first.
//
//	repo := journal.NewSQLiteRepository(db.DB)
//	rec := journal.NewRecorder(repo, dev.Profile().Serial)
//	detach := rec.Attach(dev)
//	defer detach()
package journal
