/*
Package session coordinates access to persisted issuance workflows.

Control calls on one workflow are serialized with ref-counted in-process locks,
optionally backed by a ports.DistributedLocker when several replicas share a store.
Snapshot writes go through a separate per-workflow lock and are dropped when
an equal or newer version has already been persisted.
*/
package session
