// Package store provides durable storage for measurement records.
//
// Storage is SQLite with WAL mode. The connection pool is capped at a
// single connection: the attribution engine requires serializable
// read-modify-write of a trigger and its winning source, and SQLite
// provides that only through a single writer.
//
// All reads and writes used during attribution go through a DAO bound to
// one transaction, obtained from Store.RunInTransaction. A transaction
// either commits every side effect of one trigger's attribution or none of
// them.
package store
