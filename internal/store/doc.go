// Package store is the SQLite entity manager.
//
// Entities are stored as canonical JSON documents in a single table keyed
// by collection (the entity name) and identifier. Queries are compiled by
// querysql, so every condition shape the model supports runs here.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - case_sensitive_like=ON: LIKE matches the other stores' case rules
//
// Results are ordered by the caller's sorts and then by identifier, so
// identical queries return identical pages.
package store
