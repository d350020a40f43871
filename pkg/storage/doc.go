// Package storage opens the PostgreSQL and Redis connections used by the
// billing service and the renewal scheduler.
//
// ConnectionManager owns a primary and optional read replicas. Subscription
// writes and row locks always use Primary; read-model queries may use
// Replica, which falls back to the primary when no replica is configured.
//
//	cm, err := storage.NewConnectionManager(storage.ConnectionConfig{
//		PrimaryURL:  cfg.PostgresURL,
//		ReplicaURLs: storage.ParseReplicaURLs(cfg.PostgresReplicaURLs),
//		MaxConns:    cfg.PostgresMaxConns,
//	}, log)
//
// NewRedisClient is used for the scheduler's distributed run lock and the
// readiness check.
package storage
