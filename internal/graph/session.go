package graph

import "context"

// Tx is the subset of neo4j.ManagedTransaction the writer needs: run one
// Cypher statement and surface any error, including from consuming its
// result summary.
type Tx interface {
	Run(ctx context.Context, cypher string, params map[string]any) error
}

// Session is the subset of neo4j.SessionWithContext the writer needs.
// Mirroring the driver's own shape (rather than wrapping *neo4j.Session
// directly) lets tests substitute an in-memory fake with no network calls.
type Session interface {
	ExecuteWrite(ctx context.Context, work func(tx Tx) (any, error)) (any, error)
	Close(ctx context.Context) error
}

// SessionFactory opens a new Session scoped to one write. The real
// implementation is neo4j.DriverWithContext.NewSession bound to a fixed
// database name; tests supply one backed by a fake.
type SessionFactory func(ctx context.Context) Session
