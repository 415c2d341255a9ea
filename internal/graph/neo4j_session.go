package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// NewNeo4jSessionFactory adapts a *neo4j.DriverWithContext into a
// SessionFactory bound to database.
func NewNeo4jSessionFactory(driver neo4j.DriverWithContext, database string) SessionFactory {
	return func(ctx context.Context) Session {
		return &neo4jSession{
			inner: driver.NewSession(ctx, neo4j.SessionConfig{
				AccessMode:   neo4j.AccessModeWrite,
				DatabaseName: database,
			}),
		}
	}
}

type neo4jSession struct {
	inner neo4j.SessionWithContext
}

func (s *neo4jSession) ExecuteWrite(ctx context.Context, work func(tx Tx) (any, error)) (any, error) {
	return s.inner.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&neo4jTx{inner: tx})
	})
}

func (s *neo4jSession) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}

type neo4jTx struct {
	inner neo4j.ManagedTransaction
}

func (t *neo4jTx) Run(ctx context.Context, cypher string, params map[string]any) error {
	result, err := t.inner.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}
