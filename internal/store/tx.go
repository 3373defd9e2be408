package store

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// withTransaction runs fn inside a MongoDB multi-document transaction. The
// driver retries fn on transient errors, so fn must only touch the database
// through sessCtx.
func withTransaction[T any](ctx context.Context, client *mongo.Client, fn func(sessCtx mongo.SessionContext) (T, error)) (T, error) {
	var zero T

	session, err := client.StartSession()
	if err != nil {
		return zero, err
	}
	defer session.EndSession(ctx)

	var out T
	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		result, err := fn(sessCtx)
		if err != nil {
			return nil, err
		}
		out = result
		return nil, nil
	})
	if err != nil {
		return zero, err
	}
	return out, nil
}
