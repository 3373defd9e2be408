package store

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate key")
	// ErrStateConflict means the document exists but a conditional write's
	// state precondition did not hold.
	ErrStateConflict = errors.New("store: state precondition failed")
)

// MissingReferenceError is returned when a write names a related document
// (order, service) that does not exist.
type MissingReferenceError struct {
	Collection string
	ID         primitive.ObjectID
}

func (e MissingReferenceError) Error() string {
	return e.Collection + " not found: " + e.ID.Hex()
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return errors.Join(ErrDuplicate, err)
	default:
		return err
	}
}
