package report

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cloudidm/onboard/internal/provision"
)

// MongoStore persists status records in a Mongo collection, one document
// per email, overwritten on every transition.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(col *mongo.Collection) *MongoStore {
	return &MongoStore{col: col}
}

func (s *MongoStore) Update(ctx context.Context, email string, rec provision.StatusRecord) error {
	e := entryFrom(email, rec)
	filter := bson.M{"_id": email}
	set := bson.M{"$set": bson.M{
		"status":    e.Status,
		"firstName": e.FirstName,
		"lastName":  e.LastName,
		"username":  e.Username,
		"project":   e.Project,
		"updatedAt": e.UpdatedAt,
	}}
	opts := options.Update().SetUpsert(true)
	_, err := s.col.UpdateOne(ctx, filter, set, opts)
	return err
}

func (s *MongoStore) Get(ctx context.Context, email string) (*Entry, error) {
	var e Entry
	if err := s.col.FindOne(ctx, bson.M{"_id": email}).Decode(&e); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}
