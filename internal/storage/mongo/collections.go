package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func (s *Store) CollectionExists(ctx context.Context, database, collection string) (bool, error) {
	names, err := s.client.Database(database).ListCollectionNames(ctx, bson.D{{Key: "name", Value: collection}})
	if err != nil {
		return false, classify(err)
	}
	return len(names) > 0, nil
}

// CreateCollection creates an unconstrained collection. The first collection
// created also materialises the database.
func (s *Store) CreateCollection(ctx context.Context, database, collection string) error {
	return classify(s.client.Database(database).CreateCollection(ctx, collection))
}
