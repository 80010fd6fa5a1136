package mongo

import (
	"context"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"news_provisioner/internal/domain"
)

// indexDocument is one entry of a listIndexes reply. Numeric values may be
// int32, int64 or double depending on which client created the index.
type indexDocument struct {
	Name                    string   `bson:"name"`
	Key                     bson.D   `bson:"key"`
	Unique                  bool     `bson:"unique,omitempty"`
	ExpireAfterSeconds      any      `bson:"expireAfterSeconds,omitempty"`
	Sparse                  bool     `bson:"sparse,omitempty"`
	PartialFilterExpression bson.Raw `bson:"partialFilterExpression,omitempty"`
	Collation               bson.Raw `bson:"collation,omitempty"`
}

func (s *Store) ListIndexes(ctx context.Context, database, collection string) ([]domain.IndexSpec, error) {
	cursor, err := s.client.Database(database).Collection(collection).Indexes().List(ctx)
	if err != nil {
		return nil, classify(err)
	}
	defer cursor.Close(ctx)

	var docs []indexDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}

	indexes := make([]domain.IndexSpec, 0, len(docs))
	for _, doc := range docs {
		indexes = append(indexes, doc.toSpec(collection))
	}
	return indexes, nil
}

func (s *Store) CreateIndex(ctx context.Context, database string, index domain.IndexSpec) error {
	keys := make(bson.D, 0, len(index.Keys))
	for _, k := range index.Keys {
		keys = append(keys, bson.E{Key: k.Field, Value: int32(k.Order)})
	}

	opts := options.Index().SetName(index.IndexName())
	if index.Unique {
		opts.SetUnique(true)
	}
	if index.IsTTL() {
		opts.SetExpireAfterSeconds(*index.ExpireAfterSeconds)
	}

	_, err := s.client.Database(database).Collection(index.Collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: opts,
	})
	return classify(err)
}

func (d indexDocument) toSpec(collection string) domain.IndexSpec {
	spec := domain.IndexSpec{
		Collection: collection,
		Name:       d.Name,
		Unique:     d.Unique,
		Keys:       make([]domain.IndexKey, 0, len(d.Key)),
	}

	for _, e := range d.Key {
		// Special index types ("text", "2dsphere", "hashed") keep order 0.
		order, _ := toInt64(e.Value)
		spec.Keys = append(spec.Keys, domain.IndexKey{Field: e.Key, Order: domain.Order(order)})
	}

	if secs, ok := toInt64(d.ExpireAfterSeconds); ok {
		if secs < 0 || secs > math.MaxInt32 {
			spec.Unmanaged = append(spec.Unmanaged, fmt.Sprintf("expireAfterSeconds=%d", secs))
		} else {
			ttl := int32(secs)
			spec.ExpireAfterSeconds = &ttl
		}
	}

	if d.Sparse {
		spec.Unmanaged = append(spec.Unmanaged, "sparse")
	}
	if len(d.PartialFilterExpression) > 0 {
		spec.Unmanaged = append(spec.Unmanaged, "partialFilterExpression="+d.PartialFilterExpression.String())
	}
	if len(d.Collation) > 0 {
		locale, _ := d.Collation.Lookup("locale").StringValueOK()
		spec.Unmanaged = append(spec.Unmanaged, "collation="+locale)
	}

	return spec
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
