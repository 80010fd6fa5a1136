package mongo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"news_provisioner/internal/domain"
)

func TestIndexDocument_ToSpec(t *testing.T) {
	t.Run("compound unique from driver", func(t *testing.T) {
		doc := indexDocument{
			Name:   "article_id_1_user_id_1",
			Key:    bson.D{{Key: "article_id", Value: int32(1)}, {Key: "user_id", Value: int32(1)}},
			Unique: true,
		}

		spec := doc.toSpec("personalization_cache")

		assert.Equal(t, "personalization_cache", spec.Collection)
		assert.Equal(t, []domain.IndexKey{
			{Field: "article_id", Order: domain.Ascending},
			{Field: "user_id", Order: domain.Ascending},
		}, spec.Keys)
		assert.True(t, spec.Unique)
		assert.False(t, spec.IsTTL())
	})

	t.Run("ttl created by the shell", func(t *testing.T) {
		doc := indexDocument{
			Name:               "created_at_1",
			Key:                bson.D{{Key: "created_at", Value: float64(1)}},
			ExpireAfterSeconds: float64(2592000),
		}

		spec := doc.toSpec("personalization_cache")

		require.True(t, spec.IsTTL())
		assert.Equal(t, int32(2592000), *spec.ExpireAfterSeconds)
		assert.Equal(t, domain.Ascending, spec.Keys[0].Order)
	})

	t.Run("descending int64", func(t *testing.T) {
		doc := indexDocument{Name: "published_-1", Key: bson.D{{Key: "published", Value: int64(-1)}}}

		spec := doc.toSpec("articles")

		assert.Equal(t, domain.Descending, spec.Keys[0].Order)
		assert.Equal(t, "published_-1", spec.IndexName())
	})

	t.Run("partial unique index is not equivalent", func(t *testing.T) {
		doc := indexDocument{
			Name:                    "id_1",
			Key:                     bson.D{{Key: "id", Value: int32(1)}},
			Unique:                  true,
			PartialFilterExpression: mustRaw(t, bson.D{{Key: "source", Value: "rss"}}),
		}

		spec := doc.toSpec("articles")

		require.Len(t, spec.Unmanaged, 1)
		assert.Contains(t, spec.Unmanaged[0], "partialFilterExpression=")
		assert.Contains(t, spec.Unmanaged[0], "rss")

		declared := domain.IndexSpec{Collection: "articles", Keys: []domain.IndexKey{{Field: "id", Order: domain.Ascending}}, Unique: true}
		assert.True(t, spec.SameKeys(declared))
		assert.False(t, spec.Equivalent(declared))
	})

	t.Run("sparse and collation", func(t *testing.T) {
		doc := indexDocument{
			Name:      "source_1",
			Key:       bson.D{{Key: "source", Value: int32(1)}},
			Sparse:    true,
			Collation: mustRaw(t, bson.D{{Key: "locale", Value: "fr"}, {Key: "strength", Value: int32(2)}}),
		}

		spec := doc.toSpec("articles")

		assert.Equal(t, []string{"sparse", "collation=fr"}, spec.Unmanaged)
	})

	t.Run("ttl beyond int32 range", func(t *testing.T) {
		doc := indexDocument{
			Name:               "created_at_1",
			Key:                bson.D{{Key: "created_at", Value: int32(1)}},
			ExpireAfterSeconds: int64(math.MaxInt32) + 1,
		}

		spec := doc.toSpec("personalization_cache")

		assert.False(t, spec.IsTTL())
		assert.Equal(t, []string{"expireAfterSeconds=2147483648"}, spec.Unmanaged)

		ttl := int32(0)
		declared := domain.IndexSpec{Keys: spec.Keys, ExpireAfterSeconds: &ttl}
		assert.False(t, spec.Equivalent(declared))
	})

	t.Run("decodes listIndexes options", func(t *testing.T) {
		raw := mustRaw(t, bson.D{
			{Key: "v", Value: int32(2)},
			{Key: "key", Value: bson.D{{Key: "id", Value: int32(1)}}},
			{Key: "name", Value: "id_1"},
			{Key: "unique", Value: true},
			{Key: "partialFilterExpression", Value: bson.D{{Key: "source", Value: "rss"}}},
		})

		var doc indexDocument
		require.NoError(t, bson.Unmarshal(raw, &doc))

		spec := doc.toSpec("articles")

		assert.True(t, spec.Unique)
		require.Len(t, spec.Unmanaged, 1)
		assert.Contains(t, spec.Unmanaged[0], "partialFilterExpression=")
	})

	t.Run("special index type", func(t *testing.T) {
		doc := indexDocument{Name: "title_text", Key: bson.D{{Key: "title", Value: "text"}}}

		spec := doc.toSpec("articles")

		assert.Equal(t, domain.Order(0), spec.Keys[0].Order)
	})
}

func mustRaw(t *testing.T, doc bson.D) bson.Raw {
	t.Helper()

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	return raw
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorized", mongo.CommandError{Code: codeUnauthorized, Name: "Unauthorized"}, domain.ErrPermission},
		{"auth failed", mongo.CommandError{Code: codeAuthenticationFailed, Name: "AuthenticationFailed"}, domain.ErrConnection},
		{"index options conflict", mongo.CommandError{Code: codeIndexOptionsConflict, Name: "IndexOptionsConflict"}, domain.ErrConflict},
		{"index key specs conflict", mongo.CommandError{Code: codeIndexKeySpecsConflict, Name: "IndexKeySpecsConflict"}, domain.ErrConflict},
		{"namespace exists", mongo.CommandError{Code: codeNamespaceExists, Name: "NamespaceExists"}, domain.ErrAlreadyExists},
		{"duplicate user", mongo.CommandError{Code: codeDuplicateUser, Name: "Location51003"}, domain.ErrAlreadyExists},
		{"wrapped deadline", fmt.Errorf("list: %w", context.DeadlineExceeded), domain.ErrConnection},
		{"client disconnected", mongo.ErrClientDisconnected, domain.ErrConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)

			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.err.Error())
		})
	}

	t.Run("unknown server code passes through", func(t *testing.T) {
		orig := mongo.CommandError{Code: 2, Name: "BadValue"}

		err := classify(orig)

		assert.Nil(t, domain.Kind(err))

		var cmdErr mongo.CommandError
		require.True(t, errors.As(err, &cmdErr))
		assert.Equal(t, int32(2), cmdErr.Code)
	})

	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, classify(nil))
	})
}
