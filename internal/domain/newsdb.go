package domain

// PersonalizationTTLSeconds is how long personalization_cache documents live
// after their created_at timestamp (30 days).
const PersonalizationTTLSeconds int32 = 30 * 24 * 60 * 60

const (
	NewsDatabase = "verachain_news"
	NewsUsername = "newsuser"

	CollectionArticles             = "articles"
	CollectionUserProfiles         = "user_profiles"
	CollectionUserActivity         = "user_activity"
	CollectionPersonalizationCache = "personalization_cache"

	RoleReadWrite = "readWrite"
)

// NewsPlatformSpec returns the schema of the news platform database.
// The password is left for configuration to supply.
func NewsPlatformSpec() Spec {
	ttl := PersonalizationTTLSeconds

	return Spec{
		Database: NewsDatabase,
		Credential: Credential{
			Username: NewsUsername,
			Roles:    []Role{{Name: RoleReadWrite, Database: NewsDatabase}},
		},
		Collections: []string{
			CollectionArticles,
			CollectionUserProfiles,
			CollectionUserActivity,
			CollectionPersonalizationCache,
		},
		Indexes: []IndexSpec{
			{Collection: CollectionArticles, Keys: asc("id"), Unique: true},
			{Collection: CollectionArticles, Keys: desc("published")},
			{Collection: CollectionArticles, Keys: desc("collected_at")},
			{Collection: CollectionArticles, Keys: asc("source")},

			{Collection: CollectionUserProfiles, Keys: asc("user_id"), Unique: true},

			{Collection: CollectionUserActivity, Keys: asc("user_id")},
			{Collection: CollectionUserActivity, Keys: desc("timestamp")},
			{Collection: CollectionUserActivity, Keys: asc("article_id")},

			{Collection: CollectionPersonalizationCache, Keys: asc("article_id", "user_id"), Unique: true},
			{Collection: CollectionPersonalizationCache, Keys: asc("created_at")},
			{Collection: CollectionPersonalizationCache, Keys: asc("created_at"), ExpireAfterSeconds: &ttl},
		},
	}
}

func asc(fields ...string) []IndexKey {
	keys := make([]IndexKey, len(fields))
	for i, f := range fields {
		keys[i] = IndexKey{Field: f, Order: Ascending}
	}
	return keys
}

func desc(field string) []IndexKey {
	return []IndexKey{{Field: field, Order: Descending}}
}
