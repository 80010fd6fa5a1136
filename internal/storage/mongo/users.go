package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"news_provisioner/internal/domain"
)

type usersInfoReply struct {
	Users []struct {
		User  string `bson:"user"`
		DB    string `bson:"db"`
		Roles []struct {
			Role string `bson:"role"`
			DB   string `bson:"db"`
		} `bson:"roles"`
	} `bson:"users"`
}

// GetUser returns the user defined on database, or nil if there is none.
// The password is never returned.
func (s *Store) GetUser(ctx context.Context, database, username string) (*domain.Credential, error) {
	cmd := bson.D{
		{Key: "usersInfo", Value: bson.D{
			{Key: "user", Value: username},
			{Key: "db", Value: database},
		}},
	}

	var reply usersInfoReply
	if err := s.client.Database(database).RunCommand(ctx, cmd).Decode(&reply); err != nil {
		return nil, classify(err)
	}

	for _, u := range reply.Users {
		if u.User != username || u.DB != database {
			continue
		}
		cred := &domain.Credential{Username: u.User}
		for _, r := range u.Roles {
			cred.Roles = append(cred.Roles, domain.Role{Name: r.Role, Database: r.DB})
		}
		return cred, nil
	}

	return nil, nil
}

// CreateUser defines the credential on database with exactly its roles.
func (s *Store) CreateUser(ctx context.Context, database string, credential domain.Credential) error {
	roles := make(bson.A, 0, len(credential.Roles))
	for _, r := range credential.Roles {
		roles = append(roles, bson.D{
			{Key: "role", Value: r.Name},
			{Key: "db", Value: r.Database},
		})
	}

	cmd := bson.D{
		{Key: "createUser", Value: credential.Username},
		{Key: "pwd", Value: credential.Password},
		{Key: "roles", Value: roles},
	}

	return classify(s.client.Database(database).RunCommand(ctx, cmd).Err())
}
