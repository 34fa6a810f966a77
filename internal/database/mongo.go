// Package database connects to MongoDB and prepares the collections.
package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	AccountsCollection      = "users"
	RevokedTokensCollection = "tokens"
)

// ConnectMongoDB establishes a connection to MongoDB and returns the client.
func ConnectMongoDB(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	// Ping the database to verify connection.
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctxPing, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// Collections are the handles the services write to.
type Collections struct {
	Accounts      *mongo.Collection
	RevokedTokens *mongo.Collection
}

// GetCollections returns the collections of database dbName.
func GetCollections(client *mongo.Client, dbName string) Collections {
	db := client.Database(dbName)
	return Collections{
		Accounts:      db.Collection(AccountsCollection),
		RevokedTokens: db.Collection(RevokedTokensCollection),
	}
}

// Indexes lists the indexes EnsureIndexes creates, per collection.
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		AccountsCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_unique")},
		},
		RevokedTokensCollection: {
			{Keys: bson.D{{Key: "jti", Value: 1}}, Options: options.Index().SetUnique(true).SetName("jti_unique")},
			// Revocations are only needed until the refresh window closes.
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_ttl")},
		},
	}
}

// EnsureIndexes creates the unique and TTL indexes. It is idempotent.
func EnsureIndexes(ctx context.Context, c Collections) error {
	byName := map[string]*mongo.Collection{
		AccountsCollection:      c.Accounts,
		RevokedTokensCollection: c.RevokedTokens,
	}
	for name, models := range Indexes() {
		if _, err := byName[name].Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}
