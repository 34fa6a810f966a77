package token

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"socialhub/internal/metrics"
	"socialhub/internal/models"
	"socialhub/internal/repository"
)

// Ledger records revoked jtis.
type Ledger interface {
	Revoke(ctx context.Context, jti string, owner primitive.ObjectID, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MongoLedger stores revocations in the revoked token collection. Expired
// records are pruned by the collection's TTL index on expiresAt.
type MongoLedger struct {
	repo *repository.Repository[models.RevokedToken]
}

// NewMongoLedger returns a Ledger over store.
func NewMongoLedger(store repository.Store) *MongoLedger {
	return &MongoLedger{repo: repository.New[models.RevokedToken](store, false)}
}

func (l *MongoLedger) Revoke(ctx context.Context, jti string, owner primitive.ObjectID, expiresAt time.Time) error {
	_, err := l.repo.Create(ctx, &models.RevokedToken{JTI: jti, UserID: owner, ExpiresAt: expiresAt})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil
	}
	if err == nil {
		metrics.TokenRevocationsTotal.Inc()
	}
	return err
}

func (l *MongoLedger) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := l.repo.FindOne(ctx, bson.M{"jti": jti})
	if errors.Is(err, repository.ErrNoDocument) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
