package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RevokedToken records a token identifier that may no longer be used.
type RevokedToken struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	JTI       string             `bson:"jti" json:"jti"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	ExpiresAt time.Time          `bson:"expiresAt" json:"expiresAt"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
	Version   int64              `bson:"__v" json:"__v"`
}

// BeforeCreate fills defaults for a new document.
func (t *RevokedToken) BeforeCreate(now time.Time) {
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	t.CreatedAt = now
	t.UpdatedAt = now
}
