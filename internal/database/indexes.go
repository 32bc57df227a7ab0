package database

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserIndexes are the indexes EnsureUserIndexes creates on the users collection.
func UserIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "accountData.id", Value: 1}},
			Options: options.Index().
				SetName("accountData_id_unique").
				SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "rounds._id", Value: 1}},
			Options: options.Index().SetName("rounds_id"),
		},
	}
}

func EnsureUserIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	indexes := db.Collection("users").Indexes()

	log.Info().Msg("[DB] creating user indexes")
	names, err := indexes.CreateMany(ctx, UserIndexes())
	if err != nil {
		log.Error().Err(err).Msg("[DB] user index error")
		return err
	}
	log.Info().Strs("indexes", names).Msg("[DB] user indexes created")
	return nil
}
