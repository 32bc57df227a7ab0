package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"speedgolf/internal/models"
)

const usersCollection = "users"

// MongoStore keeps one document per user in the users collection.
type MongoStore struct {
	db    *mongo.Database
	users *mongo.Collection
}

var _ UserStore = (*MongoStore)(nil)

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db, users: db.Collection(usersCollection)}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return s.db.Client().Ping(checkCtx, readpref.Primary())
}

func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.Rounds == nil {
		user.Rounds = []models.Round{}
	}
	res, err := s.users.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("user %s: %w", user.AccountData.ID, ErrConflict)
		}
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = id
	}
	return nil
}

func (s *MongoStore) GetUser(ctx context.Context, accountID string) (*models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, byAccount(accountID)).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s: %w", accountID, ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

func (s *MongoStore) UpdateUser(ctx context.Context, accountID string, update UserUpdate) (*models.User, error) {
	set := userSetDocument(update)
	set["updatedAt"] = time.Now()

	var updated models.User
	err := s.users.FindOneAndUpdate(
		ctx,
		byAccount(accountID),
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s: %w", accountID, ErrNotFound)
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("rename %s: %w", accountID, ErrConflict)
		}
		return nil, err
	}
	return &updated, nil
}

func (s *MongoStore) FindOrCreateOAuthUser(ctx context.Context, user *models.User) (*models.User, bool, error) {
	existing, err := s.GetUser(ctx, user.AccountData.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	if err := s.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost a race with a concurrent first login.
			existing, getErr := s.GetUser(ctx, user.AccountData.ID)
			return existing, false, getErr
		}
		return nil, false, err
	}
	return user, true, nil
}

func (s *MongoStore) AppendRound(ctx context.Context, accountID string, fields models.RoundFields) (models.Round, int, error) {
	round := models.Round{ID: primitive.NewObjectID(), RoundFields: fields}

	var updated struct {
		RoundsLogged int `bson:"roundsLogged"`
	}
	err := s.users.FindOneAndUpdate(
		ctx,
		byAccount(accountID),
		bson.M{
			"$push": bson.M{"rounds": round},
			"$inc":  bson.M{"roundsLogged": 1},
			"$set":  bson.M{"updatedAt": time.Now()},
		},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"roundsLogged": 1}),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Round{}, 0, fmt.Errorf("user %s: %w", accountID, ErrNotFound)
		}
		return models.Round{}, 0, err
	}

	log.Debug().Str("accountId", accountID).Str("roundId", round.ID.Hex()).Msg("[STORE] round appended")
	return round, updated.RoundsLogged, nil
}

func (s *MongoStore) ListRounds(ctx context.Context, accountID string) ([]models.Round, error) {
	var user struct {
		Rounds []models.Round `bson:"rounds"`
	}
	err := s.users.FindOne(
		ctx,
		byAccount(accountID),
		options.FindOne().SetProjection(bson.M{"rounds": 1}),
	).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s: %w", accountID, ErrNotFound)
		}
		return nil, err
	}
	if user.Rounds == nil {
		return []models.Round{}, nil
	}
	return user.Rounds, nil
}

func (s *MongoStore) UpdateRound(ctx context.Context, accountID string, roundID primitive.ObjectID, patch models.RoundPatch) (models.Round, error) {
	set := roundSetDocument(patch)
	set["updatedAt"] = time.Now()

	var updated models.User
	err := s.users.FindOneAndUpdate(
		ctx,
		byAccountRound(accountID, roundID),
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Round{}, fmt.Errorf("round %s: %w", roundID.Hex(), ErrNotFound)
		}
		return models.Round{}, err
	}

	idx := updated.RoundIndex(roundID)
	if idx < 0 {
		return models.Round{}, fmt.Errorf("round %s: %w", roundID.Hex(), ErrNotFound)
	}
	return updated.Rounds[idx], nil
}

func (s *MongoStore) DeleteRound(ctx context.Context, accountID string, roundID primitive.ObjectID) (int, error) {
	var updated struct {
		RoundsLogged int `bson:"roundsLogged"`
	}
	err := s.users.FindOneAndUpdate(
		ctx,
		byAccountRound(accountID, roundID),
		deleteOneRoundPipeline(roundID),
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"roundsLogged": 1}),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, fmt.Errorf("round %s: %w", roundID.Hex(), ErrNotFound)
		}
		return 0, err
	}
	return updated.RoundsLogged, nil
}

func byAccount(accountID string) bson.M {
	return bson.M{"accountData.id": accountID}
}

func byAccountRound(accountID string, roundID primitive.ObjectID) bson.M {
	return bson.M{"accountData.id": accountID, "rounds._id": roundID}
}

// roundSetDocument targets the round matched by the filter with the
// positional operator.
func roundSetDocument(patch models.RoundPatch) bson.M {
	set := bson.M{}
	for field, value := range patch.Fields() {
		set["rounds.$."+field] = value
	}
	return set
}

func userSetDocument(update UserUpdate) bson.M {
	set := bson.M{}
	if update.AccountData != nil {
		set["accountData"] = update.AccountData
	}
	if update.IdentityData != nil {
		set["identityData"] = update.IdentityData
	}
	if update.SpeedgolfData != nil {
		set["speedgolfData"] = update.SpeedgolfData
	}
	return set
}

// deleteOneRoundPipeline splices out only the first round with roundID, so
// duplicate ids in legacy data never remove more than one round.
func deleteOneRoundPipeline(roundID primitive.ObjectID) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"rounds": bson.M{"$let": bson.M{
				"vars": bson.M{"idx": bson.M{"$indexOfArray": bson.A{"$rounds._id", roundID}}},
				"in": bson.M{"$concatArrays": bson.A{
					bson.M{"$slice": bson.A{"$rounds", "$$idx"}},
					bson.M{"$slice": bson.A{
						"$rounds",
						bson.M{"$add": bson.A{"$$idx", 1}},
						bson.M{"$max": bson.A{1, bson.M{"$size": "$rounds"}}},
					}},
				}},
			}},
			"roundsLogged": bson.M{"$max": bson.A{
				0,
				bson.M{"$subtract": bson.A{bson.M{"$ifNull": bson.A{"$roundsLogged", 0}}, 1}},
			}},
			"updatedAt": "$$NOW",
		}}},
	}
}
