package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_backend/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ClientsCollection = "clients"
	UsersCollection   = "users"
)

// idFilter matches both string ids and the ObjectIDs of documents created before ids were UUIDs.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	return bson.M{"_id": id}
}

// replacementDocument encodes v without its _id, which MongoDB does not allow to change.
func replacementDocument(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	doc := bson.M{}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	delete(doc, "_id")
	return doc, nil
}

type mongoClientRepository struct {
	coll *mongo.Collection
}

// NewMongoClientRepository stores one document per client in the clients collection.
func NewMongoClientRepository(db *mongo.Database) ClientRepository {
	return &mongoClientRepository{coll: db.Collection(ClientsCollection)}
}

func (r *mongoClientRepository) CreateClient(ctx context.Context, client *models.Client) error {
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	now := time.Now()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now
	}
	client.UpdatedAt = now
	client.EnsureCollections()

	if _, err := r.coll.InsertOne(ctx, client); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: client %s", ErrDuplicateKey, client.ID)
		}
		return fmt.Errorf("%w: creating client: %v", ErrDatabaseError, err)
	}
	return nil
}

func (r *mongoClientRepository) GetClientByID(ctx context.Context, id string) (*models.Client, error) {
	client := &models.Client{}
	if err := r.coll.FindOne(ctx, idFilter(id)).Decode(client); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting client by ID %s: %v", ErrDatabaseError, id, err)
	}
	client.EnsureCollections()
	return client, nil
}

func (r *mongoClientRepository) GetClients(ctx context.Context) ([]models.Client, error) {
	opts := options.Find().SetSort(bson.D{{Key: "fecha", Value: -1}, {Key: "createdAt", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: querying clients: %v", ErrDatabaseError, err)
	}
	clients := []models.Client{}
	if err := cursor.All(ctx, &clients); err != nil {
		return nil, fmt.Errorf("%w: decoding clients: %v", ErrDatabaseError, err)
	}
	for i := range clients {
		clients[i].EnsureCollections()
	}
	return clients, nil
}

func (r *mongoClientRepository) UpdateClient(ctx context.Context, client *models.Client) error {
	client.UpdatedAt = time.Now()
	client.EnsureCollections()
	doc, err := replacementDocument(client)
	if err != nil {
		return fmt.Errorf("%w: encoding client ID %s: %v", ErrDatabaseError, client.ID, err)
	}
	result, err := r.coll.ReplaceOne(ctx, idFilter(client.ID), doc)
	if err != nil {
		return fmt.Errorf("%w: updating client ID %s: %v", ErrDatabaseError, client.ID, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoClientRepository) DeleteClient(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, idFilter(id))
	if err != nil {
		return fmt.Errorf("%w: deleting client ID %s: %v", ErrDatabaseError, id, err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type mongoUserRepository struct {
	coll *mongo.Collection
}

// NewMongoUserRepository stores users in the users collection. The unique index on
// username is created by database.EnsureMongoIndexes.
func NewMongoUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{coll: db.Collection(UsersCollection)}
}

func (r *mongoUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if _, err := r.coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: username %s", ErrDuplicateKey, user.Username)
		}
		return fmt.Errorf("%w: creating user: %v", ErrDatabaseError, err)
	}
	return nil
}

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.M, what string) (*models.User, error) {
	user := &models.User{}
	if err := r.coll.FindOne(ctx, filter).Decode(user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: finding user by %s: %v", ErrDatabaseError, what, err)
	}
	return user, nil
}

func (r *mongoUserRepository) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"username": username}, "username "+username)
}

func (r *mongoUserRepository) FindUserByID(ctx context.Context, userID string) (*models.User, error) {
	return r.findOne(ctx, idFilter(userID), "ID "+userID)
}
