package db

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultDatabase = "reinforce"

// EnsureIndex creates model on collectionName unless an index with the same
// name already exists.
func EnsureIndex(db *mongo.Database, ctx context.Context, collectionName string, model mongo.IndexModel) error {
	idxs := db.Collection(collectionName).Indexes()

	if model.Options == nil || model.Options.Name == nil {
		return fmt.Errorf("must provide a name for index")
	}
	expectedName := *model.Options.Name

	cur, err := idxs.List(ctx)
	if err != nil {
		return fmt.Errorf("unable to list indexes: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var d bson.M
		if err := cur.Decode(&d); err != nil {
			return fmt.Errorf("unable to decode bson index document: %w", err)
		}
		if name, ok := d["name"].(string); ok && name == expectedName {
			return nil
		}
	}

	_, err = idxs.CreateOne(ctx, model)
	return err
}

// ConnectMongo connects to MONGO_URL. The database is taken from the URL path
// and defaults to reinforce.
func ConnectMongo(ctx context.Context) (*mongo.Database, error) {
	registry := bson.NewRegistry()
	registry.RegisterTypeMapEntry(0x03, reflect.TypeOf(bson.M{}))

	mongoUrl := os.Getenv("MONGO_URL")
	if mongoUrl == "" {
		mongoUrl = "mongodb://localhost:27017/" + defaultDatabase
	}

	uri, err := url.Parse(mongoUrl)
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoUrl).SetRegistry(registry))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("unable to reach mongo: %w", err)
	}

	dbName := strings.Trim(uri.Path, "/")
	if dbName == "" {
		dbName = defaultDatabase
	}
	return client.Database(dbName), nil
}
