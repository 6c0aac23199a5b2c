package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/catalog-import/internal/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	productsCollection = "products"
	stocksCollection   = "stocks"
)

type productDoc struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	Price       float64   `bson:"price"`
	CreatedAt   time.Time `bson:"created_at"`
}

type stockDoc struct {
	ProductID string `bson:"_id"`
	Count     int    `bson:"count"`
}

// Mongo is a core.ProductStore backed by MongoDB. Transactions need a
// replica set or sharded cluster.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// ConnectMongo connects to uri and pings the primary.
func ConnectMongo(ctx context.Context, uri, dbName string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Mongo{client: client, db: client.Database(dbName)}, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// CreateProduct inserts both documents inside a session transaction. The
// _id uniqueness of the products collection is the existence check.
func (m *Mongo) CreateProduct(ctx context.Context, p core.Product, st core.Stock) error {
	sess, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		_, err := m.db.Collection(productsCollection).InsertOne(sc, productDoc{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Price:       p.Price,
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		_, err = m.db.Collection(stocksCollection).InsertOne(sc, stockDoc{
			ProductID: st.ProductID,
			Count:     st.Count,
		})
		return nil, err
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", core.ErrProductExists, p.ID)
		}
		return fmt.Errorf("create product %s: %w", p.ID, err)
	}
	return nil
}

// EnsureCollections creates both collections so the first transaction does
// not have to. Existing collections are left alone.
func (m *Mongo) EnsureCollections(ctx context.Context) error {
	names, err := m.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	existing := make(map[string]bool, len(names))
	for _, n := range names {
		existing[n] = true
	}
	for _, name := range []string{productsCollection, stocksCollection} {
		if existing[name] {
			continue
		}
		if err := m.db.CreateCollection(ctx, name); err != nil {
			var cmdErr mongo.CommandError
			if errors.As(err, &cmdErr) && cmdErr.Name == "NamespaceExists" {
				continue
			}
			return fmt.Errorf("create collection %s: %w", name, err)
		}
	}
	return nil
}
