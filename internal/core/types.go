package core

import (
	"context"
	"io"
)

// Item is a normalized catalog row. Count is nil when the source row did not
// supply one; the processor resolves the default at commit time.
type Item struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Count       *int    `json:"count,omitempty"`
}

// Product is the committed product record. It is never updated.
type Product struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Stock is the inventory record paired one-to-one with a Product.
type Stock struct {
	ProductID string `json:"product_id"`
	Count     int    `json:"count"`
}

// ProductWithStock is a product joined with its stock count.
type ProductWithStock struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Count       int     `json:"count"`
}

// EventProductCreated is the notification type published after a commit.
const EventProductCreated = "product-created"

// CreatedMessage is the human readable text of a product-created notification.
const CreatedMessage = "Product created successfully via import"

// Notification is the payload published after a product commits.
type Notification struct {
	Type    string           `json:"type"`
	Message string           `json:"message"`
	Product ProductWithStock `json:"product"`
}

// NewCreatedNotification builds the product-created event for a committed pair.
func NewCreatedNotification(p Product, s Stock) Notification {
	return Notification{
		Type:    EventProductCreated,
		Message: CreatedMessage,
		Product: ProductWithStock{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Price:       p.Price,
			Count:       s.Count,
		},
	}
}

// ObjectRef names one object in object storage.
type ObjectRef struct {
	Bucket string
	Key    string
}

// ObjectStore is the object storage boundary used by the FileParser.
// Open must return an error matching objectstore.ErrNotFound for missing objects.
type ObjectStore interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
	Copy(ctx context.Context, bucket, srcKey, dstKey string) error
	Delete(ctx context.Context, bucket, key string) error
}

// UnitProducer sends one encoded unit of work to the queue and returns its message ID.
type UnitProducer interface {
	Send(ctx context.Context, body []byte) (string, error)
}

// ProductStore writes a product and its stock as one atomic transaction.
// Implementations return ErrProductExists when the identity is already used.
type ProductStore interface {
	CreateProduct(ctx context.Context, p Product, s Stock) error
}

// Notifier publishes product-created notifications. Delivery is best effort.
type Notifier interface {
	Publish(ctx context.Context, n Notification) error
}
