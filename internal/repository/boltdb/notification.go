package boltdb

import (
	"context"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"evrental-backend/internal/domain"
)

type notificationRepository struct {
	db *bolt.DB
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedOn.IsZero() {
		n.CreatedOn = time.Now().UTC()
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketNotifications, n.ID, n)
	})
}

func (r *notificationRepository) ListByCustomer(ctx context.Context, customerID string, limit, offset int32) ([]domain.Notification, int32, error) {
	var all []domain.Notification
	err := r.db.View(func(tx *bolt.Tx) error {
		return each(tx, bucketNotifications, func(n *domain.Notification) error {
			if n.CustomerID == customerID {
				all = append(all, *n)
			}
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedOn.After(all[j].CreatedOn) })
	total := int32(len(all))
	if offset >= total {
		return []domain.Notification{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}
