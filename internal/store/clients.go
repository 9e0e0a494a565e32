package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/example/aal-logistics/api-go/internal/model"
)

func (s *Store) CreateClient(ctx context.Context, c model.Client) (model.Client, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	_, err := s.exec(ctx, `
		INSERT INTO clients (id, name, email, created_at)
		VALUES (?, ?, ?, ?)
	`, c.ID, c.Name, c.Email, c.CreatedAt)
	if err != nil {
		return model.Client{}, err
	}
	return c, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (model.Client, error) {
	var c model.Client
	if err := s.get(ctx, &c, `SELECT id, name, email, created_at FROM clients WHERE id = ?`, id); err != nil {
		return model.Client{}, err
	}
	return c, nil
}
