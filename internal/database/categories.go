package database

import (
	"context"
	"fmt"
)

// CategoryStore handles ledger categories
type CategoryStore struct {
	q querier
}

// List returns all categories ordered by name
func (s *CategoryStore) List(ctx context.Context) ([]Category, error) {
	rows, err := s.q.query(ctx, `SELECT id, name, color_code, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ColorCode, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// GetByID returns a category by ID
func (s *CategoryStore) GetByID(ctx context.Context, id int64) (*Category, error) {
	var c Category
	err := s.q.queryRow(ctx, `SELECT id, name, color_code, created_at FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.ColorCode, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a category
func (s *CategoryStore) Create(ctx context.Context, c *Category) error {
	var id int64
	err := s.q.queryRow(ctx, `INSERT INTO categories (name, color_code) VALUES (?, ?) RETURNING id`,
		c.Name, c.ColorCode).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to create category %q: %w", c.Name, err)
	}

	created, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	*c = *created
	return nil
}
