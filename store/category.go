package store

import "context"

const (
	CategoryKindExpense = "EXPENSE"
	// DefaultCategoryDescription is used when the extraction suggests no category.
	DefaultCategoryDescription = "OTHER"
)

// Category is an expense classification, unique by description.
type Category struct {
	ID          int32
	Description string
	Kind        string
	Status      string
	CreatedTs   int64
}

// FindCategory is the find condition for categories.
type FindCategory struct {
	ID          *int32
	Description *string
}

// ListCategories lists categories.
func (s *Store) ListCategories(ctx context.Context, find *FindCategory) ([]*Category, error) {
	return s.driver.ListCategories(ctx, find)
}

// GetCategoryByDescription returns the category with the exact (case-sensitive) description,
// or nil if none exists.
func (s *Store) GetCategoryByDescription(ctx context.Context, description string) (*Category, error) {
	list, err := s.driver.ListCategories(ctx, &FindCategory{Description: &description})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}
