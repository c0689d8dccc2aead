package repository

import (
	"github.com/flomify/flomify/app/models"
	"gorm.io/gorm"
)

// ItemRepository defines the interface for catalog item operations
type ItemRepository interface {
	Create(item *models.Item, tagNames []string) error
	GetByID(id uint) (*models.Item, error)
	List(filter ItemFilter) (*ItemPage, error)
	Related(item *models.Item, limit int) ([]models.Item, error)
	Collection(item *models.Item, limit int) (*CollectionPage, error)
	FilterOptions() (*FilterOptions, error)
	Count() (int64, error)
}

// CategoryRepository defines the interface for category operations
type CategoryRepository interface {
	Create(category *models.Category) error
	GetByID(id uint) (*models.Category, error)
	GetBySlug(slug string) (*models.Category, error)
	GetAll() ([]models.Category, error)
	SlugExists(slug string) (bool, error)
}

// TagRepository defines the interface for tag operations
type TagRepository interface {
	GetAll() ([]models.Tag, error)
	Names() ([]string, error)
	FindOrCreate(name string) (*models.Tag, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Item     ItemRepository
	Category CategoryRepository
	Tag      TagRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Item:     NewItemRepository(db),
		Category: NewCategoryRepository(db),
		Tag:      NewTagRepository(db),
	}
}
