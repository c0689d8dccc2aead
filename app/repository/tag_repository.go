package repository

import (
	"strings"

	"github.com/flomify/flomify/app/models"
	"gorm.io/gorm"
)

// tagRepository implements the TagRepository interface
type tagRepository struct {
	db *gorm.DB
}

// NewTagRepository creates a new tag repository instance
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

// GetAll returns every tag ordered by name
func (r *tagRepository) GetAll() ([]models.Tag, error) {
	var tags []models.Tag
	err := r.db.Order("name ASC").Find(&tags).Error
	return tags, err
}

// Names returns the tag names ordered alphabetically
func (r *tagRepository) Names() ([]string, error) {
	var names []string
	err := r.db.Model(&models.Tag{}).Order("name ASC").Pluck("name", &names).Error
	return names, err
}

func (r *tagRepository) FindOrCreate(name string) (*models.Tag, error) {
	tag := &models.Tag{Name: strings.ToLower(strings.TrimSpace(name))}
	if err := tag.FindOrCreate(r.db); err != nil {
		return nil, err
	}
	return tag, nil
}
