package models

import (
	"time"

	"gorm.io/gorm"
)

type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(30);uniqueIndex" json:"name" validate:"required,min=1,max=29"`
	Items     []Item    `gorm:"many2many:item_tags;" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FindOrCreate looks a tag up by name and creates it when missing.
func (t *Tag) FindOrCreate(db *gorm.DB) error {
	result := db.Where("name = ?", t.Name).First(t)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return db.Create(t).Error
		}
		return result.Error
	}
	return nil
}
