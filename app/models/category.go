package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name" validate:"required,min=1,max=100"`
	Slug      string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"slug" validate:"required,min=1,max=100"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Category) Validate() error {
	v := validator.New()
	return v.Struct(c)
}
