package models

import "time"

type ItemTag struct {
	ItemID    uint      `gorm:"primaryKey;autoIncrement:false" json:"item_id"`
	TagID     uint      `gorm:"primaryKey;autoIncrement:false" json:"tag_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
