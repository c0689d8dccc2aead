package models

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	LicenseFree    = "Free"
	LicensePremium = "Premium"
)

const (
	PlatformFigma   = "figma"
	PlatformFramer  = "framer"
	PlatformWebflow = "webflow"
)

// SupportedPlatforms is the static list of platforms an item can ship code for.
var SupportedPlatforms = []string{PlatformFigma, PlatformFramer, PlatformWebflow}

// ItemTypes lists the accepted catalog item types.
var ItemTypes = []string{"Components", "Blocks", "Templates", "Elements", "Animations"}

var ErrPlatformNotAvailable = errors.New("platform code not available for this item")

// PlatformCode holds the base64 encoded HTML snippet for a single platform.
type PlatformCode struct {
	Code    string `json:"code"`
	Enabled bool   `json:"enabled"`
}

type Item struct {
	ID                 uint                    `gorm:"primaryKey" json:"id"`
	ItemID             string                  `gorm:"type:varchar(64);uniqueIndex" json:"item_id"`
	UserID             string                  `gorm:"type:varchar(64);index" json:"user_id"`
	Name               string                  `gorm:"type:varchar(200);not null" json:"name" validate:"required,min=1,max=200"`
	Description        string                  `gorm:"type:text" json:"description" validate:"max=5000"`
	ItemType           string                  `gorm:"type:varchar(50);not null;index" json:"item_type" validate:"required,oneof=Components Blocks Templates Elements Animations"`
	CategoryID         *uint                   `gorm:"index" json:"category_id,omitempty"`
	Category           *Category               `json:"category,omitempty"`
	LicenseType        string                  `gorm:"type:varchar(20);not null;default:'Free';index" json:"license_type" validate:"required,oneof=Free Premium"`
	Collection         string                  `gorm:"type:varchar(100);default:'';index" json:"collection" validate:"max=100"`
	ThumbnailURL       string                  `gorm:"type:varchar(500)" json:"thumbnail_url" validate:"omitempty,url,max=500"`
	LivePreview        string                  `gorm:"type:varchar(500)" json:"live_preview" validate:"omitempty,url,max=500"`
	PurchaseLink       string                  `gorm:"type:varchar(500)" json:"purchase_link" validate:"omitempty,url,max=500"`
	Tags               []Tag                   `gorm:"many2many:item_tags;" json:"tags,omitempty"`
	AvailablePlatforms []string                `gorm:"type:text;serializer:json" json:"available_platforms"`
	PlatformData       map[string]PlatformCode `gorm:"type:text;serializer:json" json:"-"`
	PopularityScore    int                     `gorm:"default:0;index" json:"popularity_score"`
	CreatedAt          time.Time               `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time               `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt          `gorm:"index" json:"-"`
}

// BeforeCreate assigns the public item id.
func (i *Item) BeforeCreate(tx *gorm.DB) error {
	if i.ItemID == "" {
		i.ItemID = uuid.New().String()
	}
	return nil
}

func (i *Item) Validate() error {
	v := validator.New()
	return v.Struct(i)
}

// IsPremium reports whether copying the item's code requires an active subscription.
func (i *Item) IsPremium() bool {
	return i.LicenseType == LicensePremium
}

// SetPlatformCode stores html for a platform, base64 encoded, and marks the platform available.
func (i *Item) SetPlatformCode(platform, html string) {
	if i.PlatformData == nil {
		i.PlatformData = make(map[string]PlatformCode, len(SupportedPlatforms))
	}
	i.PlatformData[platform] = PlatformCode{
		Code:    base64.StdEncoding.EncodeToString([]byte(html)),
		Enabled: true,
	}
	for _, p := range i.AvailablePlatforms {
		if p == platform {
			return
		}
	}
	i.AvailablePlatforms = append(i.AvailablePlatforms, platform)
}

// DecodedPlatformCode returns the decoded html snippet for a platform.
func (i *Item) DecodedPlatformCode(platform string) (string, error) {
	pc, ok := i.PlatformData[platform]
	if !ok || !pc.Enabled || pc.Code == "" || !i.HasPlatform(platform) {
		return "", ErrPlatformNotAvailable
	}
	decoded, err := base64.StdEncoding.DecodeString(pc.Code)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// HasPlatform reports whether platform is listed in AvailablePlatforms.
func (i *Item) HasPlatform(platform string) bool {
	for _, p := range i.AvailablePlatforms {
		if p == platform {
			return true
		}
	}
	return false
}

// PlatformFlags returns the enabled state of every supported platform.
// Availability is driven by AvailablePlatforms, matching what the catalog filters on.
func (i *Item) PlatformFlags() map[string]bool {
	flags := make(map[string]bool, len(SupportedPlatforms))
	for _, p := range SupportedPlatforms {
		flags[p] = i.HasPlatform(p)
	}
	return flags
}

// TagNames returns the names of the item's tags.
func (i *Item) TagNames() []string {
	names := make([]string, 0, len(i.Tags))
	for _, t := range i.Tags {
		names = append(names, t.Name)
	}
	return names
}

// IsSupportedPlatform reports whether p is one of SupportedPlatforms.
func IsSupportedPlatform(p string) bool {
	for _, sp := range SupportedPlatforms {
		if sp == p {
			return true
		}
	}
	return false
}
