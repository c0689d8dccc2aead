package repository

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flomify/flomify/app/models"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 100

	// MaxRelatedItems bounds the related and collection lists on the item page.
	MaxRelatedItems = 8

	filterAll = "all"
)

// Sort modes accepted by List
const (
	SortNewest     = "newest"
	SortOldest     = "oldest"
	SortNameAsc    = "name-asc"
	SortNameDesc   = "name-desc"
	SortPopularity = "popularity"
)

var sortOrders = map[string]string{
	SortNewest:     "items.created_at DESC",
	SortOldest:     "items.created_at ASC",
	SortNameAsc:    "items.name ASC",
	SortNameDesc:   "items.name DESC",
	SortPopularity: "items.popularity_score DESC",
}

// ItemFilter holds the catalog browse parameters. Empty and "all" values
// disable the corresponding filter.
type ItemFilter struct {
	ItemType    string
	LicenseType string
	CategoryID  string
	Collection  string
	Platforms   []string
	Tags        []string
	Search      string
	SortBy      string
	Page        int
	PageSize    int
}

// Normalize clamps paging and applies the default sort.
func (f *ItemFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if _, ok := sortOrders[f.SortBy]; !ok {
		f.SortBy = SortNewest
	}
	f.Search = strings.TrimSpace(f.Search)
	f.Platforms = normalizeList(f.Platforms)
	f.Tags = normalizeList(f.Tags)
}

// Offset returns the number of rows skipped for the current page.
func (f ItemFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// ItemPage is one page of catalog results.
type ItemPage struct {
	Items       []models.Item
	TotalCount  int64
	HasMore     bool
	CurrentPage int
}

// CollectionPage holds items of the same collection as a given item.
type CollectionPage struct {
	Items   []models.Item
	Total   int64
	HasMore bool
}

// FilterOptions lists the values the catalog can be filtered by.
type FilterOptions struct {
	ItemTypes    []string          `json:"item_types"`
	LicenseTypes []string          `json:"license_types"`
	Platforms    []string          `json:"platforms"`
	Categories   []models.Category `json:"categories"`
	Collections  []string          `json:"collections"`
	Tags         []string          `json:"tags"`
}

// itemRepository implements the ItemRepository interface
type itemRepository struct {
	db *gorm.DB
}

// NewItemRepository creates a new item repository instance
func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

// Create stores a new item and links its tags, creating missing tags.
func (r *itemRepository) Create(item *models.Item, tagNames []string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		tags := make([]models.Tag, 0, len(tagNames))
		for _, name := range normalizeList(tagNames) {
			tag := models.Tag{Name: name}
			if err := tag.FindOrCreate(tx); err != nil {
				return fmt.Errorf("tag %q: %w", name, err)
			}
			tags = append(tags, tag)
		}
		item.Tags = tags
		return tx.Create(item).Error
	})
}

// GetByID retrieves an item with its category and tags
func (r *itemRepository) GetByID(id uint) (*models.Item, error) {
	var item models.Item
	err := r.db.Preload("Category").Preload("Tags").First(&item, id).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns one filtered, sorted page of items
func (r *itemRepository) List(filter ItemFilter) (*ItemPage, error) {
	filter.Normalize()

	var total int64
	if err := filteredItems(r.db, filter).Count(&total).Error; err != nil {
		return nil, err
	}

	var items []models.Item
	err := filteredItems(r.db, filter).
		Preload("Tags").
		Order(sortOrders[filter.SortBy]).
		Order("items.id DESC").
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	return &ItemPage{
		Items:       items,
		TotalCount:  total,
		HasMore:     total > int64(filter.Page*filter.PageSize),
		CurrentPage: filter.Page,
	}, nil
}

// Related returns items sharing at least one tag, most shared tags first
func (r *itemRepository) Related(item *models.Item, limit int) ([]models.Item, error) {
	if limit <= 0 || limit > MaxRelatedItems {
		limit = MaxRelatedItems
	}
	var items []models.Item
	err := relatedItems(r.db, item.ID).Preload("Tags").Limit(limit).Find(&items).Error
	return items, err
}

// Collection returns the other items of the item's collection
func (r *itemRepository) Collection(item *models.Item, limit int) (*CollectionPage, error) {
	page := &CollectionPage{Items: []models.Item{}}
	if item.Collection == "" {
		return page, nil
	}
	if limit <= 0 || limit > MaxRelatedItems {
		limit = MaxRelatedItems
	}

	if err := collectionItems(r.db, item).Count(&page.Total).Error; err != nil {
		return nil, err
	}
	err := collectionItems(r.db, item).
		Preload("Tags").
		Order("items.created_at DESC").
		Limit(limit).
		Find(&page.Items).Error
	if err != nil {
		return nil, err
	}
	page.HasMore = page.Total > int64(len(page.Items))
	return page, nil
}

// FilterOptions collects the values currently present in the catalog
func (r *itemRepository) FilterOptions() (*FilterOptions, error) {
	opts := &FilterOptions{
		ItemTypes:    models.ItemTypes,
		LicenseTypes: []string{models.LicenseFree, models.LicensePremium},
		Platforms:    models.SupportedPlatforms,
	}
	if err := r.db.Order("name ASC").Find(&opts.Categories).Error; err != nil {
		return nil, err
	}
	err := r.db.Model(&models.Item{}).
		Where("collection <> ''").
		Distinct("collection").
		Order("collection ASC").
		Pluck("collection", &opts.Collections).Error
	if err != nil {
		return nil, err
	}
	if err := r.db.Model(&models.Tag{}).Order("name ASC").Pluck("name", &opts.Tags).Error; err != nil {
		return nil, err
	}
	return opts, nil
}

// Count returns the total number of items
func (r *itemRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Item{}).Count(&count).Error
	return count, err
}

// filteredItems builds the WHERE part shared by the count and page queries.
func filteredItems(db *gorm.DB, f ItemFilter) *gorm.DB {
	fresh := db.Session(&gorm.Session{NewDB: true})
	q := db.Model(&models.Item{})

	if isSet(f.ItemType) {
		q = q.Where("items.item_type = ?", f.ItemType)
	}
	if isSet(f.LicenseType) {
		q = q.Where("items.license_type = ?", f.LicenseType)
	}
	if isSet(f.CategoryID) {
		if id, err := strconv.ParseUint(f.CategoryID, 10, 64); err == nil {
			q = q.Where("items.category_id = ?", id)
		} else {
			// a category that cannot exist matches nothing
			q = q.Where("1 = 0")
		}
	}
	if isSet(f.Collection) {
		q = q.Where("items.collection = ?", f.Collection)
	}
	// available_platforms is a JSON array of quoted names
	for _, p := range f.Platforms {
		q = q.Where("items.available_platforms LIKE ?", `%"`+p+`"%`)
	}
	if len(f.Tags) > 0 {
		sub := fresh.Table("item_tags").
			Select("item_tags.item_id").
			Joins("JOIN tags ON tags.id = item_tags.tag_id").
			Where("tags.name IN ?", f.Tags).
			Group("item_tags.item_id").
			Having("COUNT(DISTINCT tags.name) = ?", len(f.Tags))
		q = q.Where("items.id IN (?)", sub)
	}
	if f.Search != "" {
		like := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		tagged := fresh.Table("item_tags").
			Select("item_tags.item_id").
			Joins("JOIN tags ON tags.id = item_tags.tag_id").
			Where("tags.name = ?", strings.ToLower(f.Search))
		q = q.Where(
			fresh.Where("LOWER(items.name) LIKE ?", like).
				Or("LOWER(items.description) LIKE ?", like).
				Or("items.id IN (?)", tagged),
		)
	}
	return q
}

func relatedItems(db *gorm.DB, itemID uint) *gorm.DB {
	tagIDs := db.Session(&gorm.Session{NewDB: true}).Table("item_tags").Select("tag_id").Where("item_id = ?", itemID)
	return db.Model(&models.Item{}).
		Select("items.*").
		Joins("JOIN item_tags ON item_tags.item_id = items.id").
		Where("item_tags.tag_id IN (?)", tagIDs).
		Where("items.id <> ?", itemID).
		Group("items.id").
		Order("COUNT(item_tags.tag_id) DESC").
		Order("items.popularity_score DESC")
}

func collectionItems(db *gorm.DB, item *models.Item) *gorm.DB {
	return db.Model(&models.Item{}).
		Where("items.collection = ?", item.Collection).
		Where("items.id <> ?", item.ID)
}

func isSet(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, filterAll)
}

func normalizeList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
