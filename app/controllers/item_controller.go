package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/flomify/flomify/app/models"
	"github.com/flomify/flomify/app/repository"
	"github.com/flomify/flomify/internal/pkg/billing"
	"github.com/flomify/flomify/internal/pkg/cache"
	"github.com/flomify/flomify/internal/pkg/usercontext"
	"github.com/flomify/flomify/internal/pkg/utils"
)

const (
	filterOptionsCacheKey = "catalog:filter-options"
	filterOptionsTTL      = 5 * time.Minute
)

// CopyCounter buffers popularity increments for copied items.
type CopyCounter interface {
	AddItemCopy(ctx context.Context, itemID uint) error
}

// ItemController serves the component catalog.
type ItemController struct {
	repos   *repository.Repositories
	billing *billing.Service
	counter CopyCounter
	metrics Metrics
}

func NewItemController(repos *repository.Repositories, svc *billing.Service, counter CopyCounter, metrics Metrics) *ItemController {
	return &ItemController{repos: repos, billing: svc, counter: counter, metrics: orNoop(metrics)}
}

type platformFlag struct {
	Enabled bool `json:"enabled"`
}

// itemResponse is the public view of an item. Platform code is never listed.
type itemResponse struct {
	ID                 uint                    `json:"id"`
	Name               string                  `json:"name"`
	Description        string                  `json:"description"`
	ItemType           string                  `json:"item_type"`
	CategoryID         *uint                   `json:"category_id,omitempty"`
	Category           *models.Category        `json:"category,omitempty"`
	LicenseType        string                  `json:"license_type"`
	Collection         string                  `json:"collection"`
	ThumbnailURL       string                  `json:"thumbnail_url"`
	LivePreview        string                  `json:"live_preview"`
	PurchaseLink       string                  `json:"purchase_link"`
	Tags               []string                `json:"tags"`
	AvailablePlatforms []string                `json:"available_platforms"`
	PlatformData       map[string]platformFlag `json:"platform_data"`
	PopularityScore    int                     `json:"popularity_score"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

func toItemResponse(item *models.Item) itemResponse {
	flags := make(map[string]platformFlag, len(models.SupportedPlatforms))
	for p, enabled := range item.PlatformFlags() {
		flags[p] = platformFlag{Enabled: enabled}
	}
	platforms := item.AvailablePlatforms
	if platforms == nil {
		platforms = []string{}
	}
	return itemResponse{
		ID:                 item.ID,
		Name:               item.Name,
		Description:        item.Description,
		ItemType:           item.ItemType,
		CategoryID:         item.CategoryID,
		Category:           item.Category,
		LicenseType:        item.LicenseType,
		Collection:         item.Collection,
		ThumbnailURL:       item.ThumbnailURL,
		LivePreview:        item.LivePreview,
		PurchaseLink:       item.PurchaseLink,
		Tags:               item.TagNames(),
		AvailablePlatforms: platforms,
		PlatformData:       flags,
		PopularityScore:    item.PopularityScore,
		CreatedAt:          item.CreatedAt,
		UpdatedAt:          item.UpdatedAt,
	}
}

func toItemResponses(items []models.Item) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for i := range items {
		out = append(out, toItemResponse(&items[i]))
	}
	return out
}

// HandleListItems serves GET /api/items
func (ic *ItemController) HandleListItems(c *fiber.Ctx) error {
	filter := repository.ItemFilter{
		ItemType:    c.Query("item_type"),
		LicenseType: c.Query("license_type"),
		CategoryID:  c.Query("category_id"),
		Collection:  c.Query("collection"),
		Platforms:   utils.SplitList(c.Query("platforms")),
		Tags:        utils.SplitList(c.Query("tags")),
		Search:      c.Query("search"),
		SortBy:      c.Query("sort_by", c.Query("sort")),
		Page:        c.QueryInt("page", 1),
		PageSize:    c.QueryInt("page_size", repository.DefaultPageSize),
	}

	page, err := ic.repos.Item.List(filter)
	if err != nil {
		log.Errorf("[Catalog] Listing items failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "list_failed", "")
	}

	resp := fiber.Map{
		"items":          toItemResponses(page.Items),
		"total_count":    page.TotalCount,
		"has_more":       page.HasMore,
		"current_page":   page.CurrentPage,
		"filter_options": nil,
	}
	if page.CurrentPage == 1 {
		opts, err := ic.filterOptions(c.UserContext())
		if err != nil {
			log.Warnf("[Catalog] Loading filter options failed: %v", err)
		} else {
			resp["filter_options"] = opts
		}
	}
	return c.JSON(resp)
}

// HandleFilterOptions serves GET /api/items/filter-options
func (ic *ItemController) HandleFilterOptions(c *fiber.Ctx) error {
	opts, err := ic.filterOptions(c.UserContext())
	if err != nil {
		log.Errorf("[Catalog] Loading filter options failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "filter_options_failed", "")
	}
	return c.JSON(opts)
}

// filterOptions reads through the Redis cache when one is configured.
func (ic *ItemController) filterOptions(ctx context.Context) (*repository.FilterOptions, error) {
	useCache := cache.GetClient() != nil
	if useCache {
		var cached repository.FilterOptions
		if err := cache.GetJSON(ctx, filterOptionsCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}
	opts, err := ic.repos.Item.FilterOptions()
	if err != nil {
		return nil, err
	}
	if useCache {
		if err := cache.SetJSON(ctx, filterOptionsCacheKey, opts, filterOptionsTTL); err != nil {
			log.Warnf("[Catalog] Caching filter options failed: %v", err)
		}
	}
	return opts, nil
}

// HandleGetItem serves GET /api/items/:id
func (ic *ItemController) HandleGetItem(c *fiber.Ctx) error {
	item, ok := ic.loadItem(c)
	if !ok {
		return nil
	}
	return c.JSON(toItemResponse(item))
}

// HandleRelatedItems serves GET /api/items/:id/related
func (ic *ItemController) HandleRelatedItems(c *fiber.Ctx) error {
	item, ok := ic.loadItem(c)
	if !ok {
		return nil
	}
	items, err := ic.repos.Item.Related(item, repository.MaxRelatedItems)
	if err != nil {
		log.Errorf("[Catalog] Related items for %d failed: %v", item.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "related_failed", "")
	}
	return c.JSON(fiber.Map{"items": toItemResponses(items)})
}

// HandleCollectionItems serves GET /api/items/:id/collection
func (ic *ItemController) HandleCollectionItems(c *fiber.Ctx) error {
	item, ok := ic.loadItem(c)
	if !ok {
		return nil
	}
	page, err := ic.repos.Item.Collection(item, repository.MaxRelatedItems)
	if err != nil {
		log.Errorf("[Catalog] Collection items for %d failed: %v", item.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "collection_failed", "")
	}
	return c.JSON(fiber.Map{
		"collection": item.Collection,
		"items":      toItemResponses(page.Items),
		"total":      page.Total,
		"has_more":   page.HasMore,
	})
}

// HandleCopyPlatformCode serves GET /api/items/:id/copy/:platform.
// Premium items require an active subscription.
func (ic *ItemController) HandleCopyPlatformCode(c *fiber.Ctx) error {
	item, ok := ic.loadItem(c)
	if !ok {
		return nil
	}
	platform := strings.ToLower(c.Params("platform"))
	if !models.IsSupportedPlatform(platform) {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "unsupported platform")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if item.IsPremium() {
		user := usercontext.GetUserContext(c)
		if !user.IsLoggedIn {
			return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "You must be logged in to copy premium items")
		}
		allowed, err := ic.billing.CanAccessItem(ctx, user.UserID, item)
		if err != nil {
			log.Errorf("[Catalog] Entitlement check for user %s failed: %v", user.UserID, err)
			return jsonError(c, fiber.StatusInternalServerError, "entitlement_failed", "")
		}
		if !allowed {
			return jsonError(c, fiber.StatusForbidden, "premium_required", "This is a premium item. Please upgrade your subscription to copy premium code.")
		}
	}

	code, err := item.DecodedPlatformCode(platform)
	if err != nil {
		if errors.Is(err, models.ErrPlatformNotAvailable) {
			return jsonError(c, fiber.StatusNotFound, "not_found", err.Error())
		}
		log.Errorf("[Catalog] Decoding %s code of item %d failed: %v", platform, item.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "decode_failed", "")
	}

	if ic.counter != nil {
		if err := ic.counter.AddItemCopy(ctx, item.ID); err != nil {
			log.Warnf("[Catalog] Counting copy of item %d failed: %v", item.ID, err)
		}
	}
	ic.metrics.RecordItemCopy(platform, item.LicenseType)

	return c.JSON(fiber.Map{
		"item_id":  item.ID,
		"platform": platform,
		"code":     code,
	})
}

type platformCodeInput struct {
	Code    string `json:"code"`
	Enabled bool   `json:"enabled"`
}

type createItemRequest struct {
	Name         string                       `json:"name"`
	Description  string                       `json:"description"`
	ItemType     string                       `json:"item_type"`
	CategoryID   *uint                        `json:"category_id"`
	LicenseType  string                       `json:"license_type"`
	Collection   string                       `json:"collection"`
	ThumbnailURL string                       `json:"thumbnail_url"`
	LivePreview  string                       `json:"live_preview"`
	PurchaseLink string                       `json:"purchase_link"`
	Tags         []string                     `json:"tags"`
	PlatformData map[string]platformCodeInput `json:"platform_data"`
}

// toItem sanitizes the request into a new item. Platform code is stored
// base64 encoded and only for enabled, supported platforms.
func (r createItemRequest) toItem(userID string) *models.Item {
	license := strings.TrimSpace(r.LicenseType)
	if license != models.LicenseFree && license != models.LicensePremium {
		license = models.LicenseFree
	}
	item := &models.Item{
		UserID:             userID,
		Name:               utils.CleanText(r.Name),
		Description:        utils.CleanText(r.Description),
		ItemType:           strings.TrimSpace(r.ItemType),
		CategoryID:         r.CategoryID,
		LicenseType:        license,
		Collection:         utils.CleanText(r.Collection),
		ThumbnailURL:       utils.CleanURL(r.ThumbnailURL),
		LivePreview:        utils.CleanURL(r.LivePreview),
		PurchaseLink:       utils.CleanURL(r.PurchaseLink),
		AvailablePlatforms: []string{},
	}
	for _, p := range models.SupportedPlatforms {
		in, ok := r.PlatformData[p]
		if !ok || !in.Enabled || strings.TrimSpace(in.Code) == "" {
			continue
		}
		item.SetPlatformCode(p, in.Code)
	}
	return item
}

// HandleCreateItem serves POST /api/items
func (ic *ItemController) HandleCreateItem(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)

	var req createItemRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}

	item := req.toItem(user.UserID)
	if err := item.Validate(); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return jsonError(c, fiber.StatusBadRequest, "validation_failed", "invalid fields: "+strings.Join(fields, ", "))
		}
		return jsonError(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}
	if item.CategoryID != nil {
		if _, err := ic.repos.Category.GetByID(*item.CategoryID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return jsonError(c, fiber.StatusBadRequest, "validation_failed", "unknown category")
			}
			return jsonError(c, fiber.StatusInternalServerError, "create_failed", "")
		}
	}

	if err := ic.repos.Item.Create(item, utils.CleanTags(req.Tags)); err != nil {
		log.Errorf("[Catalog] Creating item %q failed: %v", item.Name, err)
		return jsonError(c, fiber.StatusInternalServerError, "create_failed", "Failed to create item")
	}
	if cache.GetClient() != nil {
		_ = cache.Delete(c.UserContext(), filterOptionsCacheKey)
	}

	log.Infof("[Catalog] User %s created item %d (%s)", user.UserID, item.ID, item.Name)
	return c.Status(fiber.StatusCreated).JSON(toItemResponse(item))
}

// HandleListCategories serves GET /api/categories
func (ic *ItemController) HandleListCategories(c *fiber.Ctx) error {
	categories, err := ic.repos.Category.GetAll()
	if err != nil {
		log.Errorf("[Catalog] Listing categories failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "list_failed", "")
	}
	return c.JSON(fiber.Map{"categories": categories})
}

// HandleListTags serves GET /api/tags
func (ic *ItemController) HandleListTags(c *fiber.Ctx) error {
	tags, err := ic.repos.Tag.Names()
	if err != nil {
		log.Errorf("[Catalog] Listing tags failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "list_failed", "")
	}
	return c.JSON(fiber.Map{"tags": tags})
}

// loadItem resolves :id. When it reports false the error response has
// already been written.
func (ic *ItemController) loadItem(c *fiber.Ctx) (*models.Item, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		_ = jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid item id")
		return nil, false
	}
	item, err := ic.repos.Item.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = jsonError(c, fiber.StatusNotFound, "not_found", "item not found")
			return nil, false
		}
		log.Errorf("[Catalog] Loading item %d failed: %v", id, err)
		_ = jsonError(c, fiber.StatusInternalServerError, "load_failed", "")
		return nil, false
	}
	return item, true
}
