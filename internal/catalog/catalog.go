// Package catalog reads and maintains products and their categories.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/abgdnv/storefront/internal/blob"
	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/docstore"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	ProductsCollection   = "products"
	CategoriesCollection = "categories"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidProduct  = errors.New("invalid product")
)

type Rating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

type Product struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Rating      Rating          `json:"rating"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// CartProduct is the view of p that goes into a cart line.
func (p Product) CartProduct() cart.Product {
	return cart.Product{ID: p.ID, Title: p.Title, Price: p.Price, Image: p.Image}
}

type Category struct {
	Name string `json:"name"`
}

// CreateDto is the product form. The image travels separately as an Image.
type CreateDto struct {
	Title       string          `json:"title"       validate:"required,min=3,max=200"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"    validate:"required,max=100"`
	Description string          `json:"description" validate:"max=5000"`
	Rating      *Rating         `json:"rating"`
}

// UpdateDto carries the editable fields. Nil fields are left unchanged.
type UpdateDto struct {
	Title       *string          `json:"title"       validate:"omitempty,min=3,max=200"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category"    validate:"omitempty,max=100"`
	Description *string          `json:"description" validate:"omitempty,max=5000"`
	Rating      *Rating          `json:"rating"`
}

// Image is an uploaded product picture.
type Image struct {
	Name string
	Data []byte
}

// Service implements the catalog. Images are uploaded under pathPrefix.
type Service struct {
	store      docstore.Store
	blobs      blob.Store
	validate   *validator.Validate
	pathPrefix string
	logger     *slog.Logger
	now        func() time.Time
	lastID     atomic.Int64
}

func NewService(store docstore.Store, blobs blob.Store, pathPrefix string, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		blobs:      blobs,
		validate:   validator.New(),
		pathPrefix: strings.Trim(pathPrefix, "/"),
		logger:     logger.With("component", "catalog"),
		now:        time.Now,
	}
}

// ListAll returns every product ordered by title.
func (s *Service) ListAll(ctx context.Context) ([]Product, error) {
	docs, err := s.store.Query(ctx, docstore.Query{Collection: ProductsCollection}.Sorted("title", false))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return toProducts(docs)
}

// ListByCategory returns the products of category ordered by title.
func (s *Service) ListByCategory(ctx context.Context, category string) ([]Product, error) {
	q := docstore.Where(ProductsCollection, "category", category).Sorted("title", false)
	docs, fallback, err := docstore.QuerySorted(ctx, s.store, q)
	if err != nil {
		return nil, fmt.Errorf("list products of %s: %w", category, err)
	}
	if fallback {
		s.logger.WarnContext(ctx, "Product index missing, sorted products in memory", "index", q.IndexName())
	}
	return toProducts(docs)
}

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	docs, err := s.store.Query(ctx, docstore.Query{Collection: CategoriesCollection}.Sorted("name", false))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]Category, 0, len(docs))
	for _, d := range docs {
		name := d.Field("name").String()
		if name == "" {
			name = d.ID
		}
		out = append(out, Category{Name: name})
	}
	return out, nil
}

func (s *Service) FindByID(ctx context.Context, id int64) (*Product, error) {
	doc, err := s.store.Get(ctx, ProductsCollection, docID(id))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find product %d: %w", id, err)
	}
	return toProduct(doc)
}

// Create validates the form, uploads the image and writes the product record.
// Nothing is written when validation fails. The record is written only after the
// upload succeeded.
func (s *Service) Create(ctx context.Context, dto CreateDto, img Image) (*Product, error) {
	if err := s.validateCreate(dto, img); err != nil {
		return nil, err
	}

	id := s.nextID(s.now())
	imagePath := path.Join(s.pathPrefix, fmt.Sprintf("%d_%s", id, sanitizeName(img.Name)))
	imageURL, err := s.blobs.Upload(ctx, imagePath, img.Data)
	if err != nil {
		return nil, fmt.Errorf("upload product image: %w", err)
	}

	rating := Rating{}
	if dto.Rating != nil {
		rating = clampRating(*dto.Rating)
	}
	doc, err := s.store.Put(ctx, ProductsCollection, docID(id), map[string]any{
		"id":          id,
		"title":       strings.TrimSpace(dto.Title),
		"price":       dto.Price,
		"category":    dto.Category,
		"description": dto.Description,
		"image":       imageURL,
		"rating":      rating,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Product record not written, image left orphaned", "image", imagePath, "error", err)
		return nil, fmt.Errorf("create product: %w", err)
	}
	if err := s.ensureCategory(ctx, dto.Category); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Product created", "product_id", id, "category", dto.Category)
	return toProduct(doc)
}

func (s *Service) Update(ctx context.Context, id int64, dto UpdateDto) (*Product, error) {
	if err := s.validate.Struct(dto); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	fields := map[string]any{}
	if dto.Title != nil {
		fields["title"] = strings.TrimSpace(*dto.Title)
	}
	if dto.Price != nil {
		if !dto.Price.IsPositive() {
			return nil, fmt.Errorf("%w: price must be greater than zero", ErrInvalidProduct)
		}
		fields["price"] = *dto.Price
	}
	if dto.Category != nil {
		if strings.TrimSpace(*dto.Category) == "" {
			return nil, fmt.Errorf("%w: category cannot be empty", ErrInvalidProduct)
		}
		fields["category"] = *dto.Category
	}
	if dto.Description != nil {
		fields["description"] = *dto.Description
	}
	if dto.Rating != nil {
		fields["rating"] = clampRating(*dto.Rating)
	}
	if len(fields) == 0 {
		return s.FindByID(ctx, id)
	}

	doc, err := s.store.Update(ctx, ProductsCollection, docID(id), fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update product %d: %w", id, err)
	}
	if dto.Category != nil {
		if err := s.ensureCategory(ctx, *dto.Category); err != nil {
			return nil, err
		}
	}
	return toProduct(doc)
}

// Delete removes the product record. Its image stays in the blob store.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, ProductsCollection, docID(id)); err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	return nil
}

func (s *Service) validateCreate(dto CreateDto, img Image) error {
	if err := s.validate.Struct(dto); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	if len(strings.TrimSpace(dto.Title)) < 3 {
		return fmt.Errorf("%w: title must be at least 3 characters", ErrInvalidProduct)
	}
	if !dto.Price.IsPositive() {
		return fmt.Errorf("%w: price must be greater than zero", ErrInvalidProduct)
	}
	if len(img.Data) == 0 {
		return fmt.Errorf("%w: image is required", ErrInvalidProduct)
	}
	return nil
}

func (s *Service) ensureCategory(ctx context.Context, name string) error {
	if _, err := s.store.Merge(ctx, CategoriesCollection, name, Category{Name: name}); err != nil {
		return fmt.Errorf("ensure category %s: %w", name, err)
	}
	return nil
}

func clampRating(r Rating) Rating {
	r.Rate = min(max(r.Rate, 0), 5)
	r.Count = max(r.Count, 0)
	return r
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeName keeps the base name of an uploaded file safe for use as a blob path segment.
func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Trim(unsafeNameChars.ReplaceAllString(name, "_"), "._")
	if name == "" {
		return "image"
	}
	return name
}

// nextID returns the creation time in epoch milliseconds, moved past the last id
// handed out so that products created within one millisecond get distinct ids.
func (s *Service) nextID(now time.Time) int64 {
	for {
		last := s.lastID.Load()
		id := max(now.UnixMilli(), last+1)
		if s.lastID.CompareAndSwap(last, id) {
			return id
		}
	}
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func toProduct(doc docstore.Document) (*Product, error) {
	var p Product
	if err := doc.Decode(&p); err != nil {
		return nil, err
	}
	if p.ID == 0 {
		id, err := strconv.ParseInt(doc.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("product %s has no numeric id", doc.ID)
		}
		p.ID = id
	}
	p.CreatedAt = doc.CreatedAt
	p.UpdatedAt = doc.UpdatedAt
	return &p, nil
}

func toProducts(docs []docstore.Document) ([]Product, error) {
	out := make([]Product, 0, len(docs))
	for _, d := range docs {
		p, err := toProduct(d)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}
