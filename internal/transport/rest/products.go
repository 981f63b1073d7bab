package rest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/shopspring/decimal"
)

// ListProducts lists the catalog, optionally narrowed to ?category=.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	var (
		list []catalog.Product
		err  error
	)
	if category := r.URL.Query().Get("category"); category != "" {
		list, err = h.Catalog.ListByCategory(r.Context(), category)
	} else {
		list, err = h.Catalog.ListAll(r.Context())
	}
	if err != nil {
		respondFailure(w, r, log, "Failed to fetch products", err)
		return
	}
	web.RespondJSON(w, log, http.StatusOK, list)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	id, ok := web.ParseInt64ID(w, r, log)
	if !ok {
		return
	}
	p, err := h.Catalog.FindByID(r.Context(), id)
	if errors.Is(err, catalog.ErrProductNotFound) {
		web.RespondError(w, log, http.StatusNotFound, fmt.Sprintf("Product with ID %d not found", id))
		return
	}
	if err != nil {
		respondFailure(w, r, log, "Failed to fetch product", err)
		return
	}
	web.RespondJSON(w, log, http.StatusOK, p)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	list, err := h.Catalog.ListCategories(r.Context())
	if err != nil {
		respondFailure(w, r, log, "Failed to fetch categories", err)
		return
	}
	web.RespondJSON(w, log, http.StatusOK, list)
}

// CreateProduct accepts a multipart form with the product fields and an "image" file.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		log.WarnContext(r.Context(), "Invalid multipart form", "error", err)
		web.RespondError(w, log, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	dto, err := productFormDto(r)
	if err != nil {
		web.RespondError(w, log, http.StatusBadRequest, err.Error())
		return
	}
	img, err := formImage(r, h.maxUploadBytes)
	if err != nil {
		web.RespondError(w, log, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.Catalog.Create(r.Context(), dto, img)
	if errors.Is(err, catalog.ErrInvalidProduct) {
		log.WarnContext(r.Context(), "Product rejected", "error", err)
		web.RespondError(w, log, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		respondFailure(w, r, log, "Failed to create product", err)
		return
	}
	log.InfoContext(r.Context(), "Product created successfully", "ID", p.ID)
	w.Header().Set("Location", fmt.Sprintf("/api/v1/products/%d", p.ID))
	web.RespondJSON(w, log, http.StatusCreated, p)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	id, ok := web.ParseInt64ID(w, r, log)
	if !ok {
		return
	}
	var dto catalog.UpdateDto
	if !web.DecodeJSON(w, r, log, &dto) {
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		web.RespondValidation(w, r, log, err)
		return
	}
	p, err := h.Catalog.Update(r.Context(), id, dto)
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		web.RespondError(w, log, http.StatusNotFound, fmt.Sprintf("Product with ID %d not found", id))
	case errors.Is(err, catalog.ErrInvalidProduct):
		web.RespondError(w, log, http.StatusBadRequest, err.Error())
	case err != nil:
		respondFailure(w, r, log, "Failed to update product", err)
	default:
		web.RespondJSON(w, log, http.StatusOK, p)
	}
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	log := h.logger
	id, ok := web.ParseInt64ID(w, r, log)
	if !ok {
		return
	}
	if err := h.Catalog.Delete(r.Context(), id); err != nil {
		respondFailure(w, r, log, "Failed to delete product", err)
		return
	}
	log.InfoContext(r.Context(), "Product deleted", "ID", id)
	w.WriteHeader(http.StatusNoContent)
}

func productFormDto(r *http.Request) (catalog.CreateDto, error) {
	dto := catalog.CreateDto{
		Title:       r.FormValue("title"),
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
	}
	if v := r.FormValue("price"); v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return dto, fmt.Errorf("invalid price %q", v)
		}
		dto.Price = price
	}
	rate, count := r.FormValue("rating_rate"), r.FormValue("rating_count")
	if rate != "" || count != "" {
		dto.Rating = &catalog.Rating{}
		if rate != "" {
			v, err := strconv.ParseFloat(rate, 64)
			if err != nil {
				return dto, fmt.Errorf("invalid rating_rate %q", rate)
			}
			dto.Rating.Rate = v
		}
		if count != "" {
			v, err := strconv.Atoi(count)
			if err != nil {
				return dto, fmt.Errorf("invalid rating_count %q", count)
			}
			dto.Rating.Count = v
		}
	}
	return dto, nil
}

func formImage(r *http.Request, maxBytes int64) (catalog.Image, error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return catalog.Image{}, nil
	}
	if err != nil {
		return catalog.Image{}, fmt.Errorf("invalid image upload")
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return catalog.Image{}, fmt.Errorf("invalid image upload")
	}
	if int64(len(data)) > maxBytes {
		return catalog.Image{}, fmt.Errorf("image exceeds %d bytes", maxBytes)
	}
	return catalog.Image{Name: header.Filename, Data: data}, nil
}
