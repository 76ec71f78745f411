package listing

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"bookmarket/internal/httpx"

	"go.uber.org/zap"
)

// multipartMemory is the part of a publish form kept in memory; the rest
// spills to temporary files.
const multipartMemory = 8 << 20

type HTTPHandler struct {
	service *Service
	log     *zap.Logger
}

func NewHTTPHandler(service *Service, log *zap.Logger) *HTTPHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPHandler{service: service, log: log}
}

// List handles GET /v1/listings
// @Summary Browse or search listings
// @Description Lists every listing newest first, or those whose title contains the search text
// @Tags listings
// @Produce json
// @Param search query string false "Case-insensitive title substring"
// @Param page query int false "Page number, used with page_size"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} httpx.SuccessResponse
// @Failure 500 {object} httpx.ErrorResponse
// @Router /v1/listings [get]
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	f := Filter{TitleContains: query.Get("search")}

	meta := map[string]any{}
	if pageSize, _ := strconv.Atoi(query.Get("page_size")); pageSize > 0 {
		if pageSize > 100 {
			pageSize = 100
		}
		page, _ := strconv.Atoi(query.Get("page"))
		if page < 1 {
			page = 1
		}
		f.Limit = pageSize
		f.Offset = (page - 1) * pageSize
		meta["page"] = page
		meta["page_size"] = pageSize
	}

	res, err := h.service.Browse(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	meta["filtered"] = res.Filtered
	meta["total"] = len(res.Listings)
	if res.Filtered {
		meta["search"] = res.Query
	}
	httpx.JSONSuccess(w, r, res.Listings, meta)
}

// Get handles GET /v1/listings/{id}
// @Summary Listing details
// @Tags listings
// @Produce json
// @Param id path string true "Listing ID"
// @Success 200 {object} httpx.SuccessResponse
// @Failure 404 {object} httpx.ErrorResponse
// @Router /v1/listings/{id} [get]
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, l, nil)
}

// Publish handles POST /v1/listings
// @Summary Publish a listing
// @Description Multipart form with listing fields, a required cover image and optional seller photo and payment QR code
// @Tags listings
// @Accept multipart/form-data
// @Produce json
// @Security Bearer
// @Param title formData string true "Title"
// @Param price formData string true "Price"
// @Param contact_number formData string true "Contact number"
// @Param payment_method formData string false "Cash, Google Pay or Phone Pay"
// @Param cover formData file true "Cover image"
// @Param seller_photo formData file false "Seller photo"
// @Param qr_code formData file false "Payment QR code"
// @Success 201 {object} httpx.SuccessResponse
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 401 {object} httpx.ErrorResponse
// @Failure 502 {object} httpx.ErrorResponse
// @Router /v1/listings [post]
func (h *HTTPHandler) Publish(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFrom(r)
	if userID == "" {
		httpx.JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid multipart form", nil)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	draft := Draft{
		Title:         r.FormValue("title"),
		Description:   r.FormValue("description"),
		Price:         r.FormValue("price"),
		Subject:       r.FormValue("subject"),
		Edition:       r.FormValue("edition"),
		Condition:     r.FormValue("condition"),
		SellerName:    r.FormValue("seller_name"),
		ContactNumber: r.FormValue("contact_number"),
		PaymentMethod: PaymentMethod(r.FormValue("payment_method")),
	}

	var images Images
	var err error
	if images.Cover, err = formImage(r, "cover"); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Cannot read cover image", nil)
		return
	}
	if images.SellerPhoto, err = formImage(r, "seller_photo"); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Cannot read seller photo", nil)
		return
	}
	if images.QRCode, err = formImage(r, "qr_code"); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Cannot read QR code", nil)
		return
	}

	id, err := h.service.Publish(r.Context(), userID, draft, images)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, map[string]string{"id": id})
}

// formImage reads an optional file part. A missing part yields nil.
func formImage(r *http.Request, field string) (*Image, error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readImage(f, hdr)
}

func readImage(f multipart.File, hdr *multipart.FileHeader) (*Image, error) {
	// One byte past the limit so oversize files still fail validation.
	data, err := io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
	if err != nil {
		return nil, err
	}
	return &Image{Filename: hdr.Filename, Data: data}, nil
}

// Delete handles DELETE /v1/listings/{id}
// @Summary Delete own listing
// @Tags listings
// @Security Bearer
// @Param id path string true "Listing ID"
// @Success 204
// @Failure 401 {object} httpx.ErrorResponse
// @Failure 403 {object} httpx.ErrorResponse
// @Failure 404 {object} httpx.ErrorResponse
// @Router /v1/listings/{id} [delete]
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFrom(r)
	if userID == "" {
		httpx.JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	if err := h.service.Delete(r.Context(), r.PathValue("id"), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONNoContent(w)
}

// Mine handles GET /v1/me/listings
// @Summary Own listings
// @Tags listings
// @Produce json
// @Security Bearer
// @Success 200 {object} httpx.SuccessResponse
// @Failure 401 {object} httpx.ErrorResponse
// @Router /v1/me/listings [get]
func (h *HTTPHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFrom(r)
	if userID == "" {
		httpx.JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	ls, err := h.service.ListByOwner(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, ls, map[string]any{"total": len(ls)})
}

// ByProfileEmail handles GET /v1/profiles/listings
// @Summary Listings of the profile with the given email
// @Description Defaults to the caller's own email when none is given
// @Tags listings
// @Produce json
// @Security Bearer
// @Param email query string false "Profile email"
// @Success 200 {object} httpx.SuccessResponse
// @Failure 404 {object} httpx.ErrorResponse
// @Router /v1/profiles/listings [get]
func (h *HTTPHandler) ByProfileEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		email = httpx.EmailFrom(r)
	}

	ls, err := h.service.ListByOwnerEmail(r.Context(), email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, ls, map[string]any{"total": len(ls)})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		details := make([]httpx.ErrorDetail, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			details = append(details, httpx.ErrorDetail{Field: f.Field, Message: f.Message})
		}
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid listing", details)
	case errors.Is(err, ErrPermission):
		httpx.JSONError(w, r, http.StatusForbidden, "FORBIDDEN", "Not allowed to modify this listing", nil)
	case errors.Is(err, ErrNotFound):
		httpx.JSONError(w, r, http.StatusNotFound, "NOT_FOUND", "Listing not found", nil)
	case errors.Is(err, ErrUpload):
		h.log.Error("asset upload failed", zap.String("request_id", httpx.RequestIDFrom(r)), zap.Error(err))
		httpx.JSONError(w, r, http.StatusBadGateway, "UPLOAD_FAILED", "Image upload failed", nil)
	default:
		h.log.Error("request failed", zap.String("request_id", httpx.RequestIDFrom(r)), zap.Error(err))
		httpx.JSONError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
	}
}
