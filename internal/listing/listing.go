package listing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("listing validation failed")
	// ErrUpload is matched by every *UploadError.
	ErrUpload = errors.New("asset upload failed")
	// ErrPermission is returned when the actor may not perform the operation.
	ErrPermission = errors.New("operation not permitted")
	// ErrNotFound is returned when a listing is not found.
	ErrNotFound = errors.New("listing not found")
)

// DefaultCondition is stored when the seller leaves condition blank.
const DefaultCondition = "Good"

// DefaultSellerName is stored when the seller leaves their display name blank.
const DefaultSellerName = "Unknown"

// PaymentMethod is the single payment option a seller accepts off-platform.
type PaymentMethod string

const (
	PaymentCash      PaymentMethod = "Cash"
	PaymentGooglePay PaymentMethod = "Google Pay"
	PaymentPhonePay  PaymentMethod = "Phone Pay"
)

// PaymentMethods lists the accepted values in display order.
var PaymentMethods = []PaymentMethod{PaymentCash, PaymentGooglePay, PaymentPhonePay}

func (p PaymentMethod) Valid() bool {
	for _, m := range PaymentMethods {
		if p == m {
			return true
		}
	}
	return false
}

// Listing is a single book offered for sale.
type Listing struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Price          decimal.Decimal `json:"price"`
	Subject        string          `json:"subject,omitempty"`
	Edition        string          `json:"edition,omitempty"`
	Condition      string          `json:"condition"`
	SellerName     string          `json:"seller_name"`
	ContactNumber  string          `json:"contact_number"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	ImageURL       string          `json:"image_url"`
	SellerImageURL string          `json:"seller_image,omitempty"`
	QRCodeURL      string          `json:"qr_code_url,omitempty"`
	OwnerID        string          `json:"user_id"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Filter narrows QueryAll. The zero value matches every listing.
type Filter struct {
	TitleContains string
	Limit         int
	Offset        int
}

// Result is a browse or search outcome. Filtered reports whether a title
// query was applied, which is how "no listings yet" differs from "no matches".
type Result struct {
	Listings []Listing
	Filtered bool
	Query    string
}

// Category namespaces an uploaded asset inside the bucket.
type Category string

const (
	CategoryCover       Category = "book-images"
	CategorySellerPhoto Category = "seller-images"
	CategoryQRCode      Category = "qr-codes"
)

// Image is an uploaded file as received from the client.
type Image struct {
	Filename string
	Data     []byte
}

// Images groups the files attached to a publish. Cover is mandatory.
type Images struct {
	Cover       *Image
	SellerPhoto *Image
	QRCode      *Image
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every failing field of a rejected input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// UploadError wraps an asset store failure for one category.
type UploadError struct {
	Category Category
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Category, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

func (e *UploadError) Is(target error) bool { return target == ErrUpload }
