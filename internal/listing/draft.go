package listing

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// MaxImageBytes caps every uploaded image.
const MaxImageBytes = 10 << 20

// AcceptedImageTypes are the MIME types an uploaded image may sniff as.
var AcceptedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	validate.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		return PaymentMethod(fl.Field().String()).Valid()
	})
}

// Draft is the seller-supplied content of a listing, checked as a whole
// before anything is uploaded or stored. Owner and timestamps are never
// part of a draft.
type Draft struct {
	Title         string        `json:"title" validate:"required,max=200"`
	Description   string        `json:"description" validate:"max=5000"`
	Price         string        `json:"price" validate:"required"`
	Subject       string        `json:"subject" validate:"max=120"`
	Edition       string        `json:"edition" validate:"max=120"`
	Condition     string        `json:"condition" validate:"max=60"`
	SellerName    string        `json:"seller_name" validate:"max=120"`
	ContactNumber string        `json:"contact_number" validate:"required,number,max=15"`
	PaymentMethod PaymentMethod `json:"payment_method" validate:"omitempty,payment_method"`
}

// Normalize trims every field.
func (d Draft) Normalize() Draft {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.Price = strings.TrimSpace(d.Price)
	d.Subject = strings.TrimSpace(d.Subject)
	d.Edition = strings.TrimSpace(d.Edition)
	d.Condition = strings.TrimSpace(d.Condition)
	d.SellerName = strings.TrimSpace(d.SellerName)
	d.ContactNumber = strings.TrimSpace(d.ContactNumber)
	d.PaymentMethod = PaymentMethod(strings.TrimSpace(string(d.PaymentMethod)))
	return d
}

// Validate reports every invalid field of the normalized draft at once.
func (d Draft) Validate() error {
	d = d.Normalize()
	verr := &ValidationError{}

	if err := validate.Struct(d); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			verr.add(fe.Field(), fieldMessage(fe))
		}
	}

	if d.Price != "" {
		if _, err := ParsePrice(d.Price); err != nil {
			verr.add("price", err.Error())
		}
	}

	return verr.orNil()
}

// MaxPrice is the largest amount a NUMERIC(10,2) price column holds.
var MaxPrice = decimal.RequireFromString("99999999.99")

// ParsePrice parses a non-negative amount and rounds it to two decimals.
// The rounded amount must not exceed MaxPrice.
func ParsePrice(raw string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, errors.New("price must be a number")
	}
	if p.IsNegative() {
		return decimal.Zero, errors.New("price must not be negative")
	}
	p = p.Round(2)
	if p.GreaterThan(MaxPrice) {
		return decimal.Zero, errors.New("price is too large")
	}
	return p, nil
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "number":
		return fmt.Sprintf("%s must contain digits only", field)
	case "payment_method":
		names := make([]string, 0, len(PaymentMethods))
		for _, m := range PaymentMethods {
			names = append(names, string(m))
		}
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(names, ", "))
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// validateImages checks presence of the cover and the type and size of every
// supplied image. It performs no I/O.
func validateImages(images Images, verr *ValidationError) {
	if images.Cover == nil || len(images.Cover.Data) == 0 {
		verr.add("cover", "cover image is required")
	} else {
		checkImage("cover", images.Cover, verr)
	}
	if images.SellerPhoto != nil {
		checkImage("seller_photo", images.SellerPhoto, verr)
	}
	if images.QRCode != nil {
		checkImage("qr_code", images.QRCode, verr)
	}
}

func checkImage(field string, img *Image, verr *ValidationError) {
	if len(img.Data) == 0 {
		verr.add(field, "file is empty")
		return
	}
	if len(img.Data) > MaxImageBytes {
		verr.add(field, fmt.Sprintf("file exceeds %d MB", MaxImageBytes>>20))
		return
	}
	if !mimetype.EqualsAny(mimetype.Detect(img.Data).String(), AcceptedImageTypes...) {
		verr.add(field, "file must be a JPEG, PNG, GIF or WebP image")
	}
}
