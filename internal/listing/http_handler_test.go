package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"bookmarket/internal/httpx"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*HTTPHandler, *MockRepository, *MockAssetStore) {
	ctrl := gomock.NewController(t)
	mockRepo := NewMockRepository(ctrl)
	mockAssets := NewMockAssetStore(ctrl)
	return NewHTTPHandler(NewService(mockRepo, mockAssets), nil), mockRepo, mockAssets
}

func withUser(r *http.Request, id string) *http.Request {
	return r.WithContext(httpx.ContextWithUser(r.Context(), id, id+"@campus.edu"))
}

func publishForm(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestHTTPHandler_List(t *testing.T) {
	handler, mockRepo, _ := newTestHandler(t)

	t.Run("search", func(t *testing.T) {
		mockRepo.EXPECT().QueryAll(gomock.Any(), Filter{TitleContains: "calc"}).
			Return([]Listing{{ID: "1", Title: "Calculus II", Price: decimal.NewFromInt(120)}}, nil)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/listings?search=%20calc%20", nil)
		handler.List(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Data []Listing      `json:"data"`
			Meta map[string]any `json:"meta"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Data, 1)
		assert.Equal(t, "Calculus II", body.Data[0].Title)
		assert.Equal(t, true, body.Meta["filtered"])
	})

	t.Run("paged", func(t *testing.T) {
		mockRepo.EXPECT().QueryAll(gomock.Any(), Filter{Limit: 10, Offset: 20}).Return(nil, nil)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/listings?page=3&page_size=10", nil)
		handler.List(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"data":[]`)
	})

	t.Run("error", func(t *testing.T) {
		mockRepo.EXPECT().QueryAll(gomock.Any(), gomock.Any()).Return(nil, context.DeadlineExceeded)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/listings", nil)
		handler.List(w, r)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHTTPHandler_Get(t *testing.T) {
	handler, mockRepo, _ := newTestHandler(t)

	t.Run("success", func(t *testing.T) {
		mockRepo.EXPECT().GetByID(gomock.Any(), "abc").Return(Listing{ID: "abc", Title: "Optics"}, nil)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/listings/abc", nil)
		r.SetPathValue("id", "abc")
		handler.Get(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		mockRepo.EXPECT().GetByID(gomock.Any(), "missing").Return(Listing{}, ErrNotFound)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/listings/missing", nil)
		r.SetPathValue("id", "missing")
		handler.Get(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHTTPHandler_Publish(t *testing.T) {
	fields := map[string]string{
		"title":          "Data Structures",
		"price":          "250.00",
		"contact_number": "9876543210",
		"payment_method": "Cash",
	}

	t.Run("created", func(t *testing.T) {
		handler, mockRepo, mockAssets := newTestHandler(t)
		gomock.InOrder(
			mockAssets.EXPECT().Store(gomock.Any(), CategoryCover, "cover.png", pngBytes).
				Return("http://localhost:9000/book-marketplace/book-images/x.png", nil),
			mockRepo.EXPECT().Insert(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, l *Listing) (string, error) {
					assert.Equal(t, "u1", l.OwnerID)
					assert.Equal(t, PaymentCash, l.PaymentMethod)
					return "new-id", nil
				}),
		)

		body, ct := publishForm(t, fields, map[string][]byte{"cover": pngBytes})
		r := httptest.NewRequest(http.MethodPost, "/v1/listings", body)
		r.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		handler.Publish(w, withUser(r, "u1"))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"id":"new-id"`)
	})

	t.Run("owner field from client is ignored", func(t *testing.T) {
		handler, mockRepo, mockAssets := newTestHandler(t)
		mockAssets.EXPECT().Store(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("http://x/y.png", nil)
		mockRepo.EXPECT().Insert(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, l *Listing) (string, error) {
				assert.Equal(t, "u1", l.OwnerID)
				return "id", nil
			})

		withOwner := map[string]string{"user_id": "someone-else"}
		for k, v := range fields {
			withOwner[k] = v
		}
		body, ct := publishForm(t, withOwner, map[string][]byte{"cover": pngBytes})
		r := httptest.NewRequest(http.MethodPost, "/v1/listings", body)
		r.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		handler.Publish(w, withUser(r, "u1"))

		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("validation error lists fields and uploads nothing", func(t *testing.T) {
		handler, _, _ := newTestHandler(t)

		body, ct := publishForm(t, map[string]string{"price": "-5"}, nil)
		r := httptest.NewRequest(http.MethodPost, "/v1/listings", body)
		r.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		handler.Publish(w, withUser(r, "u1"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
		assert.Contains(t, w.Body.String(), `"field":"cover"`)
		assert.Contains(t, w.Body.String(), `"field":"title"`)
	})

	t.Run("upload failure", func(t *testing.T) {
		handler, _, mockAssets := newTestHandler(t)
		mockAssets.EXPECT().Store(gomock.Any(), CategoryCover, gomock.Any(), gomock.Any()).
			Return("", &UploadError{Category: CategoryCover, Err: context.DeadlineExceeded})

		body, ct := publishForm(t, fields, map[string][]byte{"cover": pngBytes})
		r := httptest.NewRequest(http.MethodPost, "/v1/listings", body)
		r.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		handler.Publish(w, withUser(r, "u1"))

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		handler, _, _ := newTestHandler(t)

		body, ct := publishForm(t, fields, map[string][]byte{"cover": pngBytes})
		r := httptest.NewRequest(http.MethodPost, "/v1/listings", body)
		r.Header.Set("Content-Type", ct)
		w := httptest.NewRecorder()
		handler.Publish(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHTTPHandler_Delete(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"owner", nil, http.StatusNoContent},
		{"not owner", ErrPermission, http.StatusForbidden},
		{"missing", ErrNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, mockRepo, _ := newTestHandler(t)
			mockRepo.EXPECT().DeleteByID(gomock.Any(), "abc", "u1").Return(tt.err)

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodDelete, "/v1/listings/abc", nil)
			r.SetPathValue("id", "abc")
			handler.Delete(w, withUser(r, "u1"))

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHTTPHandler_Mine(t *testing.T) {
	handler, mockRepo, _ := newTestHandler(t)
	mockRepo.EXPECT().QueryByOwner(gomock.Any(), "u1").Return([]Listing{{ID: "1", OwnerID: "u1"}}, nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/me/listings", nil)
	handler.Mine(w, withUser(r, "u1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)
}

func TestHTTPHandler_ByProfileEmail(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := NewMockRepository(ctrl)
	svc := NewService(mockRepo, NewMockAssetStore(ctrl),
		WithOwnerResolver(mapResolver{"u1@campus.edu": "u1", "asha@campus.edu": "u2"}))
	handler := NewHTTPHandler(svc, nil)

	t.Run("defaults to caller email", func(t *testing.T) {
		mockRepo.EXPECT().QueryByOwner(gomock.Any(), "u1").Return([]Listing{}, nil)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/profiles/listings", nil)
		handler.ByProfileEmail(w, withUser(r, "u1"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"total":0`)
	})

	t.Run("explicit email", func(t *testing.T) {
		mockRepo.EXPECT().QueryByOwner(gomock.Any(), "u2").Return([]Listing{{ID: "9", OwnerID: "u2"}}, nil)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/profiles/listings?email=asha@campus.edu", nil)
		handler.ByProfileEmail(w, withUser(r, "u1"))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"id":"9"`)
	})

	t.Run("unknown email", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/profiles/listings?email=ghost@campus.edu", nil)
		handler.ByProfileEmail(w, withUser(r, "u1"))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
