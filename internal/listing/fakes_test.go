package listing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
)

// memRepo is an in-memory Repository with the same ownership and ordering
// rules as PostgresRepo.
type memRepo struct {
	mu     sync.Mutex
	rows   map[string]Listing
	seq    int
	gets   int
	insErr error
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[string]Listing{}}
}

func (r *memRepo) Insert(_ context.Context, l *Listing) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insErr != nil {
		return "", r.insErr
	}
	verr := &ValidationError{}
	if strings.TrimSpace(l.OwnerID) == "" {
		verr.add("user_id", "owner is required")
	}
	if strings.TrimSpace(l.ImageURL) == "" {
		verr.add("image_url", "cover image is required")
	}
	if err := verr.orNil(); err != nil {
		return "", err
	}
	r.seq++
	l.ID = fmt.Sprintf("L%03d", r.seq)
	r.rows[l.ID] = *l
	return l.ID, nil
}

func (r *memRepo) QueryAll(_ context.Context, f Filter) ([]Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Listing{}
	q := NormalizeQuery(f.TitleContains)
	for _, l := range r.rows {
		if matchesTitle(l.Title, q) {
			out = append(out, l)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// matchesTitle mirrors the ILIKE containment in PostgresRepo.QueryAll.
func matchesTitle(title, query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(query))
}

// sortNewestFirst mirrors ORDER BY created_at DESC, id DESC.
func sortNewestFirst(ls []Listing) {
	sort.SliceStable(ls, func(i, j int) bool {
		if !ls[i].CreatedAt.Equal(ls[j].CreatedAt) {
			return ls[i].CreatedAt.After(ls[j].CreatedAt)
		}
		return ls[i].ID > ls[j].ID
	})
}

func (r *memRepo) QueryByOwner(_ context.Context, ownerID string) ([]Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Listing{}
	for _, l := range r.rows {
		if l.OwnerID == ownerID {
			out = append(out, l)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	l, ok := r.rows[id]
	if !ok {
		return Listing{}, ErrNotFound
	}
	return l, nil
}

func (r *memRepo) DeleteByID(_ context.Context, id, requestingOwnerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	if l.OwnerID != requestingOwnerID {
		return ErrPermission
	}
	delete(r.rows, id)
	return nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type mockAssets struct {
	mock.Mock
}

func (m *mockAssets) Store(ctx context.Context, category Category, filename string, data []byte) (string, error) {
	args := m.Called(ctx, category, filename, data)
	return args.String(0), args.Error(1)
}

type memCache struct {
	items map[string]Listing
}

func (c *memCache) Get(_ context.Context, id string) (*Listing, error) {
	l, ok := c.items[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (c *memCache) Set(_ context.Context, l *Listing) error {
	c.items[l.ID] = *l
	return nil
}

func (c *memCache) Delete(_ context.Context, id string) error {
	delete(c.items, id)
	return nil
}

type recordedEvents struct {
	published []string
	deleted   []string
}

func (e *recordedEvents) ListingPublished(_ context.Context, l *Listing) error {
	e.published = append(e.published, l.ID)
	return nil
}

func (e *recordedEvents) ListingDeleted(_ context.Context, id, _ string) error {
	e.deleted = append(e.deleted, id)
	return nil
}

type mapResolver map[string]string

func (m mapResolver) ResolveOwnerID(_ context.Context, email string) (string, error) {
	return m[email], nil
}

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	t := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}
