// Package uploads keeps uploaded requirement documents and test case lists so
// that generation requests can refer to them by ID.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/internal/util"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"
)

var (
	ErrNotFound = errors.New("upload not found")
	ErrEmpty    = errors.New("upload content is empty")
)

// Kind separates the two upload collections.
type Kind string

const (
	KindPRD       Kind = "prd"
	KindTestcases Kind = "testcases"
)

// Record is one stored upload. List results leave Content empty.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Backend persists records of each kind.
type Backend interface {
	Put(ctx context.Context, kind Kind, rec *Record) error
	Get(ctx context.Context, kind Kind, id string) (*Record, error)
	List(ctx context.Context, kind Kind) ([]Record, error)
}

// Store is the upload API used by the HTTP handlers.
type Store struct {
	backend Backend
	now     func() time.Time
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend, now: time.Now}
}

func (s *Store) SavePRD(ctx context.Context, name, content string) (*Record, error) {
	return s.save(ctx, KindPRD, name, content)
}

func (s *Store) GetPRD(ctx context.Context, id string) (*Record, error) {
	return s.get(ctx, KindPRD, id)
}

func (s *Store) ListPRDs(ctx context.Context) ([]Record, error) {
	return s.list(ctx, KindPRD)
}

func (s *Store) SaveTestcases(ctx context.Context, name, content string) (*Record, error) {
	return s.save(ctx, KindTestcases, name, content)
}

func (s *Store) GetTestcases(ctx context.Context, id string) (*Record, error) {
	return s.get(ctx, KindTestcases, id)
}

func (s *Store) ListTestcases(ctx context.Context) ([]Record, error) {
	return s.list(ctx, KindTestcases)
}

func (s *Store) save(ctx context.Context, kind Kind, name, content string) (*Record, error) {
	content = util.StripBOM(content)
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmpty
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "untitled"
	}

	rec := &Record{
		ID:        util.NewID(),
		Name:      name,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	if err := s.backend.Put(ctx, kind, rec); err != nil {
		return nil, fmt.Errorf("save %s upload: %w", kind, err)
	}
	logger.Info("[Uploads] Saved", "kind", kind, "id", rec.ID, "bytes", len(content))
	return rec, nil
}

func (s *Store) get(ctx context.Context, kind Kind, id string) (*Record, error) {
	if !util.IsID(id) {
		return nil, ErrNotFound
	}
	return s.backend.Get(ctx, kind, id)
}

func (s *Store) list(ctx context.Context, kind Kind) ([]Record, error) {
	records, err := s.backend.List(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s uploads: %w", kind, err)
	}
	for i := range records {
		records[i].Content = ""
	}
	sortNewestFirst(records)
	return records, nil
}

func sortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
