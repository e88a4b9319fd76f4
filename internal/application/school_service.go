package application

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	schoolCacheSize = 256
	// DefaultSchoolCacheTTL bounds how long a catalog lookup is served from memory.
	DefaultSchoolCacheTTL = 5 * time.Minute
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,39}$`)

// SchoolService exposes the school catalog. Lookups by id and slug are cached.
type SchoolService struct {
	schools     SchoolRepository
	idGenerator func() string
	now         func() time.Time
	cache       *expirable.LRU[string, School]
	logger      *slog.Logger
}

// NewSchoolService constructs a school service with the default cache lifetime.
func NewSchoolService(schools SchoolRepository, idGenerator func() string, now func() time.Time) *SchoolService {
	return NewSchoolServiceWithLogger(schools, idGenerator, now, DefaultSchoolCacheTTL, nil)
}

// NewSchoolServiceWithLogger constructs a school service with a specified cache lifetime and
// logger.
func NewSchoolServiceWithLogger(schools SchoolRepository, idGenerator func() string, now func() time.Time, cacheTTL time.Duration, logger *slog.Logger) *SchoolService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultSchoolCacheTTL
	}
	return &SchoolService{
		schools:     schools,
		idGenerator: idGenerator,
		now:         now,
		cache:       expirable.NewLRU[string, School](schoolCacheSize, nil, cacheTTL),
		logger:      defaultLogger(logger),
	}
}

func (s *SchoolService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SchoolService", operation, attrs...)
}

// List returns the catalog ordered by name.
func (s *SchoolService) List(ctx context.Context) ([]School, error) {
	if s == nil || s.schools == nil {
		return nil, fmt.Errorf("school repository not configured")
	}
	schools, err := s.schools.ListSchools(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return schools, nil
}

// GetBySlug resolves a school by its slug.
func (s *SchoolService) GetBySlug(ctx context.Context, slug string) (School, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return School{}, ErrNotFound
	}
	if school, ok := s.cache.Get("slug:" + slug); ok {
		return school, nil
	}
	school, err := s.schools.GetSchoolBySlug(ctx, slug)
	if err != nil {
		return School{}, mapRepoError(err)
	}
	s.remember(school)
	return school, nil
}

// GetSchool resolves a school by id.
func (s *SchoolService) GetSchool(ctx context.Context, id string) (School, error) {
	if id == "" {
		return School{}, ErrNotFound
	}
	if school, ok := s.cache.Get("id:" + id); ok {
		return school, nil
	}
	school, err := s.schools.GetSchool(ctx, id)
	if err != nil {
		return School{}, mapRepoError(err)
	}
	s.remember(school)
	return school, nil
}

func (s *SchoolService) remember(school School) {
	s.cache.Add("id:"+school.ID, school)
	s.cache.Add("slug:"+school.Slug, school)
}

// Seed upserts catalog entries by slug and returns how many were written. Invalid entries
// abort the seed before anything is stored.
func (s *SchoolService) Seed(ctx context.Context, inputs []SchoolInput) (count int, err error) {
	if s == nil || s.schools == nil {
		return 0, fmt.Errorf("school repository not configured")
	}

	logger := s.loggerWith(ctx, "Seed", "entries", len(inputs))
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "school seed failed")
			return
		}
		logger.InfoContext(ctx, "school catalog seeded", "count", count)
	}()

	vErr := &ValidationError{}
	seen := make(map[string]bool, len(inputs))
	for i, input := range inputs {
		slug := strings.ToLower(strings.TrimSpace(input.Slug))
		field := fmt.Sprintf("schools[%d]", i)
		switch {
		case !slugPattern.MatchString(slug):
			vErr.add(field+".slug", "must be 2-40 lowercase letters, digits or dashes")
		case seen[slug]:
			vErr.add(field+".slug", "duplicate slug")
		}
		seen[slug] = true
		if strings.TrimSpace(input.Name) == "" {
			vErr.add(field+".name", "is required")
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now().UTC()
	for _, input := range inputs {
		school := School{
			ID:        s.idGenerator(),
			Slug:      strings.ToLower(strings.TrimSpace(input.Slug)),
			Name:      strings.TrimSpace(input.Name),
			Domain:    strings.ToLower(strings.TrimSpace(input.Domain)),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err = s.schools.UpsertSchool(ctx, school); err != nil {
			err = mapRepoError(err)
			return
		}
		count++
	}
	s.cache.Purge()
	return
}
