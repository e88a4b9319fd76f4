// Package seed loads the school catalog inserted at startup.
package seed

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed schools.yaml
var defaultCatalog []byte

// School is one catalog entry.
type School struct {
	Slug   string `yaml:"slug"`
	Name   string `yaml:"name"`
	Domain string `yaml:"domain"`
}

// Catalog is the document stored in schools.yaml.
type Catalog struct {
	Schools []School `yaml:"schools"`
}

// ErrEmptyCatalog is returned when a catalog lists no schools.
var ErrEmptyCatalog = errors.New("seed: catalog lists no schools")

// Default returns the embedded catalog.
func Default() ([]School, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path. An empty path returns the embedded catalog.
func Load(path string) ([]School, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	schools, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return schools, nil
}

// Parse decodes a catalog document. Unknown keys, blank fields and duplicate slugs are errors.
func Parse(data []byte) ([]School, error) {
	var catalog Catalog
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("parse seed catalog: %w", err)
	}
	if len(catalog.Schools) == 0 {
		return nil, ErrEmptyCatalog
	}

	seen := make(map[string]int, len(catalog.Schools))
	schools := make([]School, 0, len(catalog.Schools))
	for i, school := range catalog.Schools {
		school.Slug = strings.ToLower(strings.TrimSpace(school.Slug))
		school.Name = strings.TrimSpace(school.Name)
		school.Domain = strings.ToLower(strings.TrimSpace(school.Domain))
		if school.Slug == "" || school.Name == "" {
			return nil, fmt.Errorf("school %d: slug and name are required", i+1)
		}
		if first, ok := seen[school.Slug]; ok {
			return nil, fmt.Errorf("school %d: duplicate slug %q (first defined as school %d)", i+1, school.Slug, first)
		}
		seen[school.Slug] = i + 1
		schools = append(schools, school)
	}
	return schools, nil
}
