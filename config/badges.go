package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/accountable-hub/progression/internal/domain/badge"
)

// badgeFile is the on-disk layout of the badge catalogue:
//
//	badges:
//	  - id: goal_getter
//	    name: Goal Getter
//	    condition: goal_completed
//	    thresholds: {bronze: 1, silver: 10, gold: 50}
//	    points: {bronze: 10, silver: 50, gold: 200}
type badgeFile struct {
	Badges []badge.Definition `yaml:"badges"`
}

// LoadBadgeCatalog reads badge definitions from path. A missing path yields
// an empty catalogue. Invalid definitions are dropped and returned as
// rejections so the caller can log them; they never fail the load.
func LoadBadgeCatalog(path string) (*badge.Catalog, []error, error) {
	if path == "" {
		catalog, _ := badge.NewCatalog(nil)
		return catalog, nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open badge file: %w", err)
	}
	defer f.Close()

	return ParseBadgeCatalog(f)
}

// ParseBadgeCatalog decodes a badge catalogue document.
func ParseBadgeCatalog(r io.Reader) (*badge.Catalog, []error, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read badge file: %w", err)
	}

	var doc badgeFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("parse badge file: %w", err)
	}

	catalog, rejected := badge.NewCatalog(doc.Badges)
	return catalog, rejected, nil
}
