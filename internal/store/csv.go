package store

import (
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/rotisserie/eris"
)

// WriteCSV exports feature records to a CSV file with the fixed output
// schema. Nil measurements become empty fields.
func WriteCSV(path string, recs []FeatureRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "store: create output dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "store: create %s", path)
	}
	defer func() { _ = f.Close() }()

	if err := gocsv.MarshalFile(&recs, f); err != nil {
		return eris.Wrapf(err, "store: write csv %s", path)
	}
	return nil
}
