package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"

	"loo_review/internal/domain"
)

// Manifest describes a batch of reviews to upload, one entry per photo.
type Manifest struct {
	Dir             string        `yaml:"dir"`
	ConfirmWarnings bool          `yaml:"confirm_warnings"`
	Reviews         []ImportEntry `yaml:"reviews"`
}

type ImportEntry struct {
	File      string         `yaml:"file"`
	Ratings   map[string]int `yaml:"ratings"`
	Location  string         `yaml:"location"`
	Latitude  *float64       `yaml:"latitude"`
	Longitude *float64       `yaml:"longitude"`
	Comments  string         `yaml:"comments"`
}

func LoadManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if len(m.Reviews) == 0 {
		return Manifest{}, fmt.Errorf("%w: manifest has no reviews", domain.ErrInvalidInput)
	}
	return m, nil
}

type ImportResult struct {
	File   string
	Record domain.ReviewRecord
	Err    error
}

// Importer pushes manifest entries through the same composer workflow the
// interactive client uses.
type Importer struct {
	wf       *Workflow
	photos   domain.PhotoPreparer
	readFile func(string) ([]byte, error)
}

func NewImporter(wf *Workflow, photos domain.PhotoPreparer) *Importer {
	return &Importer{wf: wf, photos: photos, readFile: os.ReadFile}
}

// Run uploads every entry with at most workers submissions in flight.
// Results come back in manifest order.
func (im *Importer) Run(ctx context.Context, m Manifest, workers int) []ImportResult {
	if workers <= 0 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	results := make([]ImportResult, len(m.Reviews))
	var wg sync.WaitGroup

	for i, e := range m.Reviews {
		results[i].File = e.File
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i].Err = err
			continue
		}
		wg.Add(1)
		go func(i int, e ImportEntry) {
			defer wg.Done()
			defer sem.Release(1)

			rec, err := im.ImportOne(ctx, m.Dir, e, m.ConfirmWarnings)
			results[i].Record, results[i].Err = rec, err
			if err != nil {
				log.Warn().Str("file", e.File).Err(err).Msg("import failed")
				return
			}
			log.Info().Str("file", e.File).Str("record", rec.ID).Msg("import ok")
		}(i, e)
	}
	wg.Wait()
	return results
}

func (im *Importer) ImportOne(ctx context.Context, dir string, e ImportEntry, confirm bool) (domain.ReviewRecord, error) {
	c := im.wf.NewComposer()
	h := c.Draft()

	path := e.File
	if dir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	raw, err := im.readFile(path)
	if err != nil {
		return domain.ReviewRecord{}, fmt.Errorf("read %s: %w", e.File, err)
	}
	img, err := im.photos.Prepare(filepath.Base(path), raw)
	if err != nil {
		return domain.ReviewRecord{}, fmt.Errorf("prepare %s: %w", e.File, err)
	}
	h.SetImage(img)

	for name, v := range e.Ratings {
		if err := h.SetRating(domain.Category(strings.ToLower(name)), v); err != nil {
			return domain.ReviewRecord{}, err
		}
	}
	h.SetComments(e.Comments)

	var coords *domain.Coordinates
	if e.Latitude != nil && e.Longitude != nil {
		coords = &domain.Coordinates{Lat: *e.Latitude, Lng: *e.Longitude}
	} else if gps, ok := im.photos.Coordinates(raw); ok {
		coords = gps
	}
	switch {
	case strings.TrimSpace(e.Location) != "":
		h.SetLocation(e.Location, coords)
	case coords != nil:
		if _, err := c.Location().SelectPoint(ctx, *coords); err != nil {
			return domain.ReviewRecord{}, err
		}
	}

	return c.Submit(ctx, confirm)
}
