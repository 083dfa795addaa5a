package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"ingestor/internal/model"
)

// SourceEntry is one source declared in the sources file.
type SourceEntry struct {
	Name      string         `yaml:"name"`
	Type      string         `yaml:"type"`
	Medium    string         `yaml:"medium"`
	IngestURL string         `yaml:"ingest_url"`
	Active    *bool          `yaml:"active"`
	Frequency string         `yaml:"frequency"`
	Meta      map[string]any `yaml:"meta"`
}

type sourcesFile struct {
	Sources []SourceEntry `yaml:"sources"`
}

// LoadSources reads and validates a YAML sources file.
func LoadSources(path string) ([]SourceEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	seen := make(map[[2]string]bool)
	for i, e := range f.Sources {
		if e.Name == "" {
			return nil, fmt.Errorf("source #%d: name is required", i+1)
		}
		if e.Type == "" {
			return nil, fmt.Errorf("source %q: type is required", e.Name)
		}
		if !validMedium(model.Medium(e.Medium)) {
			return nil, fmt.Errorf("source %q: unknown medium %q", e.Name, e.Medium)
		}
		key := [2]string{e.Name, e.Type}
		if seen[key] {
			return nil, fmt.Errorf("source %q (%s) is declared twice", e.Name, e.Type)
		}
		seen[key] = true
	}
	return f.Sources, nil
}

// IsActive reports the declared active flag, true when omitted.
func (e SourceEntry) IsActive() bool {
	return e.Active == nil || *e.Active
}

// Source converts the entry into a model.Source.
func (e SourceEntry) Source() model.Source {
	return model.Source{
		Name:      e.Name,
		Type:      e.Type,
		Medium:    model.Medium(e.Medium),
		IngestURL: e.IngestURL,
		Active:    e.IsActive(),
		Frequency: e.Frequency,
		Meta:      model.Metadata(e.Meta),
	}
}

// SourceWriter is the storage subset needed to apply a sources file.
type SourceWriter interface {
	UpsertSource(ctx context.Context, src *model.Source) error
	SetSourceActive(ctx context.Context, id int64, active bool) error
}

// ApplySources creates or updates every entry and aligns its active flag
// with the file.
func ApplySources(ctx context.Context, w SourceWriter, entries []SourceEntry, log *slog.Logger) error {
	for _, e := range entries {
		src := e.Source()
		if err := w.UpsertSource(ctx, &src); err != nil {
			return fmt.Errorf("apply source %q: %w", e.Name, err)
		}
		if src.Active != e.IsActive() {
			if err := w.SetSourceActive(ctx, src.ID, e.IsActive()); err != nil {
				return fmt.Errorf("apply source %q: %w", e.Name, err)
			}
		}
		if src.Kind() == model.KindUnknown {
			log.Warn("source has an unknown type and will be skipped", "source", e.Name, "type", e.Type)
		}
		log.Debug("applied source", "source", e.Name, "id", src.ID, "active", e.IsActive())
	}
	return nil
}

func validMedium(m model.Medium) bool {
	switch m {
	case model.MediumPaper, model.MediumNewsletter, model.MediumBlog, model.MediumTweet:
		return true
	}
	return false
}
