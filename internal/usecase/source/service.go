package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"catchup-feed/internal/domain/entity"
	"catchup-feed/internal/repository"
)

// Service owns the source catalog: syncing it from a YAML document and
// selecting which sources are due for a check_source run.
type Service struct {
	Sources repository.SourceRepository
	States  repository.SourceStateRepository

	GlobalRateLimitPerMinute int
	Log                      *slog.Logger
}

func NewService(sources repository.SourceRepository, states repository.SourceStateRepository, globalRateLimitPerMinute int, log *slog.Logger) *Service {
	return &Service{Sources: sources, States: states, GlobalRateLimitPerMinute: globalRateLimitPerMinute, Log: log}
}

// SyncDiff summarizes what Sync did, for the `sync-sources`/`init` CLI output.
type SyncDiff struct {
	Added      []string
	Updated    []string
	Deactivated []string
	Removed    []string
}

// Sync reconciles the catalog document against the sources table.
// Sources present in the document are created or updated in place; sources
// absent from the document are deactivated unless remove is set, in which
// case they're deleted outright rather than deactivated.
func (s *Service) Sync(ctx context.Context, doc *CatalogDocument, remove bool) (*SyncDiff, error) {
	if err := validateCatalog(doc); err != nil {
		return nil, err
	}

	existing, err := s.Sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list existing sources: %w", err)
	}
	byIdentifier := make(map[string]*entity.Source, len(existing))
	for _, src := range existing {
		byIdentifier[src.Identifier] = src
	}

	diff := &SyncDiff{}
	inCatalog := make(map[string]struct{}, len(doc.Sources))

	for _, entry := range doc.Sources {
		inCatalog[entry.Identifier] = struct{}{}

		current, found := byIdentifier[entry.Identifier]
		id := int64(0)
		if found {
			id = current.ID
		}
		src := entry.ToEntity(id)
		src.ApplyDefaults(s.GlobalRateLimitPerMinute)
		if err := src.Validate(); err != nil {
			return nil, fmt.Errorf("source %s: %w", entry.Identifier, err)
		}

		if found {
			if err := s.Sources.Update(ctx, src); err != nil {
				return nil, fmt.Errorf("update source %s: %w", entry.Identifier, err)
			}
			diff.Updated = append(diff.Updated, entry.Identifier)
		} else {
			if err := s.Sources.Create(ctx, src); err != nil {
				return nil, fmt.Errorf("create source %s: %w", entry.Identifier, err)
			}
			diff.Added = append(diff.Added, entry.Identifier)
		}
	}

	for _, src := range existing {
		if _, ok := inCatalog[src.Identifier]; ok {
			continue
		}
		if remove {
			if err := s.Sources.Delete(ctx, src.ID); err != nil {
				return nil, fmt.Errorf("remove source %s: %w", src.Identifier, err)
			}
			diff.Removed = append(diff.Removed, src.Identifier)
			continue
		}
		if src.Active {
			src.Active = false
			if err := s.Sources.Update(ctx, src); err != nil {
				return nil, fmt.Errorf("deactivate source %s: %w", src.Identifier, err)
			}
			diff.Deactivated = append(diff.Deactivated, src.Identifier)
		}
	}

	s.Log.Info("source catalog synced",
		"added", len(diff.Added), "updated", len(diff.Updated),
		"deactivated", len(diff.Deactivated), "removed", len(diff.Removed))
	return diff, nil
}

func validateCatalog(doc *CatalogDocument) error {
	seen := make(map[string]struct{}, len(doc.Sources))
	for _, entry := range doc.Sources {
		if _, dup := seen[entry.Identifier]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, entry.Identifier)
		}
		seen[entry.Identifier] = struct{}{}
	}
	return nil
}

// DueSources returns up to limit source IDs eligible for a check_source run
// right now, healthy-first then by weight then by next_run_at (delegated to
// the repository's composite index so the ordering lives next to the data).
func (s *Service) DueSources(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	ids, err := s.States.DueForCheck(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due sources: %w", err)
	}
	return ids, nil
}

// Get returns a single source by ID, or ErrSourceNotFound if it doesn't exist.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Source, error) {
	src, err := s.Sources.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	if src == nil {
		return nil, ErrSourceNotFound
	}
	return src, nil
}

// List returns every source in the catalog, active or not.
func (s *Service) List(ctx context.Context) ([]*entity.Source, error) {
	sources, err := s.Sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}
