package catalog

import (
	"log/slog"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/yuckyman/url-portal/internal/portal/domain"
)

// Portal is one catalog entry
type Portal struct {
	Key    string
	Action string
	Label  string
	// Config is the full entry as written in the catalog file
	Config map[string]any
}

// FileCatalog reads portal definitions from a YAML or JSON file. The file is
// read on every lookup so edits apply without a restart.
type FileCatalog struct {
	path   string
	logger *slog.Logger
}

// NewFileCatalog creates a catalog backed by path
func NewFileCatalog(path string, logger *slog.Logger) *FileCatalog {
	return &FileCatalog{
		path:   path,
		logger: logger,
	}
}

// Lookup resolves key to its portal. It returns domain.ErrPortalNotFound for an
// unknown key and domain.ErrCatalogUnavailable when the file cannot be used.
func (c *FileCatalog) Lookup(key string) (Portal, error) {
	entries, err := c.load()
	if err != nil {
		return Portal{}, err
	}

	entry, ok := entries[key]
	if !ok {
		return Portal{}, errors.Wrapf(domain.ErrPortalNotFound, "portal %s", key)
	}

	return toPortal(key, entry)
}

// List returns every portal in the catalog, skipping entries without an action
func (c *FileCatalog) List() ([]Portal, error) {
	entries, err := c.load()
	if err != nil {
		return nil, err
	}

	portals := make([]Portal, 0, len(entries))
	for key, entry := range entries {
		p, err := toPortal(key, entry)
		if err != nil {
			continue
		}
		portals = append(portals, p)
	}

	sort.Slice(portals, func(i, j int) bool { return portals[i].Key < portals[j].Key })
	return portals, nil
}

func toPortal(key string, entry map[string]any) (Portal, error) {
	action, _ := entry["action"].(string)
	if action == "" {
		return Portal{}, errors.Wrapf(domain.ErrCatalogUnavailable, "portal %s has no action", key)
	}

	label, _ := entry["label"].(string)
	if label == "" {
		label = action
	}

	return Portal{
		Key:    key,
		Action: action,
		Label:  label,
		Config: entry,
	}, nil
}

func (c *FileCatalog) load() (map[string]map[string]any, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		c.logger.Error("Portals config not found",
			slog.String("path", c.path),
			slog.String("error", err.Error()),
		)
		return nil, errors.Mark(errors.Wrap(err, "failed to read portal catalog"), domain.ErrCatalogUnavailable)
	}

	// JSON is valid YAML, so one decoder serves both formats
	var entries map[string]map[string]any
	if err := yaml.Unmarshal(data, &entries); err != nil {
		c.logger.Error("Invalid portals config",
			slog.String("path", c.path),
			slog.String("error", err.Error()),
		)
		return nil, errors.Mark(errors.Wrap(err, "failed to parse portal catalog"), domain.ErrCatalogUnavailable)
	}

	return entries, nil
}
