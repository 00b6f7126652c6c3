package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"service-nanny/internal/logger"
	"service-nanny/internal/manifest"
	"service-nanny/internal/models"
)

type snapshot struct {
	byName map[string]models.ServiceDescriptor
	sorted []models.ServiceDescriptor
}

// ManifestLoader parses one service directory.
type ManifestLoader interface {
	Load(dir string) (models.ServiceDescriptor, error)
}

/**
 * Registry of discovered service descriptors
 * @description
 * - Readers see an immutable snapshot, a rescan swaps it atomically
 * - Discover calls are serialized
 * - Never touches running records or the resource holder
 */
type Registry struct {
	loader  ManifestLoader
	exclude map[string]struct{}
	mu      sync.Mutex
	current atomic.Pointer[snapshot]
}

func NewRegistry(loader ManifestLoader, exclude []string) *Registry {
	if loader == nil {
		loader = &manifest.Loader{}
	}
	r := &Registry{
		loader:  loader,
		exclude: make(map[string]struct{}, len(exclude)),
	}
	for _, name := range exclude {
		r.exclude[name] = struct{}{}
	}
	r.current.Store(&snapshot{byName: map[string]models.ServiceDescriptor{}})
	return r
}

/**
 * Scan root for service directories and replace the registry contents
 * @param {string} root - Directory whose immediate subdirectories are services
 * @returns {int} Number of services discovered
 * @throws
 * - Error reading root, the previous snapshot is kept
 * - *DiscoveryError listing skipped manifests, returned with a valid count
 */
func (r *Registry) Discover(root string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, &OpError{Op: "discover", Service: root, Kind: KindDiscoveryFailed, Err: err}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	next := &snapshot{byName: make(map[string]models.ServiceDescriptor)}
	skipped := make(map[string]error)
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		if _, ok := r.exclude[name]; ok {
			logger.Debugf("Discovery: skipping excluded directory '%s'", name)
			continue
		}
		dir := filepath.Join(root, name)
		desc, err := r.loader.Load(dir)
		if errors.Is(err, manifest.ErrNoManifest) {
			logger.Debugf("Discovery: no manifest in '%s'", dir)
			continue
		}
		if err != nil {
			logger.Warnf("Discovery: skipping '%s': %v", dir, err)
			skipped[dir] = err
			continue
		}
		if prev, dup := next.byName[desc.Name]; dup {
			err := fmt.Errorf("duplicate service name '%s', already defined in %s", desc.Name, prev.WorkingDirectory)
			logger.Warnf("Discovery: skipping '%s': %v", dir, err)
			skipped[dir] = err
			continue
		}
		next.byName[desc.Name] = desc
		next.sorted = append(next.sorted, desc)
	}
	sort.Slice(next.sorted, func(i, j int) bool { return next.sorted[i].Name < next.sorted[j].Name })

	r.current.Store(next)
	logger.Infof("Discovery: %d service(s) found in %s, %d skipped", len(next.sorted), root, len(skipped))

	if len(skipped) > 0 {
		return len(next.sorted), &DiscoveryError{Skipped: skipped}
	}
	return len(next.sorted), nil
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (models.ServiceDescriptor, error) {
	desc, ok := r.current.Load().byName[name]
	if !ok {
		return models.ServiceDescriptor{}, unknownService("get", name)
	}
	return desc, nil
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []models.ServiceDescriptor {
	sorted := r.current.Load().sorted
	out := make([]models.ServiceDescriptor, len(sorted))
	copy(out, sorted)
	return out
}

func (r *Registry) Count() int {
	return len(r.current.Load().sorted)
}
