// Package manifest reads the per-directory service manifest into a ServiceDescriptor.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"service-nanny/internal/logger"
	"service-nanny/internal/models"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrNoManifest is returned when a directory holds no recognised manifest file.
var ErrNoManifest = errors.New("no service manifest")

// Manifest file names in order of preference.
var ManifestFiles = []string{"service.yaml", "service.yml", "service.toml"}

const (
	DefaultDescription   = "No description"
	DefaultVersion       = "unknown"
	DefaultHealthTimeout = 5 * time.Second
)

var (
	namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
	portPattern = regexp.MustCompile(`^(\d+):(\d+)(/(tcp|udp|sctp))?$`)
)

// document is the on-disk schema shared by the YAML and TOML forms.
type document struct {
	Name           string   `yaml:"name" toml:"name"`
	Description    string   `yaml:"description" toml:"description"`
	Version        string   `yaml:"version" toml:"version"`
	GPURequired    bool     `yaml:"gpu_required" toml:"gpu_required"`
	VRAMGB         int      `yaml:"vram_gb" toml:"vram_gb"`
	Ports          []string `yaml:"ports" toml:"ports"`
	HealthEndpoint string   `yaml:"health_endpoint" toml:"health_endpoint"`
	HealthTimeout  string   `yaml:"health_timeout" toml:"health_timeout"`
	Tags           []string `yaml:"tags" toml:"tags"`
}

/**
 * Manifest loader
 * @property {time.Duration} DefaultTimeout - Health timeout used when the manifest sets none
 * @property {func() time.Time} Now - Clock stamped into DiscoveredAt
 */
type Loader struct {
	DefaultTimeout time.Duration
	Now            func() time.Time
}

var defaultLoader = &Loader{DefaultTimeout: DefaultHealthTimeout}

// Load reads dir's manifest with package defaults.
func Load(dir string) (models.ServiceDescriptor, error) {
	return defaultLoader.Load(dir)
}

/**
 * Load the manifest found in a service directory
 * @param {string} dir - Service directory
 * @returns {models.ServiceDescriptor} Validated descriptor with defaults applied
 * @throws
 * - ErrNoManifest when none of ManifestFiles exists
 * - Decode or validation error naming the manifest file
 */
func (l *Loader) Load(dir string) (models.ServiceDescriptor, error) {
	path, err := findManifest(dir)
	if err != nil {
		return models.ServiceDescriptor{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return models.ServiceDescriptor{}, fmt.Errorf("read %s: %w", path, err)
	}

	var doc document
	if strings.HasSuffix(path, ".toml") {
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
			return models.ServiceDescriptor{}, fmt.Errorf("parse %s: %w", path, err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil {
			return models.ServiceDescriptor{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	desc, err := l.build(dir, path, doc)
	if err != nil {
		return models.ServiceDescriptor{}, fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	if len(desc.Ports) == 0 {
		ports, err := ComposePorts(dir)
		if err != nil {
			logger.Warnf("manifest: port enrichment for '%s' failed: %v", desc.Name, err)
		} else {
			desc.Ports = ports
		}
	}
	return desc, nil
}

func findManifest(dir string) (string, error) {
	for _, name := range ManifestFiles {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", ErrNoManifest
}

func (l *Loader) build(dir, path string, doc document) (models.ServiceDescriptor, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}

	name := strings.TrimSpace(doc.Name)
	if name == "" {
		name = filepath.Base(absDir)
	}
	if !namePattern.MatchString(name) {
		return models.ServiceDescriptor{}, fmt.Errorf("name '%s' is not valid", name)
	}

	if doc.HealthEndpoint == "" {
		return models.ServiceDescriptor{}, errors.New("health_endpoint is required")
	}
	if err := validateHealthURL(doc.HealthEndpoint); err != nil {
		return models.ServiceDescriptor{}, err
	}

	if doc.VRAMGB < 0 {
		return models.ServiceDescriptor{}, fmt.Errorf("vram_gb must not be negative, got %d", doc.VRAMGB)
	}

	timeout := l.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	if doc.HealthTimeout != "" {
		timeout, err = time.ParseDuration(doc.HealthTimeout)
		if err != nil {
			return models.ServiceDescriptor{}, fmt.Errorf("health_timeout: %w", err)
		}
		if timeout <= 0 {
			return models.ServiceDescriptor{}, fmt.Errorf("health_timeout must be positive, got %s", doc.HealthTimeout)
		}
	}

	ports := make([]string, 0, len(doc.Ports))
	for _, p := range doc.Ports {
		p = strings.TrimSpace(p)
		if err := ValidatePort(p); err != nil {
			return models.ServiceDescriptor{}, err
		}
		ports = append(ports, p)
	}

	description := doc.Description
	if description == "" {
		description = DefaultDescription
	}
	version := doc.Version
	if version == "" {
		version = DefaultVersion
	}

	now := time.Now
	if l.Now != nil {
		now = l.Now
	}

	return models.ServiceDescriptor{
		Name:                      name,
		Description:               description,
		Version:                   version,
		RequiresExclusiveResource: doc.GPURequired,
		ResourceUnits:             doc.VRAMGB,
		WorkingDirectory:          absDir,
		Ports:                     ports,
		HealthCheckURL:            doc.HealthEndpoint,
		HealthTimeout:             models.Duration(timeout),
		Tags:                      normalizeTags(doc.Tags),
		ManifestPath:              path,
		DiscoveredAt:              now(),
	}, nil
}

func validateHealthURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("health_endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("health_endpoint '%s' must be an http(s) URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("health_endpoint '%s' has no host", raw)
	}
	return nil
}

// ValidatePort checks a host:container[/proto] pair.
func ValidatePort(p string) error {
	m := portPattern.FindStringSubmatch(p)
	if m == nil {
		return fmt.Errorf("port '%s' must be host:container", p)
	}
	for _, s := range m[1:3] {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("port '%s' is out of range", p)
		}
	}
	return nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
