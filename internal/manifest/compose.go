package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"service-nanny/internal/logger"

	"github.com/compose-spec/compose-go/v2/cli"
	composetypes "github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// Compose file names, in the order the compose CLI looks them up.
var ComposeFiles = []string{"compose.yaml", "compose.yml", "docker-compose.yaml", "docker-compose.yml"}

func findCompose(dir string) string {
	for _, name := range ComposeFiles {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

/**
 * Collect published ports from the compose file in dir
 * @param {string} dir - Service directory
 * @returns {[]string} host:container pairs, nil when dir has no compose file
 * @description
 * - Loads the project with compose-go, interpolation disabled
 * - Falls back to a raw YAML read of services.*.ports when compose-go rejects the file
 * - Entries without a single published port are skipped
 */
func ComposePorts(dir string) ([]string, error) {
	path := findCompose(dir)
	if path == "" {
		return nil, nil
	}

	opts, err := cli.NewProjectOptions(
		[]string{path},
		cli.WithWorkingDirectory(dir),
		cli.WithDotEnv,
		cli.WithInterpolation(false),
	)
	if err != nil {
		return nil, fmt.Errorf("project options: %w", err)
	}

	project, err := cli.ProjectFromOptions(context.Background(), opts)
	if err != nil {
		logger.Debugf("manifest: compose-go rejected %s, using raw parse: %v", path, err)
		return parseComposeFallback(path)
	}
	return projectPorts(project), nil
}

func projectPorts(project *composetypes.Project) []string {
	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	var ports []string
	for _, name := range names {
		for _, p := range project.Services[name].Ports {
			if p.Published == "" {
				continue
			}
			pair := fmt.Sprintf("%s:%d", p.Published, p.Target)
			if p.Protocol != "" && p.Protocol != "tcp" {
				pair += "/" + p.Protocol
			}
			if ValidatePort(pair) == nil {
				ports = append(ports, pair)
			}
		}
	}
	return ports
}

func parseComposeFallback(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Services map[string]struct {
			Ports []interface{} `yaml:"ports"`
		} `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("yaml parse: %w", err)
	}

	names := make([]string, 0, len(raw.Services))
	for name := range raw.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	var ports []string
	for _, name := range names {
		for _, p := range raw.Services[name].Ports {
			pair, ok := shortPort(p)
			if ok {
				ports = append(ports, pair)
			}
		}
	}
	return ports, nil
}

// shortPort reduces a compose short or long port entry to host:container.
func shortPort(p interface{}) (string, bool) {
	switch v := p.(type) {
	case string:
		parts := strings.Split(v, ":")
		// drop a leading host IP
		if len(parts) == 3 {
			parts = parts[1:]
		}
		if len(parts) != 2 {
			return "", false
		}
		pair := parts[0] + ":" + parts[1]
		return pair, ValidatePort(pair) == nil
	case map[string]interface{}:
		published := fmt.Sprintf("%v", v["published"])
		target := fmt.Sprintf("%v", v["target"])
		pair := published + ":" + target
		if proto, ok := v["protocol"].(string); ok && proto != "" && proto != "tcp" {
			pair += "/" + proto
		}
		return pair, ValidatePort(pair) == nil
	}
	return "", false
}
