package models

import "time"

/**
 * Service descriptor discovered from a service manifest
 * @property {string} name - Unique service name
 * @property {bool} requiresExclusiveResource - Service must hold the accelerator to run
 * @property {int} resourceUnits - Estimated accelerator memory in GB, informational only
 * @property {string} workingDirectory - Directory the container runtime is invoked in
 * @property {[]string} ports - host:container port pairs, informational only
 * @property {string} healthCheckURL - Liveness endpoint polled by the health monitor
 * @property {Duration} healthTimeout - Deadline of one liveness poll, serialized as "5s"
 * @description
 * - Immutable once discovered, a rescan replaces descriptors wholesale
 */
type ServiceDescriptor struct {
	Name                      string    `json:"name"`
	Description               string    `json:"description"`
	Version                   string    `json:"version"`
	RequiresExclusiveResource bool      `json:"requiresExclusiveResource"`
	ResourceUnits             int       `json:"resourceUnits"`
	WorkingDirectory          string    `json:"workingDirectory"`
	Ports                     []string  `json:"ports"`
	HealthCheckURL            string    `json:"healthCheckURL"`
	HealthTimeout             Duration  `json:"healthTimeout"`
	Tags                      []string  `json:"tags"`
	ManifestPath              string    `json:"manifestPath"`
	DiscoveredAt              time.Time `json:"discoveredAt"`
}

// ServiceInfo is a descriptor decorated with its current lifecycle state.
type ServiceInfo struct {
	ServiceDescriptor
	Status     RunState      `json:"status"`
	LastHealth *HealthResult `json:"lastHealth,omitempty"`
}

type ServiceStatus struct {
	Name      string     `json:"name"`
	State     RunState   `json:"state"`
	IsRunning bool       `json:"isRunning"`
	IsHealthy bool       `json:"isHealthy"`
	Uptime    string     `json:"uptime,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	Orphaned  bool       `json:"orphaned,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

type ServiceListResponse struct {
	Total           int           `json:"total"`
	Services        []ServiceInfo `json:"services"`
	ExclusiveHolder *string       `json:"exclusiveHolder"`
}

type StartRequest struct {
	Force bool `json:"force"`
}

type StartResponse struct {
	Message        string `json:"message"`
	Status         string `json:"status"`
	HealthCheckURL string `json:"healthCheckURL"`
	AlreadyRunning bool   `json:"alreadyRunning"`
}

type StopResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

type LogsResponse struct {
	Service string   `json:"service"`
	Tail    int      `json:"tail"`
	Logs    []string `json:"logs"`
}

type SkippedManifest struct {
	Dir   string `json:"dir"`
	Error string `json:"error"`
}

type RediscoverResponse struct {
	Message    string            `json:"message"`
	Discovered int               `json:"discovered"`
	Skipped    []SkippedManifest `json:"skipped"`
}
