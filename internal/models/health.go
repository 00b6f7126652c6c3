package models

import "time"

// HealthResponse 健康检查响应结构
// @Description 健康检查API响应数据结构
type HealthResponse struct {
	Status             string  `json:"status" example:"ok"`
	Version            string  `json:"version" example:"1.0.0"`
	StartTime          string  `json:"startTime" example:"2024-01-01T10:00:00Z"`
	Uptime             string  `json:"uptime" example:"1h30m45s"`
	ServicesDiscovered int     `json:"servicesDiscovered" example:"4"`
	ServicesRunning    int     `json:"servicesRunning" example:"1"`
	ExclusiveHolder    *string `json:"exclusiveHolder"`
	Metrics            Metrics `json:"metrics"`
}

// Metrics 关键指标结构
type Metrics struct {
	TotalRequests int64 `json:"totalRequests" example:"1000"`
	ErrorRequests int64 `json:"errorRequests" example:"5"`
}

type RootResponse struct {
	Message            string  `json:"message"`
	Version            string  `json:"version"`
	ServicesDiscovered int     `json:"servicesDiscovered"`
	ExclusiveHolder    *string `json:"exclusiveHolder"`
}

// HealthResult is the outcome of one liveness poll. Never an error.
type HealthResult struct {
	Healthy    bool      `json:"healthy"`
	StatusCode int       `json:"statusCode,omitempty"`
	Latency    Duration  `json:"latency"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checkedAt"`
}
