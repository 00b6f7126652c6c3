package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"service-nanny/internal/config"
	"service-nanny/internal/env"
	"service-nanny/internal/models"
	"service-nanny/services"
)

// HTTPClient 定义HTTP客户端接口
type HTTPClient interface {
	Get(path string, params map[string]interface{}) (*HTTPResponse, error)
	Post(path string, params map[string]interface{}, data interface{}) (*HTTPResponse, error)
	Close() error
}

// HTTPConfig 定义HTTP客户端配置
type HTTPConfig struct {
	Address string        // daemon侦听地址, socket路径或host:port
	Network string        // unix,tcp
	Timeout time.Duration // 默认超时时间
	BaseURL string        // 基础URL
}

/**
 * Build the default client configuration from the loaded app config
 * @returns {*HTTPConfig} Unix socket config when the socket file exists, TCP otherwise
 * @description
 * - Socket path comes from server.socket, falling back to the nanny dir
 * - TCP address is server.address with an empty host replaced by 127.0.0.1
 * - Timeout covers the slowest forced start the daemon can run with the same runtime config
 */
func DefaultHTTPConfig() *HTTPConfig {
	cfg := config.Get()
	c := &HTTPConfig{
		Address: cfg.Server.Socket,
		Network: "unix",
		Timeout: services.TimeoutsFromConfig(cfg.Runtime).ForceStartBudget() + 10*time.Second,
		BaseURL: "http://localhost",
	}
	if c.Address == "" {
		c.Address = env.DefaultSocketPath()
	}
	// 检查socket文件是否存在
	if _, err := os.Stat(c.Address); c.Address == "-" || err != nil {
		c.Address = tcpAddress(cfg.Server.Address)
		c.Network = "tcp"
	}
	return c
}

// HTTPResponse 定义HTTP响应结构
type HTTPResponse struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
	Code       string              `json:"code"`
	Error      string              `json:"error"`
	Holder     string              `json:"holder"`
}

// OK reports a 2xx response.
func (r *HTTPResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the body of a successful response into v.
func (r *HTTPResponse) Decode(v interface{}) error {
	if !r.OK() {
		return r.Err()
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Err returns the server side failure as an error, nil for 2xx.
func (r *HTTPResponse) Err() error {
	if r.OK() {
		return nil
	}
	return &ServerError{StatusCode: r.StatusCode, Code: r.Code, Message: r.Error, Holder: r.Holder}
}

// ServerError is a non-2xx answer of the daemon.
type ServerError struct {
	StatusCode int
	Code       string
	Message    string
	Holder     string
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// tcpAddress 将":8080"形式的侦听地址转为可拨号地址
func tcpAddress(listen string) string {
	if listen == "" {
		return "127.0.0.1:8080"
	}
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// buildURL 构建完整的URL
func buildURL(baseURL, path string, params map[string]interface{}) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	// 添加路径
	if u.Path == "" {
		u.Path = path
	} else {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	}

	// 添加查询参数
	if len(params) > 0 {
		q := u.Query()
		for key, value := range params {
			switch v := value.(type) {
			case string:
				q.Set(key, v)
			case int, int8, int16, int32, int64:
				q.Set(key, fmt.Sprintf("%d", v))
			case uint, uint8, uint16, uint32, uint64:
				q.Set(key, fmt.Sprintf("%d", v))
			case bool:
				q.Set(key, fmt.Sprintf("%t", v))
			default:
				q.Set(key, fmt.Sprintf("%v", v))
			}
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// serializeData 序列化请求数据
func serializeData(data interface{}) (io.Reader, error) {
	if data == nil {
		return nil, nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize data: %w", err)
	}

	return bytes.NewReader(jsonData), nil
}

// deserializeResponse 反序列化响应数据
func deserializeResponse(resp *http.Response) (*HTTPResponse, error) {
	defer resp.Body.Close()
	httpResp := &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	httpResp.Body = body
	if httpResp.OK() {
		return httpResp, nil
	}
	if len(body) == 0 {
		httpResp.Error = resp.Status
	} else {
		var errBody models.ErrorResponse
		if err := json.Unmarshal(body, &errBody); err != nil {
			httpResp.Error = strings.TrimSpace(string(body))
		} else {
			httpResp.Code = errBody.Code
			httpResp.Error = errBody.Error
			httpResp.Holder = errBody.Holder
		}
	}
	if httpResp.Error == "" {
		httpResp.Error = "Unknown error"
	}
	return httpResp, nil
}
