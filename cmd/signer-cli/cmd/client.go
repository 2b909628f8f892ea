package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// apiResponse 对应服务端统一响应结构
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

var httpClient = &http.Client{Timeout: 60 * time.Second}

// callAPI 调用签名服务接口，body 为 nil 时发空 JSON
func callAPI(method, path string, body interface{}) (json.RawMessage, error) {
	payload := []byte("{}")
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequest(method, serverURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("响应解析失败: %w", err)
	}
	if parsed.Code != 0 {
		return nil, fmt.Errorf("服务端错误 (code=%d): %s", parsed.Code, parsed.Message)
	}
	return parsed.Data, nil
}
