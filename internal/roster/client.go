// Package roster は上流名簿サービス（Prisma）との連携と
// 認可済みユーザーのインメモリキャッシュを提供する。
package roster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// RawUser は上流からの未正規化ユーザーレコードを表す。
// Prismaのエクスポート形式はフィールド名が揺れるため、マップのまま保持する。
type RawUser map[string]any

// stringField は候補キーのうち最初に見つかった空でない文字列値を返す。
func (r RawUser) stringField(keys ...string) string {
	for _, k := range keys {
		if v, ok := r[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
			// 数値ID等も文字列化して扱う
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%.0f", f)
			}
		}
	}
	return ""
}

// Client はPrismaの名簿エクスポートと外部認証チェックを呼び出すHTTPクライアント。
// 渡すhttp.Clientにはsecurity.UpstreamGuardが生成したSSRF防止付きクライアントを使う。
type Client struct {
	httpClient *http.Client
	exportURL  string
	checkURL   string
	apiKey     string
}

// NewClient はClientを生成する。
func NewClient(httpClient *http.Client, exportURL, checkURL, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		exportURL:  exportURL,
		checkURL:   checkURL,
		apiKey:     apiKey,
	}
}

// setAuthHeaders はPrismaが受け付ける3種類の認証ヘッダーをすべて付与する。
// 上流のバージョンによって参照するヘッダーが異なる。
func (c *Client) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("api_secret", c.apiKey)
	req.Header.Set("x-api-secret", c.apiKey)
	req.Header.Set("Accept", "application/json")
}

// FetchUsers は名簿エクスポートエンドポイントから全ユーザーレコードを取得する。
// レスポンスは素の配列と {"users": [...]} ラッパーの両形式に対応する。
func (c *Client) FetchUsers(ctx context.Context) ([]RawUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.exportURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create export request: %w", err)
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("roster export request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read export response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("roster export failed with status %d: %s", resp.StatusCode, string(body))
	}

	return decodeUserRecords(body)
}

// decodeUserRecords はエクスポートレスポンスをRawUserのスライスにデコードする。
func decodeUserRecords(body []byte) ([]RawUser, error) {
	var users []RawUser
	if err := json.Unmarshal(body, &users); err == nil {
		return users, nil
	}

	var wrapped struct {
		Users []RawUser `json:"users"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse export response: %w", err)
	}
	return wrapped.Users, nil
}

// CheckCredentials は外部認証チェックエンドポイントで資格情報を検証する。
// 認証成功ならtrueを返す。401/403は資格情報不正としてfalseを返し、
// それ以外の失敗は上流エラーとして返す。
func (c *Client) CheckCredentials(ctx context.Context, username, password string) (bool, error) {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.checkURL, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to create check request: %w", err)
	}
	c.setAuthHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("external check request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("external check failed with status %d", resp.StatusCode)
	}
}
