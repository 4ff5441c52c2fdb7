package mal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// TokenStore defines the interface for storing and retrieving tokens
type TokenStore interface {
	GetToken() (*Token, error)
	SaveToken(token *Token) error
}

// Token represents a MAL OAuth token pair
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// FileTokenStore implements TokenStore using a JSON file
type FileTokenStore struct {
	filepath string
}

// NewFileTokenStore creates a new file-based token store
func NewFileTokenStore(filepath string) (*FileTokenStore, error) {
	return &FileTokenStore{filepath: filepath}, nil
}

// GetToken retrieves the token from the file
func (s *FileTokenStore) GetToken() (*Token, error) {
	data, err := os.ReadFile(s.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("token file not found")
		}
		return nil, err
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}

	return &token, nil
}

// SaveToken saves the token to the file
func (s *FileTokenStore) SaveToken(token *Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.filepath, data, 0600)
}

// tokenResponse represents the response from the MAL oauth2 token endpoint
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// HasValidToken reports whether a usable credential is on hand. A token with
// a refresh token still counts even when the access token has expired, the
// next request will refresh it.
func (c *Client) HasValidToken() bool {
	token, err := c.tokenStore.GetToken()
	if err != nil || token == nil {
		return false
	}
	if token.RefreshToken != "" {
		return true
	}
	return token.AccessToken != "" && time.Now().Before(token.ExpiresAt)
}

// RefreshToken exchanges the refresh token for a fresh access token. It talks
// to the oauth endpoint directly, never through doRequest, so a 401 on the
// API path can never recurse into another refresh.
func (c *Client) RefreshToken(ctx context.Context) error {
	token, err := c.tokenStore.GetToken()
	if err != nil {
		return fmt.Errorf("no token to refresh: %w", err)
	}
	if token.RefreshToken == "" {
		return fmt.Errorf("no refresh token available")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", token.RefreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("refresh failed with status %d", resp.StatusCode)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return fmt.Errorf("refresh response missing access token")
	}

	newToken := &Token{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}
	// MAL may omit the refresh token when it is still valid
	if newToken.RefreshToken == "" {
		newToken.RefreshToken = token.RefreshToken
	}

	if err := c.tokenStore.SaveToken(newToken); err != nil {
		return fmt.Errorf("failed to save refreshed token: %w", err)
	}

	c.logger.Info("Token refreshed successfully")
	return nil
}
