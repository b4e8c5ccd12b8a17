// Package directory talks to the campus directory that owns credentials
// and student profile images. The exchange itself is opaque to the rest of
// the system: it yields an authenticated identity and a profile image URL.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Profile is the identity the directory reports for valid credentials.
type Profile struct {
	SchoolNumber string `json:"school_number"`
	FullName     string `json:"full_name"`
	Role         string `json:"role"`
	ImageURL     string `json:"image_url"`
}

// ErrBadCredentials reports a rejected login.
var ErrBadCredentials = fmt.Errorf("directory rejected credentials")

// Client calls the campus directory service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a directory client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Login exchanges credentials for the user's directory profile.
func (c *Client) Login(ctx context.Context, schoolNumber, password string) (Profile, error) {
	body, _ := json.Marshal(map[string]string{
		"school_number": schoolNumber,
		"password":      password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Profile{}, ErrBadCredentials
	}
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return Profile{}, fmt.Errorf("directory error %s: %s", resp.Status, string(respBody))
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return Profile{}, fmt.Errorf("failed to decode profile: %w", err)
	}
	if profile.SchoolNumber == "" {
		profile.SchoolNumber = schoolNumber
	}
	return profile, nil
}

// ProfileImage downloads a profile image by the URL the directory handed
// out at login. Used as the reference photo for tier-3 verification.
func (c *Client) ProfileImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("image download error: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
