package verify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Client submits verification jobs to the face verifier microservice. The
// verifier accepts or rejects the job immediately and delivers the verdict
// later to the callback URL.
type Client struct {
	BaseURL     string
	CallbackURL string // base URL of this service, verification id is appended
	HTTP        *http.Client
	Skip        bool
}

// NewClient creates a verifier client. Skip short-circuits submission for
// local development without the microservice.
func NewClient(baseURL, callbackURL string, skip bool) *Client {
	return &Client{
		BaseURL:     baseURL,
		CallbackURL: callbackURL,
		Skip:        skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // face processing can take time
		},
	}
}

// Submit sends the job as a multipart request: form fields for the callback
// URL, verification id and student number, file parts for both images.
func (c *Client) Submit(ctx context.Context, job Job) error {
	if c.Skip {
		return nil
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	webhookURL := fmt.Sprintf("%s/api/v1/webhooks/verification-result/%s", c.CallbackURL, job.VerificationID)
	_ = w.WriteField("webhook_url", webhookURL)
	_ = w.WriteField("verification_id", job.VerificationID)
	_ = w.WriteField("student_school_number", job.StudentNumber)

	part, err := w.CreateFormFile("picture", "image.jpg")
	if err != nil {
		return err
	}
	if _, err := part.Write(job.Photo); err != nil {
		return err
	}
	part, err = w.CreateFormFile("intended_picture", "reference_image.jpeg")
	if err != nil {
		return err
	}
	if _, err := part.Write(job.ReferencePhoto); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/verify-face-async", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("verifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("verifier error %s: %s", resp.Status, string(respBody))
	}
	return nil
}

// Health checks whether the verifier is reachable.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("verifier unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("verifier unhealthy: %s", resp.Status)
	}
	return nil
}
