// Package api is the typed REST surface of the portal as the client consumes
// it. Feature calls go through the gateway; credential calls do not.
package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"kstu-mobile/internal/domain/attendance"
	"kstu-mobile/internal/domain/portal"
	"kstu-mobile/internal/gateway"
)

type Client struct {
	baseURL string
	gw      *gateway.Gateway
	logger  *zap.Logger
}

func NewClient(baseURL string, gw *gateway.Gateway, logger *zap.Logger) *Client {
	return &Client{baseURL: baseURL, gw: gw, logger: logger}
}

// LastRecord returns the most recent attendance record, or nil when the user
// has none. The open/closed state of today's check-in is inferred from it.
func (c *Client) LastRecord(ctx context.Context) (*attendance.Record, error) {
	var rec attendance.Record
	found, err := c.getOptional(ctx, "/api/v1/attendance/last", &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// History returns the attendance records of the signed-in user, most recent
// first.
func (c *Client) History(ctx context.Context) ([]attendance.Record, error) {
	var records []attendance.Record
	if err := c.get(ctx, "/api/v1/attendance", &records); err != nil {
		return nil, err
	}
	return records, nil
}

// SubmitCheckIn posts a start or finish submission. The server decides which
// one it is by whether an open record exists for the caller.
func (c *Client) SubmitCheckIn(ctx context.Context, sub attendance.Submission) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("auditorium", sub.Auditorium); err != nil {
		return fmt.Errorf("write auditorium field: %w", err)
	}
	if err := w.WriteField("geo", sub.Geo); err != nil {
		return fmt.Errorf("write geo field: %w", err)
	}
	if len(sub.Image) > 0 {
		name := sub.ImageName
		if name == "" {
			name = "photo.jpg"
		}
		part, err := w.CreateFormFile("image", name)
		if err != nil {
			return fmt.Errorf("create image part: %w", err)
		}
		if _, err := part.Write(sub.Image); err != nil {
			return fmt.Errorf("write image part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/attendance", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	// Image uploads get the long timeout.
	do := c.gw.Do
	if len(sub.Image) > 0 {
		do = c.gw.DoUpload
	}
	resp, err := do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	return nil
}

// Profile fetches the HR profile of the signed-in account.
func (c *Client) Profile(ctx context.Context) (*portal.Profile, error) {
	var p portal.Profile
	if err := c.get(ctx, "/api/v1/profile", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Tasks, Documents and News are thin pass-throughs for the list screens.

func (c *Client) Tasks(ctx context.Context) ([]portal.Task, error) {
	var tasks []portal.Task
	if err := c.get(ctx, "/api/v1/tasks", &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) Documents(ctx context.Context) ([]portal.Document, error) {
	var docs []portal.Document
	if err := c.get(ctx, "/api/v1/documents", &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (c *Client) News(ctx context.Context) ([]portal.NewsItem, error) {
	var items []portal.NewsItem
	if err := c.get(ctx, "/api/v1/news", &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	found, err := c.getOptional(ctx, path, out)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", path, responseNotFound)
	}
	return nil
}

// getOptional fetches path, reporting found=false on a 404 or an explicit
// null data payload instead of an error.
func (c *Client) getOptional(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.gw.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, responseError(resp)
	}
	return decodeOptional(resp, out)
}
