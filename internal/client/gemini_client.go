package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"google.golang.org/genai"

	"github.com/worksim/api/internal/config"
)

// ErrNoImage is returned when the image model answered without image data
var ErrNoImage = errors.New("model returned no image")

const (
	geminiFilesPrefix = "https://generativelanguage.googleapis.com/"
	filePollInterval  = 3 * time.Second
)

// GeminiClient wraps the Gemini API for rubric video analysis and
// portrait generation
type GeminiClient struct {
	client     *genai.Client
	media      *fasthttp.Client
	model      string
	imageModel string
}

// NewGeminiClient creates a Gemini client. Without an API key the client is
// returned unconfigured and every call fails.
func NewGeminiClient(ctx context.Context, cfg *config.GeminiConfig) (*GeminiClient, error) {
	c := &GeminiClient{
		media:      newMediaClient(),
		model:      cfg.Model,
		imageModel: cfg.ImageModel,
	}
	if cfg.APIKey == "" {
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	c.client = client
	return c, nil
}

// GenerateContent sends the prompt, with the optional media part first, and
// asks for a JSON response
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string, media *Media) (string, error) {
	if !c.IsConfigured() {
		return "", fmt.Errorf("gemini client not configured")
	}

	parts := make([]*genai.Part, 0, 2)
	if media != nil {
		switch {
		case len(media.Data) > 0:
			parts = append(parts, genai.NewPartFromBytes(media.Data, media.MIMEType))
		case media.URI != "":
			uri, mimeType, err := c.stageMedia(ctx, media)
			if err != nil {
				return "", err
			}
			parts = append(parts, genai.NewPartFromURI(uri, mimeType))
		}
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.2),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty response")
	}
	return text, nil
}

// stageMedia copies a remote recording into the Files API and waits until
// it is processed
func (c *GeminiClient) stageMedia(ctx context.Context, media *Media) (string, string, error) {
	if strings.HasPrefix(media.URI, geminiFilesPrefix) {
		return media.URI, media.MIMEType, nil
	}

	fetched, err := fetchMedia(ctx, c.media, media.URI)
	if err != nil {
		return "", "", err
	}
	defer fetched.release()

	mimeType := media.MIMEType
	if mimeType == "" {
		mimeType = fetched.contentType
	}

	file, err := c.client.Files.Upload(ctx, fetched.body, &genai.UploadFileConfig{MIMEType: mimeType})
	if err != nil {
		return "", "", fmt.Errorf("failed to upload media: %w", err)
	}

	ticker := time.NewTicker(filePollInterval)
	defer ticker.Stop()
	for file.State != genai.FileStateActive {
		if file.State == genai.FileStateFailed {
			return "", "", fmt.Errorf("media processing failed for %s", file.Name)
		}
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-ticker.C:
		}
		file, err = c.client.Files.Get(ctx, file.Name, nil)
		if err != nil {
			return "", "", fmt.Errorf("failed to poll media state: %w", err)
		}
	}

	return file.URI, file.MIMEType, nil
}

// GenerateImage renders an image from a prompt and returns its bytes and
// MIME type
func (c *GeminiClient) GenerateImage(ctx context.Context, prompt string) ([]byte, string, error) {
	if !c.IsConfigured() {
		return nil, "", fmt.Errorf("gemini client not configured")
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	result, err := c.client.Models.GenerateContent(ctx, c.imageModel, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	})
	if err != nil {
		return nil, "", fmt.Errorf("gemini generate image: %w", err)
	}

	for _, cand := range result.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, part.InlineData.MIMEType, nil
			}
		}
	}
	return nil, "", ErrNoImage
}

// IsConfigured returns true if the client has valid configuration
func (c *GeminiClient) IsConfigured() bool {
	return c.client != nil
}

// newMediaClient streams recordings instead of buffering them
func newMediaClient() *fasthttp.Client {
	return &fasthttp.Client{
		Name:               "worksim-api",
		StreamResponseBody: true,
		ReadTimeout:        time.Minute,
	}
}

type fetchedMedia struct {
	body        io.Reader
	contentType string
	release     func()
}

// fetchMedia GETs a recording. The caller must call release once the body
// has been consumed.
func fetchMedia(ctx context.Context, hc *fasthttp.Client, uri string) (*fetchedMedia, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)

	resp := fasthttp.AcquireResponse()
	release := func() {
		_ = resp.CloseBodyStream()
		fasthttp.ReleaseResponse(resp)
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = hc.DoDeadline(req, resp, deadline)
	} else {
		err = hc.Do(req, resp)
	}
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		status := resp.StatusCode()
		release()
		return nil, fmt.Errorf("media fetch returned status %d", status)
	}

	body := resp.BodyStream()
	if body == nil {
		body = bytes.NewReader(resp.Body())
	}
	return &fetchedMedia{
		body:        body,
		contentType: string(resp.Header.ContentType()),
		release:     release,
	}, nil
}
