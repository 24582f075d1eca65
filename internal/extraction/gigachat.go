package extraction

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"receiptflow/pkg/config"

	"github.com/Role1776/gigago"
	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	gigaChatOAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	gigaChatBaseURL  = "https://gigachat.devices.sberbank.ru/api/v1"
)

// completer sends a text-only prompt to the chat model.
type completer func(ctx context.Context, prompt string) (string, error)

// GigaChat extracts images through the GigaChat vision endpoint (file
// upload plus a chat completion with the file attached). PDFs are read
// locally with MuPDF and the text is structured by the chat model.
type GigaChat struct {
	cfg        *config.GigaChatConfig
	client     *gigago.Client
	complete   completer
	httpClient *http.Client
	oauthURL   string
	baseURL    string
	logger     *zap.Logger

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func NewGigaChat(ctx context.Context, cfg *config.GigaChatConfig, logger *zap.Logger) (*GigaChat, error) {
	opts := []gigago.Option{gigago.WithCustomScope(cfg.Scope)}
	httpClient := &http.Client{Timeout: 2 * time.Minute}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SystemInstruction = systemInstruction
	model.Temperature = 0.1

	g := &GigaChat{
		cfg:        cfg,
		client:     client,
		httpClient: httpClient,
		oauthURL:   gigaChatOAuthURL,
		baseURL:    gigaChatBaseURL,
		logger:     logger,
	}
	g.complete = func(ctx context.Context, prompt string) (string, error) {
		resp, err := model.Generate(ctx, []gigago.Message{
			{Role: gigago.RoleUser, Content: prompt},
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", ErrEmptyResponse
		}
		return resp.Choices[0].Message.Content, nil
	}
	return g, nil
}

func (g *GigaChat) Extract(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	if mimeType == "application/pdf" {
		text, err := pdfText(data)
		if err != nil {
			return nil, err
		}
		answer, err := g.complete(ctx, textPrompt(text))
		if err != nil {
			return nil, classifyGigaChatError(err)
		}
		return Parse(answer)
	}

	fileID, err := g.upload(ctx, data, mimeType)
	if err != nil {
		return nil, err
	}
	answer, err := g.vision(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return Parse(answer)
}

func (g *GigaChat) Close() error {
	if g.client == nil {
		return nil
	}
	g.client.Close()
	return nil
}

func pdfText(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var sb strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		page, err := doc.Text(i)
		if err != nil {
			continue
		}
		sb.WriteString(page)
		sb.WriteString("\n")
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("no text found in PDF")
	}
	return text, nil
}

func (g *GigaChat) token(ctx context.Context, refresh bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !refresh && g.accessToken != "" && time.Until(g.expiresAt) > time.Minute {
		return g.accessToken, nil
	}

	form := url.Values{}
	form.Set("scope", g.cfg.Scope)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.oauthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create OAuth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Authorization", "Basic "+g.cfg.APIKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}
	defer resp.Body.Close()
	if err := statusError("oauth", resp); err != nil {
		return "", err
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode OAuth response: %w", err)
	}
	if body.AccessToken == "" {
		return "", errors.New("empty access token in OAuth response")
	}

	g.accessToken = body.AccessToken
	g.expiresAt = time.UnixMilli(body.ExpiresAt)
	return g.accessToken, nil
}

// do sends an authorized request, refreshing the token once on 401.
func (g *GigaChat) do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	for refresh := false; ; refresh = true {
		token, err := g.token(ctx, refresh)
		if err != nil {
			return nil, err
		}
		req, err := build()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized && !refresh {
			resp.Body.Close()
			continue
		}
		return resp, nil
	}
}

func (g *GigaChat) upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	resp, err := g.do(ctx, func() (*http.Request, error) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		if err := w.WriteField("purpose", "general"); err != nil {
			return nil, err
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="receipt`+extFor(mimeType)+`"`)
		h.Set("Content-Type", mimeType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/files", &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	defer resp.Body.Close()
	if err := statusError("upload", resp); err != nil {
		return "", err
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	g.logger.Debug("File uploaded to GigaChat", zap.String("file_id", out.ID))
	return out.ID, nil
}

func (g *GigaChat) vision(ctx context.Context, fileID string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"model": g.cfg.Model,
		"messages": []map[string]any{
			{"role": "system", "content": systemInstruction},
			{"role": "user", "content": extractionPrompt, "attachments": []string{fileID}},
		},
		"temperature": 0.1,
		"stream":      false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := g.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := statusError("vision", resp); err != nil {
		return "", err
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode vision response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

func statusError(op string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err := fmt.Errorf("gigachat %s failed with status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return fmt.Errorf("%w: %v", ErrOverloaded, err)
	}
	return err
}

func classifyGigaChatError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "503") {
		return fmt.Errorf("%w: %v", ErrOverloaded, err)
	}
	return fmt.Errorf("gigachat completion failed: %w", err)
}

func extFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	}
	return ".jpg"
}
