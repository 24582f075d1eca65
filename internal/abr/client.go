// Package abr looks up Australian Business Numbers in the public
// Australian Business Register JSON service.
package abr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"receiptflow/internal/models"
	"receiptflow/pkg/config"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("abn not found")

type Client struct {
	baseURL    string
	guid       string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg *config.ABRConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		guid:       cfg.GUID,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type abnDetails struct {
	Abn             string   `json:"Abn"`
	AbnStatus       string   `json:"AbnStatus"`
	Gst             *string  `json:"Gst"`
	EntityName      string   `json:"EntityName"`
	BusinessName    []string `json:"BusinessName"`
	AddressState    string   `json:"AddressState"`
	AddressPostcode string   `json:"AddressPostcode"`
	Message         string   `json:"Message"`
}

// Lookup fetches the current register entry for abn.
func (c *Client) Lookup(ctx context.Context, abn string) (*models.Vendor, error) {
	q := url.Values{}
	q.Set("abn", abn)
	q.Set("guid", c.guid)
	q.Set("callback", "c")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/AbnDetails.aspx?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ABR request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ABR request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read ABR response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ABR returned status %d", resp.StatusCode)
	}

	var d abnDetails
	if err := json.Unmarshal(unwrapJSONP(body), &d); err != nil {
		return nil, fmt.Errorf("failed to decode ABR response: %w", err)
	}
	if d.Abn == "" {
		if d.Message != "" {
			c.logger.Debug("ABR lookup returned message", zap.String("abn", abn), zap.String("message", d.Message))
		}
		return nil, ErrNotFound
	}

	v := &models.Vendor{
		ABN:               d.Abn,
		ABNStatus:         d.AbnStatus,
		EntityName:        d.EntityName,
		BusinessName:      d.BusinessName,
		AddressState:      d.AddressState,
		AddressPostcode:   d.AddressPostcode,
		RequestUpdateDate: time.Now().UTC(),
	}
	if v.BusinessName == nil {
		v.BusinessName = []string{}
	}
	if d.Gst != nil && *d.Gst != "" {
		gst, err := time.Parse("2006-01-02", *d.Gst)
		if err != nil {
			return nil, fmt.Errorf("invalid GST date %q: %w", *d.Gst, err)
		}
		v.GST = &gst
	}
	return v, nil
}

// unwrapJSONP strips a callback wrapper such as c({...}).
func unwrapJSONP(b []byte) []byte {
	b = bytes.TrimSpace(b)
	start := bytes.IndexByte(b, '(')
	end := bytes.LastIndexByte(b, ')')
	if start < 0 || end < start || bytes.HasPrefix(b, []byte("{")) {
		return b
	}
	return b[start+1 : end]
}
