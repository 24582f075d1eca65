package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"receiptflow/internal/models"
	"receiptflow/pkg/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
)

var xeroScopes = []string{"accounting.transactions"}

// accountCodes maps expense categories onto the default Xero chart of accounts.
var accountCodes = map[string]string{
	"fuel":            "449",
	"meals":           "420",
	"travel":          "493",
	"office supplies": "453",
	"software":        "485",
	"utilities":       "445",
	"repairs":         "473",
	"advertising":     "400",
}

// Xero posts each record to Xero as a bill (ACCPAY invoice) or a spend
// money bank transaction.
type Xero struct {
	cfg        *config.XeroConfig
	mode       models.ExportMode
	httpClient *http.Client
	logger     *zap.Logger
}

// NewXero authenticates with a Xero custom connection using the client
// credentials grant.
func NewXero(ctx context.Context, cfg *config.XeroConfig, mode models.ExportMode, logger *zap.Logger) *Xero {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       xeroScopes,
	}
	return &Xero{cfg: cfg, mode: mode, httpClient: cc.Client(ctx), logger: logger}
}

func (x *Xero) Begin(_ context.Context, info BatchInfo) (Batch, error) {
	return &xeroBatch{x: x, info: info}, nil
}

type xeroBatch struct {
	x    *Xero
	info BatchInfo
}

func (b *xeroBatch) Add(ctx context.Context, rec *models.DigitizedReady) error {
	return b.x.post(ctx, rec)
}

func (b *xeroBatch) Close(context.Context) (*Artifact, error) {
	return nil, nil
}

type xeroContact struct {
	Name string `json:"Name"`
}

type xeroLineItem struct {
	Description string      `json:"Description"`
	Quantity    json.Number `json:"Quantity"`
	UnitAmount  json.Number `json:"UnitAmount"`
	AccountCode string      `json:"AccountCode"`
	TaxType     string      `json:"TaxType"`
	TaxAmount   json.Number `json:"TaxAmount"`
}

type xeroInvoice struct {
	Type            string         `json:"Type"`
	Contact         xeroContact    `json:"Contact"`
	Date            string         `json:"Date,omitempty"`
	DueDate         string         `json:"DueDate,omitempty"`
	InvoiceNumber   string         `json:"InvoiceNumber,omitempty"`
	Reference       string         `json:"Reference,omitempty"`
	LineAmountTypes string         `json:"LineAmountTypes"`
	Status          string         `json:"Status"`
	LineItems       []xeroLineItem `json:"LineItems"`
}

type xeroBankAccount struct {
	Code string `json:"Code"`
}

type xeroBankTransaction struct {
	Type            string          `json:"Type"`
	Contact         xeroContact     `json:"Contact"`
	BankAccount     xeroBankAccount `json:"BankAccount"`
	Date            string          `json:"Date,omitempty"`
	Reference       string          `json:"Reference,omitempty"`
	LineAmountTypes string          `json:"LineAmountTypes"`
	LineItems       []xeroLineItem  `json:"LineItems"`
}

func (x *Xero) lineItem(rec *models.DigitizedReady) xeroLineItem {
	tax := models.Amount(rec.TaxAmount)
	taxType := "NONE"
	if tax.IsPositive() {
		taxType = "INPUT"
	}
	code, ok := accountCodes[strings.ToLower(strings.TrimSpace(rec.ExpenseCategory))]
	if !ok {
		code = x.cfg.DefaultAccountCode
	}
	desc := rec.VendorName
	if rec.ExpenseCategory != "" {
		desc = fmt.Sprintf("%s - %s", rec.VendorName, rec.ExpenseCategory)
	}
	return xeroLineItem{
		Description: desc,
		Quantity:    json.Number("1"),
		UnitAmount:  number(models.Amount(rec.TotalAmount)),
		AccountCode: code,
		TaxType:     taxType,
		TaxAmount:   number(tax),
	}
}

// payload builds the request path and body for one record.
func (x *Xero) payload(rec *models.DigitizedReady) (string, any) {
	contact := xeroContact{Name: rec.VendorName}
	if contact.Name == "" {
		contact.Name = "Unknown vendor"
	}
	date := dateOrEmpty(rec.PurchaseDate)
	line := x.lineItem(rec)

	if x.mode == models.ExportModeXeroSpend {
		return "/BankTransactions", map[string][]xeroBankTransaction{
			"BankTransactions": {{
				Type:            "SPEND",
				Contact:         contact,
				BankAccount:     xeroBankAccount{Code: x.cfg.BankAccountCode},
				Date:            date,
				Reference:       rec.ReceiptNumber,
				LineAmountTypes: "Inclusive",
				LineItems:       []xeroLineItem{line},
			}},
		}
	}
	return "/Invoices", map[string][]xeroInvoice{
		"Invoices": {{
			Type:            "ACCPAY",
			Contact:         contact,
			Date:            date,
			DueDate:         date,
			InvoiceNumber:   rec.ReceiptNumber,
			Reference:       rec.ID.String(),
			LineAmountTypes: "Inclusive",
			Status:          "AUTHORISED",
			LineItems:       []xeroLineItem{line},
		}},
	}
}

func (x *Xero) post(ctx context.Context, rec *models.DigitizedReady) error {
	path, body := x.payload(rec)
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal Xero payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, strings.TrimRight(x.cfg.BaseURL, "/")+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create Xero request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("xero-tenant-id", x.cfg.TenantID)

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("xero request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		x.logger.Debug("Record posted to Xero", zap.String("id", rec.ID.String()), zap.String("path", path))
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return fmt.Errorf("xero returned status %d: %s", resp.StatusCode, xeroErrorMessage(respBody))
}

// xeroErrorMessage pulls validation messages out of a Xero error body.
func xeroErrorMessage(body []byte) string {
	var e struct {
		Message  string `json:"Message"`
		Elements []struct {
			ValidationErrors []struct {
				Message string `json:"Message"`
			} `json:"ValidationErrors"`
		} `json:"Elements"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return strings.TrimSpace(string(body))
	}
	var msgs []string
	for _, el := range e.Elements {
		for _, v := range el.ValidationErrors {
			msgs = append(msgs, v.Message)
		}
	}
	if len(msgs) == 0 {
		return e.Message
	}
	return strings.Join(msgs, "; ")
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}
