package service

import (
	"errors"
	"strings"
	"unicode/utf8"

	"receiptflow/internal/models"
	"receiptflow/internal/repository"
)

// sanitizeUTF8 removes invalid UTF-8 sequences from model output.
// PostgreSQL rejects them on insert.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return strings.TrimSpace(s)
	}

	var result strings.Builder
	result.Grow(len(s))

	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		result.WriteRune(r)
		s = s[size:]
	}

	return strings.TrimSpace(result.String())
}

func sanitizeFields(f *models.ReceiptFields) {
	for _, p := range []*string{
		&f.VendorName, &f.VendorABN, &f.VendorAddress, &f.DocumentType, &f.ReceiptNumber,
		&f.PaymentType, &f.ExpenseCategory, &f.TaxStatus, &f.TaxType,
	} {
		*p = sanitizeUTF8(*p)
	}
}

// normalizeABN drops the spaces and dashes ABNs are printed with.
func normalizeABN(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, s)
}

// storeErr translates repository sentinels into service ones.
func storeErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
