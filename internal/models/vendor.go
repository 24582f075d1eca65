package models

import "time"

// VendorStaleAfter is how long a cached registry lookup stays fresh.
const VendorStaleAfter = 180 * 24 * time.Hour

// Vendor caches one Australian Business Register lookup.
type Vendor struct {
	ABN               string     `db:"abn" json:"abn"`
	ABNStatus         string     `db:"abn_status" json:"abn_status"`
	GST               *time.Time `db:"gst" json:"gst"`
	EntityName        string     `db:"entity_name" json:"entity_name"`
	BusinessName      []string   `db:"business_name" json:"business_name"`
	AddressState      string     `db:"address_state" json:"address_state"`
	AddressPostcode   string     `db:"address_postcode" json:"address_postcode"`
	RequestUpdateDate time.Time  `db:"request_update_date" json:"request_update_date"`
}

func (v *Vendor) Stale(now time.Time) bool {
	return now.Sub(v.RequestUpdateDate) > VendorStaleAfter
}

func (v *Vendor) GSTRegistered() bool {
	return v.GST != nil
}

// ValidABN reports whether s is exactly 11 ASCII digits.
func ValidABN(s string) bool {
	if len(s) != 11 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
