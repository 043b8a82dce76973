package model

import (
	"strings"
	"time"
)

// SchemaVersion tags every persisted payload (lead collection and import
// checkpoint) so a future format change can be detected and migrated instead
// of silently misread.
const SchemaVersion = 1

// Stage is the pipeline position of a lead, 1 through 16.
type Stage int

const (
	StageNew       Stage = 1
	StageContacted Stage = 2
	StageQualified Stage = 3
	StageProposal  Stage = 4
	StageWon       Stage = 15
	StageLost      Stage = 16
)

// Valid reports whether the stage is inside the 1-16 funnel range.
func (s Stage) Valid() bool {
	return s >= 1 && s <= 16
}

// Lead is one sales prospect record. TaxID (digits only) is the natural key;
// two leads never share a TaxID within the durable collection.
type Lead struct {
	ID            string    `json:"id"`
	FullName      string    `json:"full_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	TaxID         string    `json:"tax_id"`
	Product       string    `json:"product"`
	TotalValue    float64   `json:"total_value"`
	Address       string    `json:"address"`
	PaymentMethod string    `json:"payment_method"`
	Origin        string    `json:"origin"`
	Stage         Stage     `json:"stage"`
	PaymentStatus string    `json:"payment_status"`
	LineNumber    int       `json:"line_number,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AddressParts holds the structured sub-fields a pasted row carries before
// they are composed into the single address string stored on the lead.
type AddressParts struct {
	Street       string
	Number       string
	Complement   string
	Neighborhood string
	PostalCode   string
	City         string
	State        string
	Country      string
}

// Compose joins the non-empty sub-fields into one display address.
func (a AddressParts) Compose() string {
	var parts []string
	if a.Street != "" {
		s := a.Street
		if a.Number != "" {
			s += ", " + a.Number
		}
		parts = append(parts, s)
	} else if a.Number != "" {
		parts = append(parts, a.Number)
	}
	for _, p := range []string{a.Complement, a.Neighborhood, a.PostalCode, a.City, a.State, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " - ")
}
