// Package parser turns raw pasted tabular text into normalized lead records.
// Bulk paste sources (spreadsheets, WhatsApp exports) are unreliable, so the
// parser is deliberately tolerant: malformed rows are skipped and logged,
// never fatal.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lead-admin/internal/model"
)

// Column order of a pasted row. Everything after taxId is optional.
const (
	colName = iota
	colEmail
	colPhone
	colTaxID
	colProduct
	colValue
	colStreet
	colNumber
	colComplement
	colNeighborhood
	colPostalCode
	colCity
	colState
	colCountry
)

// minFields is the minimum column count for a row to be accepted
// (name, email, phone, taxId).
const minFields = 4

// Defaults supplies fallback values for fields a pasted row may omit.
type Defaults struct {
	Product       string
	Price         float64
	Country       string
	Origin        string
	PaymentMethod string
	PaymentStatus string

	// PriceFor optionally resolves a per-product price (catalog lookup).
	// When nil or when the product is unknown, Price is used.
	PriceFor func(product string) (float64, bool)
}

// Duplicate identifies a row dropped because its taxId was already seen
// earlier in the same paste.
type Duplicate struct {
	Name  string `json:"name"`
	TaxID string `json:"tax_id"`
}

// Result is the outcome of parsing one paste.
type Result struct {
	Records           []model.Lead `json:"records"`
	DuplicatesRemoved []Duplicate  `json:"duplicates_removed"`
}

var (
	// Fields are separated by tab runs or runs of 2+ spaces, so single
	// spaces inside names and addresses survive.
	fieldSep = regexp.MustCompile(`\t+|[ ]{2,}`)
	nonDigit = regexp.MustCompile(`\D`)
)

// Parse splits raw text into lines, one candidate lead per line. Rows with
// fewer than four fields are skipped. The first occurrence of a taxId wins;
// later rows with the same taxId go to DuplicatesRemoved. Accepted records
// preserve input order.
func Parse(raw string, d Defaults) Result {
	log := zap.L().With(zap.String("component", "parser"))

	result := Result{}
	seen := make(map[string]struct{})

	for i, line := range strings.Split(raw, "\n") {
		lineNo := i + 1
		line = strings.TrimRight(strings.TrimSpace(line), "\r")
		if line == "" {
			continue
		}

		fields := fieldSep.Split(line, -1)
		if len(fields) < minFields {
			log.Debug("skipping malformed row",
				zap.Int("line", lineNo),
				zap.Int("fields", len(fields)),
			)
			continue
		}

		taxID := NormalizeTaxID(at(fields, colTaxID))
		if taxID == "" {
			log.Debug("skipping row without tax id", zap.Int("line", lineNo))
			continue
		}
		if _, dup := seen[taxID]; dup {
			result.DuplicatesRemoved = append(result.DuplicatesRemoved, Duplicate{
				Name:  at(fields, colName),
				TaxID: taxID,
			})
			continue
		}
		seen[taxID] = struct{}{}

		result.Records = append(result.Records, buildLead(fields, taxID, lineNo, d))
	}

	return result
}

// NormalizeTaxID strips every non-digit character.
func NormalizeTaxID(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

func buildLead(fields []string, taxID string, lineNo int, d Defaults) model.Lead {
	product := at(fields, colProduct)
	if product == "" {
		product = d.Product
	}

	addr := model.AddressParts{
		Street:       at(fields, colStreet),
		Number:       at(fields, colNumber),
		Complement:   at(fields, colComplement),
		Neighborhood: at(fields, colNeighborhood),
		PostalCode:   at(fields, colPostalCode),
		City:         at(fields, colCity),
		State:        at(fields, colState),
		Country:      at(fields, colCountry),
	}
	if addr.Country == "" {
		addr.Country = d.Country
	}

	return model.Lead{
		FullName:      at(fields, colName),
		Email:         at(fields, colEmail),
		Phone:         at(fields, colPhone),
		TaxID:         taxID,
		Product:       product,
		TotalValue:    parseValue(at(fields, colValue), product, d),
		Address:       addr.Compose(),
		PaymentMethod: d.PaymentMethod,
		Origin:        d.Origin,
		Stage:         model.StageNew,
		PaymentStatus: d.PaymentStatus,
		LineNumber:    lineNo,
	}
}

// parseValue parses the monetary field. A parse failure never rejects the
// row; the catalog price for the product (when known) or the configured
// default price is substituted.
func parseValue(s, product string, d Defaults) float64 {
	fallback := d.Price
	if d.PriceFor != nil {
		if p, ok := d.PriceFor(product); ok {
			fallback = p
		}
	}

	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	if s == "" {
		return fallback
	}
	// Brazilian decimal comma: "67,90" means 67.90.
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

// at returns the trimmed field at index i, or empty string past the end.
func at(fields []string, i int) string {
	if i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}
