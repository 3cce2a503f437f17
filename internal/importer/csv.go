// Package importer parses prospect lists into the batch data model.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/giada-tronca/cold-outreach/internal/model"
)

// RowError records a row rejected during import. Row numbers are 1-based and
// count the header.
type RowError struct {
	Row    int
	Reason string
}

func (e RowError) String() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// Result is the outcome of an import: accepted prospects plus per-row
// rejections. Rejections never abort the import.
type Result struct {
	Prospects []model.Prospect
	Rejected  []RowError
}

// headerAliases maps accepted column names (folded) to canonical fields.
var headerAliases = map[string]string{
	"email":         "email",
	"email_address": "email",
	"first_name":    "first_name",
	"firstname":     "first_name",
	"first":         "first_name",
	"last_name":     "last_name",
	"lastname":      "last_name",
	"last":          "last_name",
	"name":          "full_name",
	"full_name":     "full_name",
	"title":         "title",
	"job_title":     "title",
	"role":          "title",
	"company":       "company",
	"company_name":  "company",
	"organization":  "company",
	"website":       "website",
	"company_url":   "website",
	"url":           "website",
	"domain":        "website",
	"linkedin":      "linkedin_url",
	"linkedin_url":  "linkedin_url",
}

func canonicalHeader(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return headerAliases[key]
}

// ReadCSV parses a prospect CSV for the given campaign. The first row must be
// a header; columns are matched case-insensitively against known aliases and
// unrecognized columns are ignored. Rows without a usable email are rejected,
// as are in-file duplicates by natural key.
func ReadCSV(ctx context.Context, r io.Reader, campaignID string) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("importer: empty file")
	}
	if err != nil {
		return nil, eris.Wrap(err, "importer: read header")
	}

	fields := make(map[int]string, len(header))
	for i, col := range header {
		if name := canonicalHeader(col); name != "" {
			fields[i] = name
		}
	}
	if !hasField(fields, "email") {
		return nil, eris.New("importer: no email column in header")
	}

	result := &Result{}
	seen := make(map[string]int)
	now := time.Now().UTC()

	for rowNum := 2; ; rowNum++ {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "importer: context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Rejected = append(result.Rejected, RowError{Row: rowNum, Reason: err.Error()})
			continue
		}

		p := model.Prospect{
			ID:         uuid.NewString(),
			CampaignID: campaignID,
			Status:     model.ProspectStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		var fullName string
		for i, value := range record {
			name, ok := fields[i]
			if !ok {
				continue
			}
			value = strings.TrimSpace(value)
			switch name {
			case "email":
				p.Email = value
			case "first_name":
				p.FirstName = value
			case "last_name":
				p.LastName = value
			case "full_name":
				fullName = value
			case "title":
				p.Title = value
			case "company":
				p.Company = value
			case "website":
				p.Website = value
			case "linkedin_url":
				p.LinkedInURL = value
			}
		}
		if p.FirstName == "" && p.LastName == "" && fullName != "" {
			p.FirstName, p.LastName = splitName(fullName)
		}

		if p.Email == "" || !strings.Contains(p.Email, "@") {
			result.Rejected = append(result.Rejected, RowError{Row: rowNum, Reason: "missing or malformed email"})
			continue
		}
		key := model.EmailKey(p.Email)
		if prev, dup := seen[key]; dup {
			result.Rejected = append(result.Rejected, RowError{
				Row:    rowNum,
				Reason: fmt.Sprintf("duplicate of row %d", prev),
			})
			continue
		}
		seen[key] = rowNum

		result.Prospects = append(result.Prospects, p)
	}

	if len(result.Rejected) > 0 {
		zap.L().Warn("import rejected rows",
			zap.String("campaign_id", campaignID),
			zap.Int("accepted", len(result.Prospects)),
			zap.Int("rejected", len(result.Rejected)))
	}
	return result, nil
}

func hasField(fields map[int]string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// splitName splits "Jane van der Berg" into first name "Jane" and the rest as
// last name.
func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
