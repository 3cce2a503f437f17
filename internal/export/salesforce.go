package export

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/pkg/salesforce"
)

// Salesforce caps Lead.Description at 32k characters.
const leadDescriptionLimit = 32000

// syncSalesforce upserts completed prospects as Leads, matched by email.
// Failures skip the prospect.
func (e *Exporter) syncSalesforce(ctx context.Context, job model.BatchJob, prospects []model.Prospect) {
	inserted, updated := 0, 0
	for i := range prospects {
		p := &prospects[i]
		if p.Status != model.ProspectStatusCompleted {
			continue
		}
		if ctx.Err() != nil {
			zap.L().Warn("salesforce sync cancelled", zap.String("job_id", job.ID))
			return
		}

		existing, err := e.findLead(ctx, p.Email)
		if err != nil {
			zap.L().Error("salesforce lead lookup failed",
				zap.String("prospect_id", p.ID), zap.Error(err))
			continue
		}

		fields := leadFields(p)
		if existing != "" {
			if err := e.sf.UpdateOne(ctx, "Lead", existing, fields); err != nil {
				zap.L().Error("salesforce lead update failed",
					zap.String("prospect_id", p.ID), zap.Error(err))
				continue
			}
			updated++
		} else {
			if _, err := e.sf.InsertOne(ctx, "Lead", fields); err != nil {
				zap.L().Error("salesforce lead insert failed",
					zap.String("prospect_id", p.ID), zap.Error(err))
				continue
			}
			inserted++
		}
	}

	zap.L().Info("salesforce leads synced",
		zap.String("job_id", job.ID),
		zap.Int("inserted", inserted),
		zap.Int("updated", updated))
}

// findLead returns the Lead ID for the email, or empty when absent.
func (e *Exporter) findLead(ctx context.Context, email string) (string, error) {
	soql := fmt.Sprintf("SELECT Id, Email FROM Lead WHERE Email = '%s' LIMIT 1", soqlEscape(email))
	var result salesforce.LeadQueryResult
	if err := e.sf.Query(ctx, soql, &result); err != nil {
		return "", err
	}
	if len(result.Records) == 0 {
		return "", nil
	}
	return result.Records[0].ID, nil
}

func leadFields(p *model.Prospect) map[string]any {
	fields := map[string]any{
		"Email": p.Email,
	}
	if p.FirstName != "" {
		fields["FirstName"] = p.FirstName
	}
	if p.LastName != "" {
		fields["LastName"] = p.LastName
	}
	if p.Title != "" {
		fields["Title"] = p.Title
	}
	if p.Company != "" {
		fields["Company"] = p.Company
	}
	if p.Website != "" {
		fields["Website"] = p.Website
	}
	if narrative := synthesisNarrative(p); narrative != "" {
		if len(narrative) > leadDescriptionLimit {
			narrative = narrative[:leadDescriptionLimit]
		}
		fields["Description"] = narrative
	}
	return fields
}

func soqlEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
