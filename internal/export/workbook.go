package export

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/giada-tronca/cold-outreach/internal/model"
)

var prospectHeader = []string{
	"First Name", "Last Name", "Email", "Title", "Company", "Website",
	"LinkedIn", "Status", "Retries", "Errors", "Synthesis",
}

// buildWorkbook renders the batch into a two-sheet workbook: a summary sheet
// with the batch counters and a prospect sheet with one row per prospect.
func buildWorkbook(job model.BatchJob, prospects []model.Prospect) (*xlsx.File, error) {
	f := xlsx.NewFile()

	if err := addSummarySheet(f, job); err != nil {
		return nil, err
	}
	if err := addProspectSheet(f, prospects); err != nil {
		return nil, err
	}
	return f, nil
}

func addSummarySheet(f *xlsx.File, job model.BatchJob) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	addPair := func(key, value string) {
		row := sheet.AddRow()
		row.AddCell().SetString(key)
		row.AddCell().SetString(value)
	}

	c := job.Counters
	addPair("Batch", job.ID)
	addPair("Campaign", job.CampaignID)
	addPair("Status", string(job.Status))
	addPair("Total", fmt.Sprintf("%d", c.Total))
	addPair("Succeeded", fmt.Sprintf("%d", c.Succeeded))
	addPair("Failed", fmt.Sprintf("%d", c.Failed))
	addPair("Duplicates", fmt.Sprintf("%d", c.Duplicates))
	addPair("Success Rate", fmt.Sprintf("%.1f%%", c.SuccessRate()*100))
	addPair("Created", job.CreatedAt.Format("2006-01-02 15:04:05"))
	if job.CompletedAt != nil {
		addPair("Completed", job.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func addProspectSheet(f *xlsx.File, prospects []model.Prospect) error {
	sheet, err := f.AddSheet("Prospects")
	if err != nil {
		return eris.Wrap(err, "export: add prospect sheet")
	}

	header := sheet.AddRow()
	for _, h := range prospectHeader {
		header.AddCell().SetString(h)
	}

	for i := range prospects {
		p := &prospects[i]
		row := sheet.AddRow()
		row.AddCell().SetString(p.FirstName)
		row.AddCell().SetString(p.LastName)
		row.AddCell().SetString(p.Email)
		row.AddCell().SetString(p.Title)
		row.AddCell().SetString(p.Company)
		row.AddCell().SetString(p.Website)
		row.AddCell().SetString(p.LinkedInURL)
		row.AddCell().SetString(string(p.Status))
		row.AddCell().SetInt(p.RetryCount)
		row.AddCell().SetString(strings.Join(p.Errors, "; "))
		row.AddCell().SetString(synthesisNarrative(p))
	}
	return nil
}
