package importer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giada-tronca/cold-outreach/internal/model"
)

func TestReadCSV_Basic(t *testing.T) {
	input := "Email,First Name,Last Name,Company,Website\n" +
		"jane@acme.com,Jane,Doe,Acme,https://acme.com\n" +
		"bob@beta.io,Bob,Ray,Beta,\n"

	res, err := ReadCSV(context.Background(), strings.NewReader(input), "camp-1")
	require.NoError(t, err)
	require.Len(t, res.Prospects, 2)
	assert.Empty(t, res.Rejected)

	p := res.Prospects[0]
	assert.Equal(t, "jane@acme.com", p.Email)
	assert.Equal(t, "Jane", p.FirstName)
	assert.Equal(t, "Doe", p.LastName)
	assert.Equal(t, "Acme", p.Company)
	assert.Equal(t, "camp-1", p.CampaignID)
	assert.Equal(t, model.ProspectStatusPending, p.Status)
	assert.NotEmpty(t, p.ID)
}

func TestReadCSV_HeaderAliases(t *testing.T) {
	input := "email_address,name,job_title,organization,linkedin\n" +
		"jane@acme.com,Jane van der Berg,CTO,Acme,https://linkedin.com/in/jane\n"

	res, err := ReadCSV(context.Background(), strings.NewReader(input), "camp-1")
	require.NoError(t, err)
	require.Len(t, res.Prospects, 1)

	p := res.Prospects[0]
	assert.Equal(t, "Jane", p.FirstName)
	assert.Equal(t, "van der Berg", p.LastName)
	assert.Equal(t, "CTO", p.Title)
	assert.Equal(t, "Acme", p.Company)
	assert.Equal(t, "https://linkedin.com/in/jane", p.LinkedInURL)
}

func TestReadCSV_RejectsMissingEmail(t *testing.T) {
	input := "email,first_name\n" +
		",NoEmail\n" +
		"not-an-email,Bad\n" +
		"ok@acme.com,Fine\n"

	res, err := ReadCSV(context.Background(), strings.NewReader(input), "camp-1")
	require.NoError(t, err)
	require.Len(t, res.Prospects, 1)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, 2, res.Rejected[0].Row)
	assert.Equal(t, 3, res.Rejected[1].Row)
	assert.Contains(t, res.Rejected[0].Reason, "email")
}

func TestReadCSV_RejectsInFileDuplicates(t *testing.T) {
	input := "email\n" +
		"jane@acme.com\n" +
		"JANE@ACME.COM \n" +
		"bob@beta.io\n"

	res, err := ReadCSV(context.Background(), strings.NewReader(input), "camp-1")
	require.NoError(t, err)
	require.Len(t, res.Prospects, 2)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, 3, res.Rejected[0].Row)
	assert.Contains(t, res.Rejected[0].Reason, "duplicate of row 2")
}

func TestReadCSV_NoEmailColumn(t *testing.T) {
	input := "first_name,last_name\nJane,Doe\n"

	_, err := ReadCSV(context.Background(), strings.NewReader(input), "camp-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no email column")
}

func TestReadCSV_EmptyFile(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader(""), "camp-1")
	require.Error(t, err)
}
