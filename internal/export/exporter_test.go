package export

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/giada-tronca/cold-outreach/internal/job"
	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/pkg/salesforce"
)

// the exporter is wired as the orchestrator's export callback
var _ job.ExportFunc = New("").Export

func testBatch() (model.BatchJob, []model.Prospect) {
	now := time.Now().UTC()
	done := now.Add(time.Minute)
	batch := model.BatchJob{
		ID:          "batch-1",
		CampaignID:  "camp-1",
		Status:      model.JobStatusCompletedWithErrors,
		Counters:    model.Counters{Total: 3, Processed: 3, Succeeded: 1, Failed: 1, Duplicates: 1},
		CreatedAt:   now,
		CompletedAt: &done,
	}

	synthesis, _ := json.Marshal(map[string]string{
		"narrative": "Jane leads platform engineering at Acme.",
		"model":     "claude-sonnet-4-20250514",
	})
	prospects := []model.Prospect{
		{
			ID: "p-1", FirstName: "Jane", LastName: "Doe", Email: "jane@acme.com",
			Title: "VP Engineering", Company: "Acme", Website: "acme.com",
			Status:  model.ProspectStatusCompleted,
			Results: map[string]json.RawMessage{model.StageSynthesis: synthesis},
		},
		{
			ID: "p-2", FirstName: "Bob", LastName: "Roe", Email: "bob@beta.io",
			Status: model.ProspectStatusFailed,
			Errors: []string{"profile: lookup timed out"},
		},
		{
			ID: "p-3", FirstName: "Jane", LastName: "Doe", Email: "jane+alt@acme.com",
			Status: model.ProspectStatusDuplicate,
		},
	}
	return batch, prospects
}

func TestExportWritesWorkbook(t *testing.T) {
	dir := t.TempDir()
	batch, prospects := testBatch()

	path, err := New(dir).Export(context.Background(), batch, prospects)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "batch-batch-1.xlsx"), path)

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	summary := f.Sheet["Summary"]
	require.NotNil(t, summary)
	assert.Equal(t, "Batch", summary.Rows[0].Cells[0].String())
	assert.Equal(t, "batch-1", summary.Rows[0].Cells[1].String())

	sheet := f.Sheet["Prospects"]
	require.NotNil(t, sheet)
	require.Len(t, sheet.Rows, 4) // header + 3 prospects

	header := sheet.Rows[0]
	assert.Equal(t, "First Name", header.Cells[0].String())
	assert.Equal(t, "Synthesis", header.Cells[10].String())

	jane := sheet.Rows[1]
	assert.Equal(t, "jane@acme.com", jane.Cells[2].String())
	assert.Equal(t, "completed", jane.Cells[7].String())
	assert.Equal(t, "Jane leads platform engineering at Acme.", jane.Cells[10].String())

	bob := sheet.Rows[2]
	assert.Equal(t, "failed", bob.Cells[7].String())
	assert.Equal(t, "profile: lookup timed out", bob.Cells[9].String())
}

type fakeNotion struct {
	existingPageID string
	pages          []*notionapi.PageCreateRequest
	updates        []*notionapi.PageUpdateRequest
	err            error
}

func (f *fakeNotion) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	resp := &notionapi.DatabaseQueryResponse{}
	if f.existingPageID != "" {
		resp.Results = []notionapi.Page{{ID: notionapi.ObjectID(f.existingPageID)}}
	}
	return resp, nil
}

func (f *fakeNotion) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.pages = append(f.pages, req)
	return &notionapi.Page{}, nil
}

func (f *fakeNotion) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	f.updates = append(f.updates, req)
	return &notionapi.Page{}, nil
}

func TestExportNotionOnlyCompletedProspects(t *testing.T) {
	batch, prospects := testBatch()
	fn := &fakeNotion{}

	_, err := New(t.TempDir(), WithNotion(fn, "db-1")).Export(context.Background(), batch, prospects)
	require.NoError(t, err)

	require.Len(t, fn.pages, 1)
	page := fn.pages[0]
	assert.Equal(t, notionapi.DatabaseID("db-1"), page.Parent.DatabaseID)

	title, ok := page.Properties["Name"].(notionapi.TitleProperty)
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", title.Title[0].Text.Content)
	require.Len(t, page.Children, 1)
}

func TestExportNotionUpdatesExistingPage(t *testing.T) {
	batch, prospects := testBatch()
	fn := &fakeNotion{existingPageID: "page-7"}

	_, err := New(t.TempDir(), WithNotion(fn, "db-1")).Export(context.Background(), batch, prospects)
	require.NoError(t, err)

	assert.Empty(t, fn.pages)
	require.Len(t, fn.updates, 1)
	_, ok := fn.updates[0].Properties["Name"].(notionapi.TitleProperty)
	assert.True(t, ok)
}

type fakeSalesforce struct {
	existingID string
	queryErr   error
	inserts    []map[string]any
	updates    []map[string]any
}

func (f *fakeSalesforce) Query(ctx context.Context, soql string, out any) error {
	if f.queryErr != nil {
		return f.queryErr
	}
	result := out.(*salesforce.LeadQueryResult)
	if f.existingID != "" {
		result.Records = []salesforce.Lead{{ID: f.existingID}}
	}
	return nil
}

func (f *fakeSalesforce) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	f.inserts = append(f.inserts, record)
	return "lead-new", nil
}

func (f *fakeSalesforce) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	f.updates = append(f.updates, fields)
	return nil
}

func TestExportSalesforceUpsert(t *testing.T) {
	batch, prospects := testBatch()

	t.Run("inserts new lead", func(t *testing.T) {
		sf := &fakeSalesforce{}
		_, err := New(t.TempDir(), WithSalesforce(sf)).Export(context.Background(), batch, prospects)
		require.NoError(t, err)

		require.Len(t, sf.inserts, 1)
		assert.Empty(t, sf.updates)
		assert.Equal(t, "jane@acme.com", sf.inserts[0]["Email"])
		assert.Contains(t, sf.inserts[0]["Description"], "platform engineering")
	})

	t.Run("updates existing lead", func(t *testing.T) {
		sf := &fakeSalesforce{existingID: "lead-42"}
		_, err := New(t.TempDir(), WithSalesforce(sf)).Export(context.Background(), batch, prospects)
		require.NoError(t, err)

		assert.Empty(t, sf.inserts)
		require.Len(t, sf.updates, 1)
	})
}

func TestExportDestinationFailuresAreNotFatal(t *testing.T) {
	batch, prospects := testBatch()
	fn := &fakeNotion{err: eris.New("notion: rate limited")}
	sf := &fakeSalesforce{queryErr: eris.New("salesforce: session expired")}

	path, err := New(t.TempDir(), WithNotion(fn, "db-1"), WithSalesforce(sf)).
		Export(context.Background(), batch, prospects)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestNarrativeBlocksChunking(t *testing.T) {
	assert.Nil(t, narrativeBlocks(""))

	blocks := narrativeBlocks(strings.Repeat("x", notionTextLimit+500))
	require.Len(t, blocks, 2)

	first := blocks[0].(*notionapi.ParagraphBlock)
	assert.Len(t, first.Paragraph.RichText[0].Text.Content, notionTextLimit)
}

func TestSOQLEscape(t *testing.T) {
	assert.Equal(t, `o\'brien@acme.com`, soqlEscape("o'brien@acme.com"))
}
