package export

import (
	"context"

	"github.com/jomei/notionapi"
	"go.uber.org/zap"

	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/pkg/notion"
)

// Notion rich text blocks cap out at 2000 characters.
const notionTextLimit = 2000

// pushNotion upserts one database page per completed prospect, keyed by the
// Email property, with the synthesis narrative as the page body. A retried
// batch re-exports without duplicating pages. Failures skip the prospect.
func (e *Exporter) pushNotion(ctx context.Context, job model.BatchJob, prospects []model.Prospect) {
	created, updated := 0, 0
	for i := range prospects {
		p := &prospects[i]
		if p.Status != model.ProspectStatusCompleted {
			continue
		}
		if ctx.Err() != nil {
			zap.L().Warn("notion push cancelled", zap.String("job_id", job.ID))
			return
		}

		pageID, err := notion.FindPageByEmail(ctx, e.notion, e.notionDB, p.Email)
		if err != nil {
			zap.L().Error("notion page lookup failed",
				zap.String("prospect_id", p.ID), zap.Error(err))
			continue
		}

		if pageID != "" {
			req := &notionapi.PageUpdateRequest{Properties: prospectProperties(p)}
			if _, err := e.notion.UpdatePage(ctx, pageID, req); err != nil {
				zap.L().Error("notion update page failed",
					zap.String("prospect_id", p.ID), zap.Error(err))
				continue
			}
			updated++
			continue
		}

		req := &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(e.notionDB),
			},
			Properties: prospectProperties(p),
			Children:   narrativeBlocks(synthesisNarrative(p)),
		}
		if _, err := e.notion.CreatePage(ctx, req); err != nil {
			zap.L().Error("notion create page failed",
				zap.String("prospect_id", p.ID), zap.Error(err))
			continue
		}
		created++
	}

	zap.L().Info("notion pages upserted",
		zap.String("job_id", job.ID), zap.Int("created", created), zap.Int("updated", updated))
}

func prospectProperties(p *model.Prospect) notionapi.Properties {
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: p.FullName()}},
			},
		},
		"Email": notionapi.EmailProperty{
			Type:  notionapi.PropertyTypeEmail,
			Email: p.Email,
		},
	}
	if p.Company != "" {
		props["Company"] = richTextProperty(p.Company)
	}
	if p.Title != "" {
		props["Title"] = richTextProperty(p.Title)
	}
	if p.LinkedInURL != "" {
		props["LinkedIn"] = notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  p.LinkedInURL,
		}
	}
	return props
}

func richTextProperty(v string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}},
		},
	}
}

// narrativeBlocks splits the narrative into paragraph blocks under the rich
// text size limit.
func narrativeBlocks(narrative string) []notionapi.Block {
	if narrative == "" {
		return nil
	}

	var blocks []notionapi.Block
	for len(narrative) > 0 {
		chunk := narrative
		if len(chunk) > notionTextLimit {
			chunk = chunk[:notionTextLimit]
		}
		narrative = narrative[len(chunk):]

		blocks = append(blocks, &notionapi.ParagraphBlock{
			BasicBlock: notionapi.BasicBlock{
				Object: notionapi.ObjectTypeBlock,
				Type:   notionapi.BlockTypeParagraph,
			},
			Paragraph: notionapi.Paragraph{
				RichText: []notionapi.RichText{
					{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: chunk}},
				},
			},
		})
	}
	return blocks
}
