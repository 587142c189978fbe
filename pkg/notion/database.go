package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// maxPageSize is the largest page Notion returns per query.
const maxPageSize = 100

// QueryAll pages through a database until exhausted or limit pages have been
// collected. A non-positive limit means no limit.
func QueryAll(ctx context.Context, c Client, dbID string, filter notionapi.Filter, limit int) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor

	for {
		size := maxPageSize
		if limit > 0 && limit-len(all) < size {
			size = limit - len(all)
		}
		resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
			Filter:      filter,
			StartCursor: cursor,
			PageSize:    size,
		})
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}

		all = append(all, resp.Results...)
		if limit > 0 && len(all) >= limit {
			return all[:limit], nil
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}

// QueryByStatus fetches pages whose Status property equals status.
func QueryByStatus(ctx context.Context, c Client, dbID, status string, limit int) ([]notionapi.Page, error) {
	filter := notionapi.PropertyFilter{
		Property: "Status",
		Status: &notionapi.StatusFilterCondition{
			Equals: status,
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query status %s", status)
	}
	return pages, nil
}

// SetStatus updates a page's Status property and, when note is non-empty,
// its Note rich-text property.
func SetStatus(ctx context.Context, c Client, pageID, status, note string) error {
	props := notionapi.Properties{"Status": Status(status)}
	if note != "" {
		props["Note"] = RichText(note)
	}
	if _, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
		return eris.Wrapf(err, "notion: set page %s status %s", pageID, status)
	}
	return nil
}
