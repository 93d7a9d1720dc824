package mathagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/codevoyager1984/math-agent/internal/domain"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/result"
)

// Ingest adds knowledge points to both stores, keeping any that already exist.
// Points without an ID get a random one. Returns the IDs in input order.
func (c *Client) Ingest(ctx context.Context, kps []KnowledgePoint) (ids []string, err error) {
	sp := c.obs.begin("ingest")
	defer func() { sp.end(len(ids), err) }()

	docs, err := toDocuments(kps, true)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if err = c.engine.Ingest(ctx, docs); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	return document.IDs(docs), nil
}

// Upsert writes knowledge points to both stores, replacing existing ones. IDs are required.
func (c *Client) Upsert(ctx context.Context, kps []KnowledgePoint) (err error) {
	sp := c.obs.begin("upsert")
	defer func() { sp.end(len(kps), err) }()

	docs, err := toDocuments(kps, false)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	if err = c.engine.Upsert(ctx, docs); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// Get retrieves a knowledge point by ID.
func (c *Client) Get(ctx context.Context, id string) (kp KnowledgePoint, err error) {
	sp := c.obs.begin("get")
	defer func() { sp.end(1, err) }()

	r, err := c.engine.GetByID(ctx, id)
	if err != nil {
		return KnowledgePoint{}, fmt.Errorf("get knowledge point: %w", err)
	}
	return fromResult(&r), nil
}

// Delete removes knowledge points from both stores. Unknown IDs are ignored.
func (c *Client) Delete(ctx context.Context, ids ...string) (err error) {
	sp := c.obs.begin("delete")
	defer func() { sp.end(len(ids), err) }()

	if len(ids) == 0 {
		return fmt.Errorf("delete: %w: %w", domain.ErrInvalidInput, errNoIDs)
	}
	if err = c.engine.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Clear removes every knowledge point from both stores.
func (c *Client) Clear(ctx context.Context) (err error) {
	sp := c.obs.begin("clear")
	defer func() { sp.end(0, err) }()

	if err = c.engine.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

func toDocuments(kps []KnowledgePoint, assignIDs bool) ([]document.Document, error) {
	docs := make([]document.Document, 0, len(kps))
	for i := range kps {
		kp := &kps[i]
		id := strings.TrimSpace(kp.ID)
		if id == "" && assignIDs {
			id = uuid.NewString()
		}

		md := document.Metadata{
			Title:       kp.Title,
			Description: kp.Description,
			Category:    kp.Category,
			Tags:        kp.Tags,
		}
		for _, ex := range kp.Examples {
			md.Examples = append(md.Examples, document.Example{
				Question:   ex.Question,
				Solution:   ex.Solution,
				Difficulty: document.Difficulty(ex.Difficulty),
			})
		}

		content := kp.Content
		if strings.TrimSpace(content) == "" {
			content = document.ComposeContent(&md)
		}
		doc, err := document.New(id, content, md)
		if err != nil {
			return nil, fmt.Errorf("%w: knowledge point %d: %w", domain.ErrInvalidInput, i, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func fromResult(r *result.RankedResult) KnowledgePoint {
	kp := KnowledgePoint{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Content:     r.Content,
		Tags:        r.Tags,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	for _, ex := range r.Examples {
		kp.Examples = append(kp.Examples, Example{
			Question:   ex.Question,
			Solution:   ex.Solution,
			Difficulty: Difficulty(ex.Difficulty),
		})
	}
	return kp
}
