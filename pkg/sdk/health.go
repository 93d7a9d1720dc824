package mathagent

import "context"

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component -> "ok"/"error", rerank_model -> load state
}

// Health checks the stores, the embedding provider and the rerank model.
func (c *Client) Health(ctx context.Context) HealthStatus {
	sp := c.obs.begin("health")
	report := c.engine.Health(ctx)
	sp.end(len(report.Checks), nil)

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	}
}

// Stats counts the documents held by each store.
func (c *Client) Stats(ctx context.Context) Stats {
	st := c.engine.Stats(ctx)
	return Stats{
		VectorStore: StoreStats{Documents: st.VectorStore.Documents, Err: st.VectorStore.Err},
		TextIndex:   StoreStats{Documents: st.TextIndex.Documents, Err: st.TextIndex.Err},
	}
}
