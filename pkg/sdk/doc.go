// Package mathagent embeds the hybrid knowledge-point retrieval engine in a Go program.
//
// The client talks to the stores directly; no ragserver process is needed.
//
//	client, err := mathagent.New(ctx,
//	    mathagent.WithRedis("localhost:6379", ""),
//	    mathagent.WithEmbedding("http://localhost:8080/v1", "", "BAAI/bge-m3", 1024),
//	    mathagent.WithCrossEncoder("http://localhost:8081", "", "BAAI/bge-reranker-v2-m3"),
//	)
//	defer client.Close()
//
//	ids, _ := client.Ingest(ctx, []mathagent.KnowledgePoint{{
//	    Title:       "Quadratic equations",
//	    Description: "Solve ax^2 + bx + c = 0",
//	    Category:    "algebra",
//	}})
//	res, _ := client.Query(ctx, "how do I solve x^2 - 5x + 6 = 0",
//	    mathagent.Limit(3),
//	    mathagent.Weights(0.7, 0.3),
//	)
//
// A Postgres deployment uses WithPostgres; tests and demos can run fully in memory with
// WithMemory and a custom Embedder.
package mathagent
