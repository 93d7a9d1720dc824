package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/app"
	"github.com/codevoyager1984/math-agent/internal/domain/document"
	"github.com/codevoyager1984/math-agent/internal/domain/search/mode"
	"github.com/codevoyager1984/math-agent/internal/domain/search/request"
	"github.com/codevoyager1984/math-agent/internal/domain/search/score"
	chiTransport "github.com/codevoyager1984/math-agent/internal/transport/chi"
	healthuc "github.com/codevoyager1984/math-agent/internal/usecase/health"
	"github.com/codevoyager1984/math-agent/internal/version"
)

// errUnhealthy makes `ragserver health` exit non-zero.
var errUnhealthy = errors.New("engine is not healthy")

func newIngestCmd(flags *globalFlags) *cobra.Command {
	var upsert bool
	cmd := &cobra.Command{
		Use:   "ingest <file.json>",
		Short: "Load knowledge points from a JSON file",
		Long: `Load knowledge points from a JSON file holding either {"knowledge_points": [...]}
or a bare array. Entries without an id get a random one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readKnowledgePoints(args[0])
			if err != nil {
				return err
			}
			docs, err := chiTransport.DocumentsFromDTO(items, true)
			if err != nil {
				return err //nolint:wrapcheck // already names the offending entry
			}

			return withApp(cmd.Context(), flags, func(a *app.App, logger *zap.Logger) error {
				write := a.Ingest
				if upsert {
					write = a.Upsert
				}
				if err := write(cmd.Context(), docs); err != nil {
					return fmt.Errorf("write knowledge points: %w", err)
				}
				logger.Info("Knowledge points written", zap.Int("count", len(docs)), zap.Bool("upsert", upsert))
				return printJSON(chiTransport.WriteResponse{Success: true, IDs: document.IDs(docs)})
			})
		},
	}
	cmd.Flags().BoolVar(&upsert, "upsert", false, "replace knowledge points that already exist")
	return cmd
}

func readKnowledgePoints(path string) ([]chiTransport.KnowledgePointDTO, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []chiTransport.KnowledgePointDTO
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return items, nil
	}

	var req chiTransport.KnowledgePointsRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return req.KnowledgePoints, nil
}

func newQueryCmd(flags *globalFlags) *cobra.Command {
	var (
		n            int
		searchMode   string
		vectorWeight float64
		textWeight   float64
		noRerank     bool
		rerankMethod string
		rerankTopK   int
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a hybrid query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := request.Params{
				Query:        args[0],
				N:            n,
				Mode:         mode.Mode(searchMode),
				RerankMethod: score.Method(rerankMethod),
				RerankTopK:   rerankTopK,
			}
			if cmd.Flags().Changed("vector-weight") {
				p.VectorWeight = &vectorWeight
			}
			if cmd.Flags().Changed("text-weight") {
				p.TextWeight = &textWeight
			}
			if noRerank {
				off := false
				p.EnableRerank = &off
			}

			return withApp(cmd.Context(), flags, func(a *app.App, _ *zap.Logger) error {
				req, err := a.NewRequest(p)
				if err != nil {
					return err //nolint:wrapcheck // validation message is the output
				}
				resp, err := a.Query(cmd.Context(), &req)
				if err != nil {
					return fmt.Errorf("query: %w", err)
				}
				return printJSON(chiTransport.QueryResponseFromResult(req.Query(), &resp))
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n-results", "n", 0, "number of results (default from config)")
	cmd.Flags().StringVar(&searchMode, "mode", "", "hybrid, vector or text (default hybrid)")
	cmd.Flags().Float64Var(&vectorWeight, "vector-weight", request.DefaultVectorWeight, "fusion weight of the vector pass")
	cmd.Flags().Float64Var(&textWeight, "text-weight", request.DefaultTextWeight, "fusion weight of the text pass")
	cmd.Flags().BoolVar(&noRerank, "no-rerank", false, "skip the rerank stage")
	cmd.Flags().StringVar(&rerankMethod, "rerank-method", "", "cross_encoder or llm (default from config)")
	cmd.Flags().IntVar(&rerankTopK, "rerank-top-k", 0, "candidates kept by the reranker (default n)")
	return cmd
}

func newGetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch one knowledge point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app.App, _ *zap.Logger) error {
				res, err := a.GetByID(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("get: %w", err)
				}
				return printJSON(chiTransport.RankedResultFromResult(&res))
			})
		},
	}
}

func newDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete knowledge points from both stores",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(a *app.App, _ *zap.Logger) error {
				if err := a.Delete(cmd.Context(), args); err != nil {
					return fmt.Errorf("delete: %w", err)
				}
				return printJSON(chiTransport.WriteResponse{Success: true, IDs: args})
			})
		},
	}
}

func newClearCmd(flags *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every knowledge point from both stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear without --yes")
			}
			return withApp(cmd.Context(), flags, func(a *app.App, _ *zap.Logger) error {
				if err := a.ClearAll(cmd.Context()); err != nil {
					return fmt.Errorf("clear: %w", err)
				}
				return printJSON(chiTransport.WriteResponse{Success: true})
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion of all knowledge points")
	return cmd
}

func newHealthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check stores, embedding provider and rerank model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), flags, func(a *app.App, _ *zap.Logger) error {
				report := a.Health(cmd.Context())
				if err := printJSON(chiTransport.HealthFromReport(&report)); err != nil {
					return err
				}
				if report.Status != healthuc.Healthy {
					return errUnhealthy
				}
				return nil
			})
		},
	}
}

func newStatsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count documents per store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), flags, func(a *app.App, _ *zap.Logger) error {
				st := a.Stats(cmd.Context())
				return printJSON(chiTransport.StatsFromResult(&st))
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return printJSON(version.Get())
		},
	}
}
