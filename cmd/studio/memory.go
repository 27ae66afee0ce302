package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/easeaico/studio-memory/internal/memory"
	"github.com/spf13/cobra"
)

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Store and search assistant memories",
	}

	cmd.AddCommand(newMemoryStoreCmd(), newMemorySearchCmd())
	return cmd
}

func newMemoryStoreCmd() *cobra.Command {
	var (
		userID     string
		memoryType string
		global     bool
		noEmbed    bool
		meta       []string
	)

	cmd := &cobra.Command{
		Use:   "store <content>",
		Short: "Store a memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := parseMetadata(meta)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			obs := newObserver(cmd, cfg)

			ctx := cmd.Context()
			svc, _, cleanup, err := newMemoryService(ctx, cfg, obs)
			if err != nil {
				return err
			}
			defer cleanup()

			m, err := svc.StoreMemory(ctx, memory.StoreMemoryRequest{
				UserID:     userID,
				Content:    strings.Join(args, " "),
				MemoryType: memory.MemoryType(memoryType),
				Metadata:   metadata,
			}, memory.StoreMemoryOptions{
				AnonymizeForGlobal: global,
				GenerateEmbedding:  !noEmbed && cfg.APIKey != "",
			})
			if err != nil {
				return err
			}

			return printJSON(cmd, m)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "owner of the memory")
	cmd.Flags().StringVarP(&memoryType, "type", "t", "", "memory type (semantic, episodic, procedural, preference, project)")
	cmd.Flags().BoolVar(&global, "global", false, "store an anonymized copy visible to all users")
	cmd.Flags().BoolVar(&noEmbed, "no-embed", false, "skip embedding generation")
	cmd.Flags().StringSliceVarP(&meta, "meta", "m", nil, "metadata as key=value (repeatable)")

	return cmd
}

func newMemorySearchCmd() *cobra.Command {
	var (
		userID        string
		memoryType    string
		limit         int
		minSimilarity float64
		excludeGlobal bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories by keyword and meaning",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			obs := newObserver(cmd, cfg)

			ctx := cmd.Context()
			svc, _, cleanup, err := newMemoryService(ctx, cfg, obs)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := svc.EnhancedSearch(ctx, memory.SearchRequest{
				UserID:        userID,
				Query:         strings.Join(args, " "),
				MemoryType:    memory.MemoryType(memoryType),
				Limit:         limit,
				MinSimilarity: minSimilarity,
				ExcludeGlobal: excludeGlobal,
			})
			if err != nil {
				return err
			}

			return printJSON(cmd, res)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "restrict to this user's memories")
	cmd.Flags().StringVarP(&memoryType, "type", "t", "", "restrict to a memory type")
	cmd.Flags().IntVarP(&limit, "limit", "n", memory.DefaultSearchLimit, "maximum results per match kind")
	cmd.Flags().Float64Var(&minSimilarity, "min-similarity", 0, "drop semantic matches below this score")
	cmd.Flags().BoolVar(&excludeGlobal, "exclude-global", false, "ignore memories shared by all users")

	return cmd
}

// parseMetadata turns key=value pairs into a metadata map.
func parseMetadata(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", p)
		}
		meta[strings.TrimSpace(k)] = v
	}
	return meta, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
