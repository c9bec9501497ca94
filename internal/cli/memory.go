package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelv2/claude-cortex-core/internal/engine"
)

var (
	rememberCategory   string
	rememberImportance string
	rememberTags       []string
	rememberProject    string
)

var rememberCmd = &cobra.Command{
	Use:   "remember <title> <content>",
	Short: "Store a new memory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, closer, err := openEngine()
		if err != nil {
			return err
		}
		defer closer()

		id, err := eng.AddMemory(engine.AddRequest{
			Title:      args[0],
			Content:    args[1],
			Category:   rememberCategory,
			Importance: rememberImportance,
			Tags:       rememberTags,
			Project:    rememberProject,
		})
		if err != nil {
			return err
		}
		fmt.Printf("stored memory %d\n", id)
		return nil
	},
}

var (
	recallLimit   int
	recallProject string
	recallMode    string
)

var recallCmd = &cobra.Command{
	Use:   "recall [query]",
	Short: "Search memories by relevance",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, closer, err := openEngine()
		if err != nil {
			return err
		}
		defer closer()

		query := ""
		if len(args) > 0 {
			query = args[0]
		}
		results, err := eng.SearchMemories(engine.SearchRequest{
			Query:         query,
			Project:       recallProject,
			IncludeGlobal: true,
			Limit:         recallLimit,
			Mode:          recallMode,
		})
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%6.3f  #%-4d [%s/%s] %s\n",
				r.Relevance, r.Memory.ID, r.Memory.Type, r.Memory.Category, r.Memory.Title)
		}
		return nil
	},
}

var (
	forgetIDs      []int64
	forgetCategory string
	forgetOlder    int
	forgetDryRun   bool
	forgetConfirm  bool
)

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete memories matching filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, closer, err := openEngine()
		if err != nil {
			return err
		}
		defer closer()

		result, err := eng.Forget(engine.ForgetRequest{
			IDs:           forgetIDs,
			Category:      forgetCategory,
			OlderThanDays: forgetOlder,
			DryRun:        forgetDryRun,
			Confirm:       forgetConfirm,
		})
		if err != nil {
			return err
		}
		if forgetDryRun {
			fmt.Printf("would delete %d memories\n", len(result.Preview))
			return nil
		}
		fmt.Printf("deleted %d memories\n", result.Deleted)
		return nil
	},
}

var (
	consolidateDryRun bool
	consolidateForce  bool
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run a maintenance pass: promote, merge, evict, decay",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, closer, err := openEngine()
		if err != nil {
			return err
		}
		defer closer()

		result, err := eng.Consolidate(context.Background(), engine.ConsolidateOptions{
			DryRun: consolidateDryRun,
			Force:  consolidateForce,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory counts and store size",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, closer, err := openEngine()
		if err != nil {
			return err
		}
		defer closer()

		stats, err := eng.Stats()
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var exportProject string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export memories as a JSON array to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, closer, err := openEngine()
		if err != nil {
			return err
		}
		defer closer()

		memories, err := eng.Export(exportProject)
		if err != nil {
			return err
		}
		return printJSON(memories)
	},
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import memories from a JSON array (file or stdin)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("read import data: %w", err)
		}

		eng, _, closer, err := openEngine()
		if err != nil {
			return err
		}
		defer closer()

		count, err := eng.Import(data)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d memories\n", count)
		return nil
	},
}

var (
	linkRelationship string
	linkStrength     float64
)

var linkCmd = &cobra.Command{
	Use:   "link <source-id> <target-id>",
	Short: "Create or strengthen a link between two memories",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, target, err := parseIDPair(args[0], args[1])
		if err != nil {
			return err
		}

		eng, _, closer, err := openEngine()
		if err != nil {
			return err
		}
		defer closer()

		if err := eng.LinkMemories(source, target, linkRelationship, linkStrength); err != nil {
			return err
		}
		fmt.Printf("linked %d -> %d (%s)\n", source, target, linkRelationship)
		return nil
	},
}

var relatedCmd = &cobra.Command{
	Use:   "related <id>",
	Short: "Show memories linked to the given one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("parse id %q: %w", args[0], err)
		}

		eng, _, closer, err := openEngine()
		if err != nil {
			return err
		}
		defer closer()

		related, err := eng.GetRelated(id)
		if err != nil {
			return err
		}
		for rel, group := range related {
			fmt.Printf("%s:\n", rel)
			for _, n := range group {
				fmt.Printf("  %.2f  #%-4d %s\n", n.Strength, n.Memory.ID, n.Memory.Title)
			}
		}
		return nil
	},
}

func parseIDPair(a, b string) (int64, int64, error) {
	var source, target int64
	if _, err := fmt.Sscanf(a, "%d", &source); err != nil {
		return 0, 0, fmt.Errorf("parse source id %q: %w", a, err)
	}
	if _, err := fmt.Sscanf(b, "%d", &target); err != nil {
		return 0, 0, fmt.Errorf("parse target id %q: %w", b, err)
	}
	return source, target, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rememberCmd.Flags().StringVar(&rememberCategory, "category", "", "memory category")
	rememberCmd.Flags().StringVar(&rememberImportance, "importance", "", "importance hint: high, medium, low")
	rememberCmd.Flags().StringSliceVar(&rememberTags, "tag", nil, "tags (repeatable)")
	rememberCmd.Flags().StringVar(&rememberProject, "project", "", "project scope")

	recallCmd.Flags().IntVar(&recallLimit, "limit", 10, "max results")
	recallCmd.Flags().StringVar(&recallProject, "project", "", "project scope")
	recallCmd.Flags().StringVar(&recallMode, "mode", "", "recall mode: query, recent, important")

	forgetCmd.Flags().Int64SliceVar(&forgetIDs, "id", nil, "memory ids (repeatable)")
	forgetCmd.Flags().StringVar(&forgetCategory, "category", "", "category filter")
	forgetCmd.Flags().IntVar(&forgetOlder, "older-than", 0, "only memories older than N days")
	forgetCmd.Flags().BoolVar(&forgetDryRun, "dry-run", false, "preview without deleting")
	forgetCmd.Flags().BoolVar(&forgetConfirm, "confirm", false, "confirm bulk deletion")

	consolidateCmd.Flags().BoolVar(&consolidateDryRun, "dry-run", false, "preview without mutating")
	consolidateCmd.Flags().BoolVar(&consolidateForce, "force", false, "skip the 1h re-entry guard")

	exportCmd.Flags().StringVar(&exportProject, "project", "", "project to export")

	linkCmd.Flags().StringVar(&linkRelationship, "relationship", "related", "references, extends, contradicts, related")
	linkCmd.Flags().Float64Var(&linkStrength, "strength", 0.5, "edge strength in [0,1]")
}
