package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"reviewharvest-backend/lib/browser"
	"reviewharvest-backend/lib/configutil"
	"reviewharvest-backend/lib/dom"
	"reviewharvest-backend/lib/staticpage"
	"reviewharvest-backend/lib/textutil"
	"reviewharvest-backend/services/collector"
	"reviewharvest-backend/services/collector/archive"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var collectFlags struct {
	config      string
	db          string
	static      bool
	headful     bool
	target      int
	showReviews int
}

func init() {
	collectCmd.Flags().StringVar(&collectFlags.config, "config", "collector.json5", "Collection config file.")
	collectCmd.Flags().StringVar(&collectFlags.db, "db", "", "Archive finished sessions to this sqlite database.")
	collectCmd.Flags().BoolVar(&collectFlags.static, "static", false, "Fetch the page once over HTTP instead of driving a browser.")
	collectCmd.Flags().BoolVar(&collectFlags.headful, "headful", false, "Run the browser with a visible window.")
	collectCmd.Flags().IntVar(&collectFlags.target, "target", 0, "Override the per-category target count.")
	collectCmd.Flags().IntVar(&collectFlags.showReviews, "show", 10, "Print up to this many collected reviews.")
	rootCmd.AddCommand(collectCmd)
}

func readCollectionConfig() (collector.CollectionConfig, error) {
	if _, err := os.Stat(collectFlags.config); os.IsNotExist(err) {
		return collector.DefaultConfig(), nil
	}
	cfg, err := configutil.ReadConfig[collector.CollectionConfig](collectFlags.config)
	if err != nil {
		return collector.CollectionConfig{}, err
	}
	return cfg.Normalize(), nil
}

func openPage(cmd *cobra.Command) (dom.Page, func(), error) {
	if collectFlags.static {
		page, err := staticpage.New(staticpage.Options{})
		if err != nil {
			return nil, nil, err
		}
		return page, page.Close, nil
	}
	page, err := browser.New(cmd.Context(), browser.Options{Headless: !collectFlags.headful})
	if err != nil {
		return nil, nil, err
	}
	return page, page.Close, nil
}

var collectCmd = &cobra.Command{
	Use:   "collect <url>",
	Short: "Collects reviews from a feed across all three sort orders.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]

		cfg, err := readCollectionConfig()
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if collectFlags.target > 0 {
			for _, category := range collector.Categories {
				cfg.TargetCounts[category] = collectFlags.target
			}
		}

		orch, err := collector.NewOrchestrator(cfg, collector.NewDiagnosticStore(collector.DiagnosticStoreOptions{}))
		if err != nil {
			return err
		}

		page, closePage, err := openPage(cmd)
		if err != nil {
			return fmt.Errorf("open page: %w", err)
		}
		defer closePage()

		start := time.Now()
		result, err := orch.Collect(cmd.Context(), page, url, progressPrinter{})
		if err != nil {
			return fmt.Errorf("collection session failed: %w", err)
		}
		slog.Info("session finished", "elapsed", time.Since(start).Round(time.Millisecond))

		printResult(result)

		if collectFlags.db != "" {
			store, err := archive.Open(collectFlags.db)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer store.Close()
			if err := store.Save(cmd.Context(), result); err != nil {
				return fmt.Errorf("archive session: %w", err)
			}
			slog.Info("session archived", "db", collectFlags.db, "session", result.SessionID)
		}
		return nil
	},
}

type progressPrinter struct{}

func (progressPrinter) OnProgress(p collector.Progress) {
	attrs := []any{
		"phase", p.Phase,
		"collected", p.Collected,
		"percent", fmt.Sprintf("%.0f%%", p.Percent),
	}
	if p.Category != "" {
		attrs = append(attrs, "category", p.Category)
	}
	if p.EstimatedRemaining > 0 {
		attrs = append(attrs, "eta", p.EstimatedRemaining.Round(time.Second))
	}
	slog.Info("progress", attrs...)
}

func printResult(result *collector.ComprehensiveCollectionResult) {
	summary := table.NewWriter()
	summary.SetOutputMirror(os.Stdout)
	summary.AppendHeader(table.Row{"category", "collected", "stop reason"})
	for _, category := range collector.Categories {
		summary.AppendRow(table.Row{
			category,
			result.Metadata.PerCategoryCounts[category],
			result.Metadata.StopReasons[category],
		})
	}
	summary.AppendFooter(table.Row{
		"unique",
		result.Metadata.TotalUnique,
		fmt.Sprintf("%d duplicates removed", result.Metadata.DuplicatesRemoved),
	})
	summary.Render()

	if result.Metadata.Degraded {
		slog.Warn("page loaded in degraded mode", "failed_resources", result.ResourceStatus.FailedResources)
	}
	if result.Metadata.TruncatedByTimeout {
		slog.Warn("run truncated by the global collection deadline")
	}

	if collectFlags.showReviews <= 0 || len(result.UniqueReviews) == 0 {
		return
	}
	reviews := table.NewWriter()
	reviews.SetOutputMirror(os.Stdout)
	reviews.AppendHeader(table.Row{"author", "rating", "date", "from", "text"})
	for i, r := range result.UniqueReviews {
		if i >= collectFlags.showReviews {
			break
		}
		rating := "-"
		if r.Rating != nil {
			rating = fmt.Sprint(*r.Rating)
		}
		reviews.AppendRow(table.Row{
			textutil.Truncate(r.Author, 24),
			rating,
			textutil.Truncate(r.Date, 16),
			result.KeptBy[r.ID],
			textutil.Truncate(r.Text, 64),
		})
	}
	reviews.Render()
}
