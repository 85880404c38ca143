package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/isscope/isscope/config"
	"github.com/isscope/isscope/internal/analyze"
	"github.com/isscope/isscope/internal/export"
	"github.com/isscope/isscope/internal/gh"
	"github.com/isscope/isscope/internal/history"
	"github.com/isscope/isscope/internal/scan"
)

var (
	// CLI flags
	configFlag    string
	maxIssuesFlag int
	modelFlag     string
	outputFlag    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "isscope",
		Short: "Find doable open issues in a GitHub repository",
		Long: `isscope fetches a repository's open issues, has an LLM judge how
doable each one is for an outside contributor, and ranks the results.

Snapshots are cached in a local SQLite database so repeat scans of the
same repository skip work that is still fresh.

Configuration:
  ~/.isscope/config.yaml, overridable via ISSCOPE_* environment
  variables (ISSCOPE_GITHUB_TOKEN, ISSCOPE_OPENROUTER_KEY, ...).`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config file (default ~/.isscope/config.yaml)")
	rootCmd.PersistentFlags().IntVar(&maxIssuesFlag, "max-issues", 0, "Cap on issues per scan (overrides config)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "OpenRouter model (overrides config)")

	scanCmd := &cobra.Command{
		Use:   "scan <owner/repo>",
		Short: "Scan a repository and print ranked issues",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan,
	}

	exportCmd := &cobra.Command{
		Use:   "export <owner/repo>",
		Short: "Scan a repository and write a markdown report",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	exportCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output file (default <owner>-<repo>-issues.md)")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the snapshot cache",
	}
	historyCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List cached repositories",
			Args:  cobra.NoArgs,
			RunE:  runHistoryList,
		},
		&cobra.Command{
			Use:   "show <owner/repo>",
			Short: "Show a cached snapshot's ranked issues",
			Args:  cobra.ExactArgs(1),
			RunE:  runHistoryShow,
		},
		&cobra.Command{
			Use:   "delete <owner/repo>",
			Short: "Delete one repository's snapshot",
			Args:  cobra.ExactArgs(1),
			RunE:  runHistoryDelete,
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete every snapshot",
			Args:  cobra.NoArgs,
			RunE:  runHistoryClear,
		},
	)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFlag
			if path == "" {
				path = config.DefaultPath()
			}
			if err := config.CreateDefault(path); err != nil {
				return err
			}
			fmt.Printf("Config file at %s\n", path)
			return nil
		},
	})

	rootCmd.AddCommand(scanCmd, exportCmd, historyCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig applies flag overrides on top of the layered config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	if maxIssuesFlag > 0 {
		cfg.MaxIssues = maxIssuesFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// runPipeline wires the clients together and executes one scan. The
// returned context cancels on SIGINT/SIGTERM.
func runPipeline(cmd *cobra.Command, repoStr string) (*scan.Report, error) {
	owner, repo, err := scan.ParseRepoString(repoStr)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	ghClient := gh.New(cfg.GitHubToken)
	aiClient, err := analyze.NewClient(cfg.OpenRouterKey, cfg.Model, "")
	if err != nil {
		return nil, fmt.Errorf("%w (set ISSCOPE_OPENROUTER_KEY or openrouter_key in the config file)", err)
	}

	store, err := history.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scanner := scan.New(ghClient, aiClient, store, logger, cfg.MaxIssues)
	return scanner.Run(ctx, owner, repo, func() bool { return ctx.Err() != nil })
}

func runScan(cmd *cobra.Command, args []string) error {
	report, err := runPipeline(cmd, args[0])
	if err != nil {
		return err
	}
	printRanked(report)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	report, err := runPipeline(cmd, args[0])
	if err != nil {
		return err
	}

	owner, repo, _ := scan.ParseRepoString(args[0])
	path := outputFlag
	if path == "" {
		path = fmt.Sprintf("%s-%s-issues.md", owner, repo)
	}
	content := export.Markdown(report, time.Now())
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Printf("Report written to %s\n", path)
	return nil
}

func printRanked(report *scan.Report) {
	ranked := report.Ranked()
	fmt.Printf("\n%s: %d issues (%d analyzed, %d from cache)\n\n",
		report.Repo, len(ranked), report.Analyzed, report.Reused)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tISSUE\tSCORE\tSTATUS\tCOMPLEXITY\tTITLE")
	for i, ri := range ranked {
		status, complexity := "-", "-"
		if ri.Analysis != nil {
			status = export.StatusLabel(ri.Analysis.Status)
			complexity = export.ComplexityLabel(ri.Analysis.Complexity)
		}
		title := ri.Title
		if r := []rune(title); len(r) > 60 {
			title = string(r[:60])
		}
		fmt.Fprintf(w, "%d\t#%d\t%d/100\t%s\t%s\t%s\n", i+1, ri.Number, ri.Score, status, complexity, title)
	}
	w.Flush()
}

func openStore(cmd *cobra.Command) (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.DatabasePath)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	infos, err := store.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("History is empty.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPOSITORY\tISSUES\tFETCHED\tISSUES/DAY\tCOMMENTS/DAY")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%d\t%s\t%.1f\t%.1f\n",
			info.Key, info.IssueCount, info.FetchedAt.Local().Format("2006-01-02 15:04"),
			info.IssueActivity.PerDay, info.CommentActivity.PerDay)
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	owner, repo, err := scan.ParseRepoString(args[0])
	if err != nil {
		return err
	}
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := store.Get(owner, repo)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("no snapshot for %s", history.Key(owner, repo))
	}

	report := &scan.Report{
		Repo:      snap.Key,
		Issues:    snap.Issues,
		Analyses:  snap.Analyses,
		FetchedAt: snap.FetchedAt,
		FromCache: true,
		Reused:    len(snap.Analyses),
	}
	printRanked(report)
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	owner, repo, err := scan.ParseRepoString(args[0])
	if err != nil {
		return err
	}
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(owner, repo); err != nil {
		return err
	}
	fmt.Printf("Deleted snapshot for %s\n", history.Key(owner, repo))
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Println("History cleared.")
	return nil
}
