package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newKBCmd(client func() *apiClient) *cobra.Command {
	kbCmd := &cobra.Command{
		Use:   "kb",
		Short: "Browse and manage the knowledge base",
	}
	kbCmd.AddCommand(newSearchCmd(client), newStatsCmd(client), newSeedCmd(client), newScrapeCmd(client))
	return kbCmd
}

func newSearchCmd(client func() *apiClient) *cobra.Command {
	var (
		limit    int
		category string
		asJSON   bool
	)
	searchCmd := &cobra.Command{
		Use:   "search [terms]",
		Short: "Search facts by keywords",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("search", strings.Join(args, " "))
			q.Set("limit", strconv.Itoa(limit))
			if category != "" {
				q.Set("category", category)
			}
			var resp struct {
				Facts []fact `json:"facts"`
			}
			if err := client().do(cmd.Context(), http.MethodGet, "/api/v1/knowledge", q, nil, &resp); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), resp.Facts)
			}
			out := cmd.OutOrStdout()
			if len(resp.Facts) == 0 {
				fmt.Fprintln(out, "No matching facts.")
				return nil
			}
			for _, f := range resp.Facts {
				verified := "never"
				if f.LastVerified != nil {
					verified = f.LastVerified.Format("2006-01-02")
				}
				fmt.Fprintf(out, "%s [%s] conf=%.2f verified=%s\n  Q: %s\n  A: %s\n", f.ID, f.Category, f.Confidence, verified, f.Question, f.Answer)
			}
			return nil
		},
	}
	searchCmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of facts")
	searchCmd.Flags().StringVar(&category, "category", "", "Only list facts of this category")
	searchCmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return searchCmd
}

func newStatsCmd(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show fact counts per category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var stats knowledgeStats
			if err := client().do(cmd.Context(), http.MethodGet, "/api/v1/knowledge/stats", nil, nil, &stats); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CATEGORY\tCOUNT\tAVG CONFIDENCE")
			for _, c := range stats.Categories {
				fmt.Fprintf(w, "%s\t%d\t%.2f\n", c.Category, c.Count, c.AverageConfidence)
			}
			fmt.Fprintf(w, "total\t%d\t\n", stats.Total)
			return w.Flush()
		},
	}
}

func newSeedCmd(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file.yaml]",
		Short: "Import facts from a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := loadSeed(args[0])
			if err != nil {
				return err
			}
			if len(file.Facts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Seed file is empty.")
				return nil
			}
			var rep seedReport
			if err := client().do(cmd.Context(), http.MethodPost, "/api/v1/knowledge/bulk", nil, file, &rep); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d facts, %d duplicates skipped.\n", rep.Inserted, rep.Duplicates)
			return nil
		},
	}
}

func newScrapeCmd(client func() *apiClient) *cobra.Command {
	var save bool
	scrapeCmd := &cobra.Command{
		Use:   "scrape [query]",
		Short: "Fetch fresh results from the official website",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"query": strings.Join(args, " "), "autoSave": save}
			var res scrapeResult
			if err := client().do(cmd.Context(), http.MethodPost, "/api/v1/scraper", nil, body, &res); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, it := range res.Results {
				fmt.Fprintf(out, "- %s", it.Title)
				if it.Date != "" {
					fmt.Fprintf(out, " (%s)", it.Date)
				}
				fmt.Fprintf(out, "\n  %s\n", it.URL)
			}
			fmt.Fprintf(out, "%d results.", res.Count)
			if res.SavedToKB {
				fmt.Fprintf(out, " Saved %d new, %d already known.", res.NewArticles, res.ExistingArticles)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	scrapeCmd.Flags().BoolVar(&save, "save", false, "Save new results to the knowledge base")
	return scrapeCmd
}

func loadSeed(path string) (seedFile, error) {
	var file seedFile
	raw, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("read seed file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return file, fmt.Errorf("decode seed file: %w", err)
	}
	return file, nil
}
