package cmd

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAuditCmd(client func() *apiClient) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the knowledge update log",
	}

	var (
		kind    string
		trigger string
		limit   int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent knowledge updates, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if kind != "" {
				q.Set("type", kind)
			}
			if trigger != "" {
				q.Set("trigger", trigger)
			}
			q.Set("limit", strconv.Itoa(limit))

			var resp struct {
				Updates []auditEntry `json:"updates"`
				Stats   auditStats   `json:"stats"`
			}
			if err := client().do(cmd.Context(), http.MethodGet, "/api/v1/rag-updates", q, nil, &resp); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tTRIGGER\tQUERY")
			for _, e := range resp.Updates {
				query := ""
				if e.Query != nil {
					query = *e.Query
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format("2006-01-02 15:04"), e.UpdateType, e.TriggeredBy, query)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			s := resp.Stats
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d updates in total: %d add, %d delete, %d update, %d verify\n",
				s.Total, s.ByType["add"], s.ByType["delete"], s.ByType["update"], s.ByType["verify"])
			return nil
		},
	}
	listCmd.Flags().StringVar(&kind, "type", "", "Filter by update type (add, delete, update, verify)")
	listCmd.Flags().StringVar(&trigger, "trigger", "", "Filter by trigger (scraper, manual, scheduled)")
	listCmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of entries")

	auditCmd.AddCommand(listCmd)
	return auditCmd
}
