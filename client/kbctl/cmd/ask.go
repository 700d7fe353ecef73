package cmd

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

type chatResponse struct {
	SessionID string `json:"sessionId"`
	AgentType string `json:"agentType"`
	Reply     struct {
		Answer   string   `json:"answer"`
		Source   string   `json:"source"`
		Fallback bool     `json:"fallback"`
		Facts    []fact   `json:"facts"`
		Fields   []string `json:"fields"`
	} `json:"reply"`
}

func newAskCmd(client func() *apiClient) *cobra.Command {
	var session string
	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the chatbot a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp chatResponse
			payload := map[string]string{"message": strings.Join(args, " "), "sessionId": session}
			if err := client().do(cmd.Context(), http.MethodPost, "/api/v1/chat", nil, payload, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Reply.Answer)
			fmt.Fprintln(out)
			meta := "agent: " + resp.AgentType
			if resp.Reply.Source != "" {
				meta += ", source: " + resp.Reply.Source
			}
			if resp.Reply.Fallback {
				meta += " (verification unavailable)"
			}
			fmt.Fprintf(out, "%s, session: %s\n", meta, resp.SessionID)
			for _, f := range resp.Reply.Facts {
				if f.Source != nil && *f.Source != "" {
					fmt.Fprintf(out, "  - %s\n", *f.Source)
				}
			}
			return nil
		},
	}
	askCmd.Flags().StringVar(&session, "session", "", "Session id to continue a conversation")
	return askCmd
}
