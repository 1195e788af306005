package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ragworkbench/internal/app"
	"ragworkbench/internal/session"
	"ragworkbench/internal/view"
)

func newAskCmd(opts *rootOptions) *cobra.Command {
	var persona string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question through the configured answer backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			asker, err := app.NewAsker(cfg.LLM)
			if err != nil {
				return err
			}
			s := session.New(asker, session.WithLogger(log))
			if persona != "" {
				p, err := session.ParsePersona(persona)
				if err != nil {
					return err
				}
				if err := s.SetPersona(p); err != nil {
					return err
				}
			}

			turns, err := s.SubmitQuestion(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(turns) == 0 {
				return fmt.Errorf("question is empty")
			}

			answer := turns[len(turns)-1]
			m := s.Metrics()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, answer.Content)
			if len(answer.CitationIDs) > 0 {
				fmt.Fprintf(out, "citations: [%s]\n", strings.Join(answer.CitationIDs, "] ["))
			}
			fmt.Fprintf(out, "latency: %s  cost: %s\n", view.FormatLatency(m.LatencyMs, "-"), view.FormatCost(m.CostUSD, "-"))
			return nil
		},
	}
	cmd.Flags().StringVar(&persona, "persona", "", "sarcastic or technical")
	return cmd
}
