package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/elikoga/textsynth/internal/version"
	"github.com/elikoga/textsynth/pkg/textsynth"
)

func newLogprobCmd(a *app) *cobra.Command {
	var contextText, continuation string
	cmd := &cobra.Command{
		Use:   "logprob",
		Short: "Score how likely a continuation follows a context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := textsynth.NewLogprobRequestBuilder()
			if cmd.Flags().Changed("context") {
				b.Context(contextText)
			}
			if cmd.Flags().Changed("continuation") {
				b.Continuation(continuation)
			}
			req, err := b.Build()
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			resp, err := client.Logprob(cmd.Context(), a.engine(), req)
			if err != nil {
				return err
			}
			if a.opts.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "logprob: %g\nis_greedy: %t\nnum_tokens: %d\ninput_tokens: %d\n",
				resp.Logprob, resp.IsGreedy, resp.NumTokens, resp.InputTokens)
			return err
		},
	}
	cmd.Flags().StringVar(&contextText, "context", "", "conditioning text")
	cmd.Flags().StringVar(&continuation, "continuation", "", "text to score")
	return cmd
}

func newTokenizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tokenize [text]",
		Short: "Show the engine's token indexes for a text (reads stdin without arguments)",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := textArg(cmd, args)
			if err != nil {
				return err
			}
			req, err := textsynth.NewTokenizeRequestBuilder().Text(text).Build()
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			resp, err := client.Tokenize(cmd.Context(), a.engine(), req)
			if err != nil {
				return err
			}
			if a.opts.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			tokens := make([]string, len(resp.Tokens))
			for i, tok := range resp.Tokens {
				tokens[i] = fmt.Sprint(tok)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(tokens, " "))
			return err
		},
	}
}

func newTranslateCmd(a *app) *cobra.Command {
	var (
		from    string
		to      string
		beams   int
		noSplit bool
	)
	cmd := &cobra.Command{
		Use:   "translate <text>...",
		Short: "Translate texts; each argument is translated independently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := textsynth.NewTranslateRequestBuilder().
				Text(args...).
				SourceLang(from).
				TargetLang(to)
			if cmd.Flags().Changed("beams") {
				b.NumBeams(beams)
			}
			if noSplit {
				b.SplitSentences(false)
			}
			req, err := b.Build()
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}

			engine := a.engine()
			if !engine.IsTranslation() {
				engine = textsynth.M2M100_1_2B
			}
			resp, err := client.Translate(cmd.Context(), engine, req)
			if err != nil {
				return err
			}
			if a.opts.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			for _, tr := range resp.Translations {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", tr.DetectedSourceLang, tr.Text); err != nil {
					return err
				}
			}
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&from, "from", textsynth.AutoDetectLanguage, "source language ISO code or auto")
	fs.StringVar(&to, "to", "en", "target language ISO code")
	fs.IntVar(&beams, "beams", 0, "number of beams (1 to 5)")
	fs.BoolVar(&noSplit, "no-split", false, "treat each text as a single sentence")
	return cmd
}

func newCreditsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "credits",
		Short: "Show the remaining account credits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			resp, err := client.Credits(cmd.Context())
			if err != nil {
				return err
			}
			if a.opts.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.Credits)
			return err
		},
	}
}

func newEnginesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List the known engines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engines := textsynth.KnownEngines()
			if a.opts.json {
				return printJSON(cmd.OutOrStdout(), engines)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tCONTEXT\tDESCRIPTION")
			for _, e := range engines {
				window := "-"
				if e.MaxContext > 0 {
					window = fmt.Sprint(e.MaxContext)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Kind, window, e.Description)
			}
			return tw.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// The version never needs configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Get())
			return err
		},
	}
}
