package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/elikoga/textsynth/pkg/textsynth"
)

// samplingFlags are the generation controls shared by complete and chat.
type samplingFlags struct {
	maxTokens   int
	n           int
	temperature float64
	topK        int
	topP        float64
	stop        []string
	stream      bool
}

func (f *samplingFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVarP(&f.maxTokens, "max-tokens", "m", 0, "maximum number of generated tokens")
	fs.IntVarP(&f.n, "n", "n", 0, "number of completions (1 to 16)")
	fs.Float64VarP(&f.temperature, "temperature", "t", 0, "sampling temperature")
	fs.IntVar(&f.topK, "top-k", 0, "top-k sampling (1 to 1000)")
	fs.Float64Var(&f.topP, "top-p", 0, "nucleus sampling (0 to 1)")
	fs.StringArrayVar(&f.stop, "stop", nil, "stop string, repeatable up to 5 times")
	fs.BoolVarP(&f.stream, "stream", "s", false, "print text as it is generated")
}

// samplingSetters is the subset of builder setters the flags drive.
type samplingSetters[B any] interface {
	MaxTokens(int) B
	N(int) B
	Temperature(float64) B
	TopK(int) B
	TopP(float64) B
	Stop(...string) B
}

// applySampling sets only the flags given on the command line so the API
// defaults apply to the rest.
func applySampling[B samplingSetters[B]](cmd *cobra.Command, f *samplingFlags, b B) {
	fs := cmd.Flags()
	if fs.Changed("max-tokens") {
		b.MaxTokens(f.maxTokens)
	}
	if fs.Changed("n") {
		b.N(f.n)
	}
	if fs.Changed("temperature") {
		b.Temperature(f.temperature)
	}
	if fs.Changed("top-k") {
		b.TopK(f.topK)
	}
	if fs.Changed("top-p") {
		b.TopP(f.topP)
	}
	if fs.Changed("stop") {
		b.Stop(f.stop...)
	}
}

func newCompleteCmd(a *app) *cobra.Command {
	var flags samplingFlags
	cmd := &cobra.Command{
		Use:   "complete [prompt]",
		Short: "Complete a prompt (reads stdin without arguments)",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := textArg(cmd, args)
			if err != nil {
				return err
			}
			b := textsynth.NewCompletionRequestBuilder().Prompt(prompt)
			applySampling(cmd, &flags, b)
			req, err := b.Build()
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.stream {
				stream, err := client.StreamCompletions(cmd.Context(), a.engine(), req)
				if err != nil {
					return err
				}
				return a.printStream(out, stream)
			}
			resp, err := client.Completions(cmd.Context(), a.engine(), req)
			if err != nil {
				return err
			}
			return a.printCompletion(out, resp)
		},
	}
	flags.register(cmd)
	return cmd
}

func newChatCmd(a *app) *cobra.Command {
	var flags samplingFlags
	var system string
	cmd := &cobra.Command{
		Use:   "chat <message>...",
		Short: "Continue a conversation; messages alternate user and assistant, ending with the user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := textsynth.NewChatRequestBuilder().Messages(args...)
			if cmd.Flags().Changed("system") {
				b.System(system)
			}
			applySampling(cmd, &flags, b)
			req, err := b.Build()
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.stream {
				stream, err := client.StreamChat(cmd.Context(), a.engine(), req)
				if err != nil {
					return err
				}
				return a.printStream(out, stream)
			}
			resp, err := client.Chat(cmd.Context(), a.engine(), req)
			if err != nil {
				return err
			}
			return a.printCompletion(out, resp)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&system, "system", "", "system prompt")
	return cmd
}

func (a *app) printCompletion(w io.Writer, resp *textsynth.CompletionResponse) error {
	if a.opts.json {
		return printJSON(w, resp)
	}
	for i, text := range resp.Text {
		if len(resp.Text) > 1 {
			if _, err := fmt.Fprintf(w, "--- %d ---\n", i+1); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, text); err != nil {
			return err
		}
	}
	a.logger.Info("completion finished",
		"finish_reason", resp.FinishReason,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)
	return nil
}

// printStream writes the first completion's text as it arrives, or one JSON
// object per chunk with --json.
func (a *app) printStream(w io.Writer, stream *textsynth.Stream[textsynth.CompletionChunk]) error {
	defer stream.Close()

	var last textsynth.CompletionChunk
	for chunk, err := range stream.All() {
		if err != nil {
			return err
		}
		last = chunk
		if a.opts.json {
			if err := printJSON(w, chunk); err != nil {
				return err
			}
			continue
		}
		if _, err := io.WriteString(w, chunk.Joined()); err != nil {
			return err
		}
	}
	if !a.opts.json {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	a.logger.Info("completion finished",
		"finish_reason", last.FinishReason,
		"input_tokens", last.InputTokens,
		"output_tokens", last.OutputTokens,
	)
	return nil
}
