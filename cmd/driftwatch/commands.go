package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func validateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Audit the canonical-id manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}

			snapshot := a.registry.Snapshot()
			out, err := json.MarshalIndent(snapshot, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			fmt.Fprintf(os.Stderr, "manifest ok: %d services, %d components, %d apis, %d docs\n",
				len(snapshot.Services), len(snapshot.Components), len(snapshot.APIs), len(snapshot.Docs))
			return nil
		},
	}
}

func indexCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "index <chat|code|docs> <glob>",
		Short: "Index JSON record files into one domain store",
		Long: `Index reads JSON-array record files matching the glob (doublestar
patterns like records/**/*.json work), maps each record to an event,
validates its entity ids against the manifest, embeds the text, and
upserts into the domain store. Records with unknown ids are skipped
individually; the batch continues.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain, pattern := args[0], args[1]

			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			pipeline, err := a.pipeline(domain)
			if err != nil {
				return err
			}

			report, err := pipeline.Run(cmd.Context(), pattern)
			if err != nil {
				return err
			}
			fmt.Printf("indexed %d, skipped %d (validation), %d (embedding)\n",
				report.Indexed, report.SkippedValidation, report.SkippedEmbedding)
			return nil
		},
	}
}

func askCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a doc-drift question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			reasoner, template, err := a.reasoner()
			if err != nil {
				return err
			}
			defer template.Close()

			answer := reasoner.AnswerQuestion(cmd.Context(), question, "ask")
			out, err := json.MarshalIndent(answer, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			if answer.Error != nil {
				fmt.Fprintf(os.Stderr, "answer degraded: %s\n", *answer.Error)
			}
			return nil
		},
	}
}

func promptCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "prompt <question>",
		Short: "Render the reasoning prompt without calling the model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			reasoner, template, err := a.reasoner()
			if err != nil {
				return err
			}
			defer template.Close()

			prompt, err := reasoner.RenderPrompt(cmd.Context(), question, "prompt")
			if err != nil {
				return err
			}
			fmt.Println(prompt)
			return nil
		},
	}
}
