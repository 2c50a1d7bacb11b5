package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"call-screening/internal/config"
	"call-screening/internal/screening"

	"github.com/spf13/cobra"
)

func newClassifyCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "classify [transcript]",
		Short: "Classify a transcript with the configured model, without touching any call",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcript, err := readTranscript(cmd.InOrStdin(), file, args)
			if err != nil {
				return err
			}
			cfg, err := config.LoadClassifier()
			if err != nil {
				return err
			}
			c := screening.NewLLMClassifier(screening.LLMConfig{
				BaseURL:      cfg.BaseURL,
				APIKey:       cfg.APIKey,
				Model:        cfg.Model,
				Timeout:      cfg.Timeout,
				SummaryWords: cfg.SummaryWords,
			})
			res, err := c.Classify(cmd.Context(), transcript)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the transcript from a file ('-' for stdin)")
	return cmd
}

func readTranscript(stdin io.Reader, file string, args []string) (string, error) {
	var raw []byte
	var err error
	switch {
	case len(args) == 1:
		raw = []byte(args[0])
	case file == "-":
		raw, err = io.ReadAll(stdin)
	case file != "":
		raw, err = os.ReadFile(file)
	default:
		return "", fmt.Errorf("pass a transcript argument or --file")
	}
	if err != nil {
		return "", err
	}
	t := strings.TrimSpace(string(raw))
	if t == "" {
		return "", screening.ErrEmptyTranscript
	}
	return t, nil
}
