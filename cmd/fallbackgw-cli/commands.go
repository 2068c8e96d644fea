package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	llmfallback "github.com/ferro-labs/llm-fallback"
	"github.com/ferro-labs/llm-fallback/internal/logging"
	"github.com/ferro-labs/llm-fallback/internal/version"
	"github.com/ferro-labs/llm-fallback/providers"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "fallbackgw-cli",
		Short:         "Fallback gateway command line tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default: environment)")

	load := func() (llmfallback.Config, error) {
		return loadConfig(configFlag)
	}

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newProvidersCommand(load))
	rootCmd.AddCommand(newGenerateCommand(load))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func loadConfig(path string) (llmfallback.Config, error) {
	if strings.TrimSpace(path) == "" {
		cfg := llmfallback.ConfigFromEnv(os.Getenv)
		return cfg, llmfallback.ValidateConfig(cfg)
	}
	cfg, err := llmfallback.LoadConfig(path)
	if err != nil {
		return llmfallback.Config{}, err
	}
	return *cfg, nil
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a gateway configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := llmfallback.LoadConfig(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "✓ Config is valid")
			fmt.Fprintf(out, "  Providers: %s\n", strings.Join(providerNames(cfg.Providers), ", "))
			if cfg.Cache.Disabled {
				fmt.Fprintln(out, "  Cache:     disabled")
			}
			return nil
		},
	}
}

func newProvidersCommand(load func() (llmfallback.Config, error)) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List configured providers in fallback order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !check {
				for i, name := range providerNames(cfg.Providers) {
					fmt.Fprintf(out, "%d. %s\n", i+1, name)
				}
				return nil
			}

			gw, err := llmfallback.New(cfg, llmfallback.WithLogger(logging.Discard()))
			if err != nil {
				return err
			}
			defer func() { _ = gw.Close() }()
			if err := gw.Init(cmd.Context()); err != nil {
				return err
			}
			printStats(out, gw.Stats())
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Probe every provider and show its health")
	return cmd
}

func newGenerateCommand(load func() (llmfallback.Config, error)) *cobra.Command {
	var (
		prompt      string
		noCache     bool
		asJSON      bool
		verbose     bool
		maxTokens   int
		temperature float64
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Send a prompt through the fallback chain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				prompt = args[0]
			}
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("a prompt is required (argument or --prompt)")
			}
			cfg, err := load()
			if err != nil {
				return err
			}

			logger := logging.Discard()
			if verbose {
				logger = logging.Logger
			}
			gw, err := llmfallback.New(cfg, llmfallback.WithLogger(logger))
			if err != nil {
				return err
			}
			defer func() { _ = gw.Close() }()

			opts := providers.Options{SkipCache: noCache}
			if cmd.Flags().Changed("max-tokens") {
				opts.MaxTokens = providers.Int(maxTokens)
			}
			if cmd.Flags().Changed("temperature") {
				opts.Temperature = providers.Float(temperature)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			res, err := gw.GenerateResult(ctx, prompt, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintln(out, res.Text)
			fmt.Fprintf(cmd.ErrOrStderr(), "(provider=%s attempts=%d latency=%s)\n",
				res.Provider, res.Attempts, res.Latency.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt text")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the response cache")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log gateway events")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Maximum output tokens")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Sampling temperature")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall deadline for the call")
	return cmd
}

func newVersionCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(version.Get())
			}
			fmt.Fprintf(out, "fallbackgw-cli %s\n", version.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func providerNames(pcs []providers.Config) []string {
	names := make([]string, 0, len(pcs))
	for _, pc := range pcs {
		name := pc.Name
		if name == "" {
			name = strings.ToLower(pc.Type)
		}
		if pc.Type != "" && !strings.EqualFold(pc.Type, name) {
			name += " (" + strings.ToLower(pc.Type) + ")"
		}
		names = append(names, name)
	}
	return names
}

func printStats(out io.Writer, stats []llmfallback.ProviderStats) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Priority", "Name", "Healthy", "Last error"})
	for _, s := range stats {
		lastErr := s.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		tw.AppendRow(table.Row{s.Priority, s.Name, s.Healthy, lastErr})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	tw.Render()
}
