package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"analyst-sandbox/internal/config"
	"analyst-sandbox/internal/dataset"
	"analyst-sandbox/internal/extract"
	"analyst-sandbox/internal/present"
	"analyst-sandbox/internal/turn"
)

// errUnsafe makes validate exit non-zero without printing a usage error.
var errUnsafe = errors.New("script is unsafe")

type options struct {
	serverURL  string
	apiKey     string
	configPath string
	dataPath   string
	datasetID  string
	format     string
	timeout    time.Duration
	verbose    bool
	days       int
	seed       uint64
	out        string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "analyst-cli",
		Short:         "Run, validate and inspect analyst scripts",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := zerolog.WarnLevel
			if opts.verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).
				Level(level).With().Timestamp().Logger()
		},
	}

	root.PersistentFlags().StringVar(&opts.serverURL, "server", "http://localhost:8080", "Server URL")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("ANALYST_API_KEY"), "API key")
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("CONFIG_PATH"), "Config file for local commands")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")

	// Run a response locally
	runCmd := &cobra.Command{
		Use:   "run [response-file]",
		Short: "Extract, validate and execute the scripts in a response (stdin if no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd, opts, args)
		},
	}
	runCmd.Flags().StringVarP(&opts.dataPath, "data", "d", "", "CSV file bound as the dataset")
	runCmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format (text, json, html)")
	runCmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Per-script timeout (config value when 0)")
	root.AddCommand(runCmd)

	// Validate a single script
	root.AddCommand(&cobra.Command{
		Use:   "validate [script-file]",
		Short: "Validate a script without running it (stdin if no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args)
		},
	})

	// List candidates in a response
	root.AddCommand(&cobra.Command{
		Use:   "extract [response-file]",
		Short: "List the scripts found in a response (stdin if no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, opts, args)
		},
	})

	// Send a response to a server
	remoteCmd := &cobra.Command{
		Use:   "remote [response-file]",
		Short: "Process a response on a running server (stdin if no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemote(cmd, opts, args)
		},
	}
	remoteCmd.Flags().StringVar(&opts.datasetID, "dataset-id", "", "Server-side dataset id")
	remoteCmd.Flags().StringVarP(&opts.dataPath, "data", "d", "", "CSV file to upload first")
	remoteCmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format (text, json, html)")
	root.AddCommand(remoteCmd)

	// Upload a dataset
	root.AddCommand(&cobra.Command{
		Use:   "upload <csv-file>",
		Short: "Upload a CSV dataset to a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := uploadDataset(cmd.Context(), &http.Client{Timeout: 30 * time.Second}, opts, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	})

	// Health check
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealth(cmd, opts)
		},
	})

	// Generate a sample dataset
	genCmd := &cobra.Command{
		Use:   "gen-data",
		Short: "Write a deterministic sample sales dataset as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenData(cmd, opts)
		},
	}
	genCmd.Flags().IntVar(&opts.days, "days", 365, "Number of days")
	genCmd.Flags().Uint64Var(&opts.seed, "seed", 42, "Random seed")
	genCmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output file (stdout if empty)")
	root.AddCommand(genCmd)

	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// readInput reads the named file, or stdin when no file is given or it is "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return string(data), nil
}

func runLocal(cmd *cobra.Command, opts *options, args []string) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}
	response, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.timeout > 0 {
		cfg.Sandbox.Timeout = opts.timeout
		cfg.Sandbox.MaxTimeout = max(cfg.Sandbox.MaxTimeout, opts.timeout)
	}

	var ds *dataset.Dataset
	if opts.dataPath != "" {
		f, err := os.Open(opts.dataPath)
		if err != nil {
			return fmt.Errorf("opening dataset: %w", err)
		}
		ds, err = dataset.LoadCSV(opts.dataPath, f)
		f.Close()
		if err != nil {
			return err
		}
	}

	processor, runner, err := turn.Build(cfg, nil, nil)
	if err != nil {
		return err
	}
	defer runner.Close()

	payload := present.BuildPayload(processor.Process(cmd.Context(), response, ds))
	return writePayload(cmd.OutOrStdout(), payload, opts.format)
}

func runValidate(cmd *cobra.Command, opts *options, args []string) error {
	code, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	v := turn.NewValidator(cfg)
	verdict := v.Validate(code)

	if err := printJSON(cmd.OutOrStdout(), map[string]any{
		"safe":       verdict.Safe,
		"rule":       verdict.Rule,
		"reason":     verdict.Reason,
		"detections": v.Scan(code),
	}); err != nil {
		return err
	}
	if !verdict.Safe {
		return errUnsafe
	}
	return nil
}

func runExtract(cmd *cobra.Command, opts *options, args []string) error {
	response, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	candidates := extract.New(cfg.Extractor.Languages).Extract(response)
	if candidates == nil {
		candidates = []extract.Candidate{}
	}
	return printJSON(cmd.OutOrStdout(), candidates)
}

func runRemote(cmd *cobra.Command, opts *options, args []string) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}
	response, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 70 * time.Second}

	datasetID := opts.datasetID
	if opts.dataPath != "" {
		info, err := uploadDataset(cmd.Context(), client, opts, opts.dataPath)
		if err != nil {
			return err
		}
		datasetID = info.ID
	}

	format := opts.format
	if format == "text" {
		format = "json"
	}
	body, _ := json.Marshal(map[string]string{
		"response":   response,
		"dataset_id": datasetID,
		"format":     format,
	})

	out := cmd.OutOrStdout()
	if opts.format == "html" {
		var resp struct {
			HTML string `json:"html"`
		}
		if err := doJSON(cmd.Context(), client, opts, http.MethodPost, "/v1/turns", "application/json", body, &resp); err != nil {
			return err
		}
		_, err := io.WriteString(out, resp.HTML)
		return err
	}

	var payload present.Payload
	if err := doJSON(cmd.Context(), client, opts, http.MethodPost, "/v1/turns", "application/json", body, &payload); err != nil {
		return err
	}
	return writePayload(out, payload, opts.format)
}

func uploadDataset(ctx context.Context, client *http.Client, opts *options, path string) (*dataset.Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	var info dataset.Info
	endpoint := "/v1/datasets?name=" + url.QueryEscape(filepath.Base(path))
	if err := doJSON(ctx, client, opts, http.MethodPost, endpoint, "text/csv", data, &info); err != nil {
		return nil, fmt.Errorf("uploading dataset: %w", err)
	}
	log.Info().Str("dataset_id", info.ID).Int("rows", info.Rows).Msg("dataset uploaded")
	return &info, nil
}

func runHealth(cmd *cobra.Command, opts *options) error {
	client := &http.Client{Timeout: 10 * time.Second}
	var result map[string]any
	if err := doJSON(cmd.Context(), client, opts, http.MethodGet, "/health", "", nil, &result); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runGenData(cmd *cobra.Command, opts *options) error {
	if opts.days < 1 {
		return fmt.Errorf("--days must be >= 1")
	}
	df := dataset.GenerateSales(opts.days, opts.seed)

	var w io.Writer = cmd.OutOrStdout()
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := df.WriteCSV(w); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	if opts.out != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", df.Nrow(), opts.out)
	}
	return nil
}

func checkFormat(format string) error {
	switch format {
	case "text", "json", "html":
		return nil
	}
	return fmt.Errorf("unknown format %q, use text, json or html", format)
}

func writePayload(w io.Writer, p present.Payload, format string) error {
	switch format {
	case "json":
		return printJSON(w, p)
	case "html":
		html, err := present.RenderHTML(p)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, html)
		return err
	default:
		_, err := io.WriteString(w, present.RenderText(p))
		return err
	}
}

func printJSON(w io.Writer, v any) error {
	formatted, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(formatted))
	return err
}

// doJSON sends a request to the server and decodes a JSON reply into out.
// Non-2xx replies become errors carrying the server's message.
func doJSON(ctx context.Context, client *http.Client, opts *options, method, path, contentType string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, opts.serverURL+path, rd)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if opts.apiKey != "" {
		req.Header.Set("X-API-Key", opts.apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("server returned %s", resp.Status)
		}
		return fmt.Errorf("server returned %s: %s (%s)", resp.Status, apiErr.Error, apiErr.Code)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
