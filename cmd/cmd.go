package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/ollama/tokfixtures/envconfig"
	"github.com/ollama/tokfixtures/fixtures"
	"github.com/ollama/tokfixtures/hub"
	"github.com/ollama/tokfixtures/logutil"
	"github.com/ollama/tokfixtures/progress"
	"github.com/ollama/tokfixtures/tokenizer"
)

// loadTokenizer reloads a model's tokenizer from the files in dir.
var loadTokenizer fixtures.LoadFunc = func(dir string) (fixtures.Tokenizer, error) {
	tk, err := tokenizer.Load(dir, tokenizer.Options{Backend: envconfig.Backend})
	if err != nil {
		return nil, err
	}
	return tk, nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func GenerateHandler(cmd *cobra.Command, args []string) error {
	root, err := cmd.Flags().GetString("root")
	if err != nil {
		return err
	}

	strict, err := cmd.Flags().GetBool("strict")
	if err != nil {
		return err
	}

	models := fixtures.Models
	if len(args) > 0 {
		models = args
	}

	fetcher, err := hub.FromEnvironment()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}

	runner := &fixtures.Runner{
		Root:     root,
		Acquirer: &fixtures.Acquirer{Fetcher: fetcher, Revision: envconfig.Revision},
		Load:     loadTokenizer,
		Texts:    fixtures.Texts,
		Chats:    fixtures.Chats,
	}

	slog.Info("generating test cases", "models", len(models), "root", root, "hub", envconfig.Hub, "backend", envconfig.Backend)

	p := progress.NewProgress(os.Stderr)
	counter := progress.NewCounter("models", len(models))
	p.Add(counter)

	var current int
	var spinner *progress.Spinner
	fn := func(resp fixtures.ProgressResponse) {
		if resp.Index != current {
			current = resp.Index
			spinner = progress.NewSpinner("")
			p.Add(spinner)
		}

		spinner.SetMessage(fmt.Sprintf("%s %s", resp.Status, resp.Model))

		switch resp.Status {
		case "done", "failed":
			spinner.Stop()
			counter.Set(resp.Index)
		}
	}

	report, err := runner.Run(cmd.Context(), models, fn)
	p.Stop()

	renderReport(os.Stdout, report)

	if err != nil {
		return err
	}

	if failed := report.Failed(); len(failed) > 0 {
		slog.Warn("some models failed", "failed", len(failed), "total", len(report.Results))
		if strict {
			return fmt.Errorf("%d of %d models failed", len(failed), len(report.Results))
		}
	}

	return nil
}

func renderReport(w io.Writer, report *fixtures.Report) {
	table := newTable(w, "MODEL", "FOLDER", "SOURCE", "BASIC", "CHAT", "ERRORS")
	for _, res := range report.Results {
		chat := strconv.Itoa(res.Chat)
		if res.ChatSkipped {
			chat = "no template"
		}

		var status string
		switch {
		case res.Err != nil:
			status = logutil.Truncate(res.Err.Error(), 60)
		case res.Failures != nil:
			status = fmt.Sprintf("%d entries skipped", len(multierr.Errors(res.Failures)))
		}

		table.Append([]string{res.Model, fixtures.FolderName(res.Model), string(res.Source), strconv.Itoa(res.Basic), chat, status})
	}
	table.Render()
}

func writeExampleConfig(w io.Writer) error {
	for _, path := range envconfig.ConfigPaths() {
		if _, err := fmt.Fprintf(w, "# searched: %s\n", path); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, envconfig.ExampleFile)
	return err
}

func appendEnvDocs(cmd *cobra.Command) {
	vars := envconfig.AsMap()

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	usage := "\nEnvironment Variables:\n\n"
	for _, k := range keys {
		usage += fmt.Sprintf("    %-22s %s\n", vars[k].Name, vars[k].Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + usage)
}

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tokfixtures [model...]",
		Short: "Download tokenizers and generate tokenization test cases",
		Long: `Download the tokenizer of every model, converting legacy tokenizers when no
tokenizer.json is published, then write the encodings of a fixed corpus to
test_cases.jsonl in one folder per model.`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			slog.SetDefault(logutil.NewLogger(os.Stderr, logutil.Level(envconfig.Debug)))
		},
		Args: cobra.ArbitraryArgs,
		RunE: GenerateHandler,
	}

	rootCmd.PersistentFlags().String("root", envconfig.Root, "Directory receiving one folder per model")
	rootCmd.Flags().Bool("strict", false, "Exit with an error when any model failed")

	cobra.EnableCommandSorting = false

	generateCmd := &cobra.Command{
		Use:   "generate [model...]",
		Short: "Generate test cases (default command)",
		RunE:  GenerateHandler,
	}
	generateCmd.Flags().Bool("strict", false, "Exit with an error when any model failed")

	verifyCmd := &cobra.Command{
		Use:   "verify [folder...]",
		Short: "Check that the tokenizers on disk reproduce their test cases",
		RunE:  VerifyHandler,
	}

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the models and text corpus",
		Args:    cobra.NoArgs,
		RunE:    ListHandler,
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print an example config.toml and where it is searched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeExampleConfig(cmd.OutOrStdout())
		},
	}

	// subcommands inherit the root usage template
	appendEnvDocs(rootCmd)

	rootCmd.AddCommand(generateCmd, verifyCmd, listCmd, configCmd)

	return rootCmd
}
