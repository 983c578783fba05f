package fixtures

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
)

// ErrNoRecords is reported for a model whose every corpus entry failed.
var ErrNoRecords = errors.New("no records generated")

// FolderName is the directory name used for model: the last segment of its
// identifier.
func FolderName(model string) string {
	return model[strings.LastIndex(model, "/")+1:]
}

// ProgressResponse reports the state of the model being processed.
type ProgressResponse struct {
	Model  string
	Index  int
	Total  int
	Status string
}

// Result is the outcome of processing one model.
type Result struct {
	Model  string
	Dir    string
	Source Source
	Counts

	// Err is set when no records could be generated for the model.
	Err error
}

type Report struct {
	Results []Result
}

// Failed returns the models that produced no records.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err combines the errors of every failed model.
func (r *Report) Err() error {
	var err error
	for _, res := range r.Failed() {
		err = multierr.Append(err, fmt.Errorf("%s: %w", res.Model, res.Err))
	}
	return err
}

// Runner processes models one at a time: acquire the assets, reload the
// tokenizer from disk, then write the records.
type Runner struct {
	Root     string
	Acquirer *Acquirer
	Load     LoadFunc
	Texts    []string
	Chats    []Chat
}

// Run processes models in order. Failures are recorded in the report and do
// not stop the run; only cancellation of ctx does, in which case the partial
// report is returned with the context error.
func (r *Runner) Run(ctx context.Context, models []string, fn func(ProgressResponse)) (*Report, error) {
	report := &Report{}
	for i, model := range models {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		progress := func(status string) {
			if fn != nil {
				fn(ProgressResponse{Model: model, Index: i + 1, Total: len(models), Status: status})
			}
		}

		res := r.process(ctx, model, progress)
		if res.Err != nil {
			slog.Error("model failed", "model", model, "error", res.Err)
			progress("failed")
		} else {
			progress("done")
		}

		report.Results = append(report.Results, res)

		if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
			return report, res.Err
		}
	}

	return report, nil
}

func (r *Runner) process(ctx context.Context, model string, progress func(string)) Result {
	res := Result{Model: model, Source: SourceNone}

	folder := FolderName(model)
	if folder == "" {
		res.Err = fmt.Errorf("invalid model identifier %q", model)
		return res
	}

	res.Dir = filepath.Join(r.Root, folder)

	progress("acquiring")
	source, err := r.Acquirer.Acquire(ctx, model, res.Dir)
	res.Source = source
	if err != nil {
		res.Err = err
		return res
	}

	// records always come from the files on disk, never from the
	// acquisition step
	progress("generating")
	tk, err := r.Load(res.Dir)
	if err != nil {
		res.Err = fmt.Errorf("load tokenizer: %w", err)
		return res
	}
	defer tk.Close()

	res.Counts, err = GenerateFile(res.Dir, tk, r.Texts, r.Chats)
	if err != nil {
		res.Err = fmt.Errorf("write test cases: %w", err)
		return res
	}

	if res.Basic+res.Chat == 0 && len(r.Texts)+len(r.Chats) > 0 {
		res.Err = ErrNoRecords
		if res.Failures != nil {
			res.Err = fmt.Errorf("%w: %w", ErrNoRecords, res.Failures)
		}
	}

	return res
}
