package fixtures

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"go.uber.org/multierr"
)

// Verification is the outcome of replaying the record file of one model
// directory.
type Verification struct {
	Folder  string
	Passed  int
	Failed  int
	Skipped int

	// Failures holds one error per failed or skipped record.
	Failures error

	// Err is set when the record file or the tokenizer could not be read.
	Err error
}

// OK reports whether every record of the folder was reproduced.
func (v Verification) OK() bool {
	return v.Err == nil && v.Failed == 0
}

// Folders lists the directories under root holding a record file, sorted by
// name.
func Folders(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var folders []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		if _, err := os.Stat(filepath.Join(root, e.Name(), CasesFile)); err == nil {
			folders = append(folders, e.Name())
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	slices.Sort(folders)
	return folders, nil
}

// Verify reloads the tokenizer of every folder and checks that it reproduces
// each record in the folder's record file.
func Verify(root string, folders []string, load LoadFunc) []Verification {
	var results []Verification
	for _, folder := range folders {
		dir := filepath.Join(root, folder)
		v, err := verifyDir(dir, load)
		if err != nil {
			slog.Error("verification failed", "dir", dir, "error", err)
			v.Err = err
		}

		v.Folder = folder
		results = append(results, v)
	}

	return results
}

func verifyDir(dir string, load LoadFunc) (Verification, error) {
	var v Verification

	f, err := os.Open(filepath.Join(dir, CasesFile))
	if err != nil {
		return v, err
	}
	defer f.Close()

	tk, err := load(dir)
	if err != nil {
		return v, fmt.Errorf("load tokenizer: %w", err)
	}
	defer tk.Close()

	err = ReadRecords(f, func(line int, rec Record, err error) error {
		if err != nil {
			v.Skipped++
		} else if err = verifyRecord(tk, rec); errors.Is(err, errUnknownRecord) {
			v.Skipped++
		} else if err != nil {
			v.Failed++
		} else {
			v.Passed++
			return nil
		}

		v.Failures = multierr.Append(v.Failures, fmt.Errorf("line %d: %w", line, err))
		return nil
	})

	return v, err
}

var errUnknownRecord = errors.New("unknown record type")

func verifyRecord(tk Tokenizer, rec Record) error {
	switch rec.Type {
	case TypeBasic:
		got, err := basicRecord(tk, rec.Input)
		if err != nil {
			return err
		}

		switch {
		case !slices.Equal(got.IDsRaw, nonNil(rec.IDsRaw)):
			return fmt.Errorf("basic %q: ids_raw %v, want %v", rec.Input, got.IDsRaw, rec.IDsRaw)
		case !equalTokens(got.TokensRaw, nonNil(rec.TokensRaw)):
			return fmt.Errorf("basic %q: tokens_raw %s, want %s", rec.Input, formatTokens(got.TokensRaw), formatTokens(rec.TokensRaw))
		case !slices.Equal(got.IDsFull, nonNil(rec.IDsFull)):
			return fmt.Errorf("basic %q: ids_full %v, want %v", rec.Input, got.IDsFull, rec.IDsFull)
		}
	case TypeChat:
		got, err := chatRecord(tk, Chat{Name: rec.Name, Messages: rec.Messages, AddGenerationPrompt: rec.AddGenerationPrompt})
		if err != nil {
			return err
		}

		switch {
		case got.FormattedText != rec.FormattedText:
			return fmt.Errorf("chat %s: formatted_text %q, want %q", rec.Name, got.FormattedText, rec.FormattedText)
		case !slices.Equal(got.IDs, nonNil(rec.IDs)):
			return fmt.Errorf("chat %s: ids %v, want %v", rec.Name, got.IDs, rec.IDs)
		}
	default:
		return fmt.Errorf("%w %q", errUnknownRecord, rec.Type)
	}

	return nil
}
