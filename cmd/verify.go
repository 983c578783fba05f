package cmd

import (
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/ollama/tokfixtures/fixtures"
	"github.com/ollama/tokfixtures/logutil"
)

func VerifyHandler(cmd *cobra.Command, args []string) error {
	root, err := cmd.Flags().GetString("root")
	if err != nil {
		return err
	}

	folders, err := fixtures.Folders(root)
	if err != nil {
		return err
	}

	if len(args) > 0 {
		for _, arg := range args {
			if !slices.Contains(folders, arg) {
				return unknownFolderError(arg, folders)
			}
		}
		folders = args
	}

	if len(folders) == 0 {
		return fmt.Errorf("no %s found in %s", fixtures.CasesFile, root)
	}

	results := fixtures.Verify(root, folders, loadTokenizer)
	renderVerifications(os.Stdout, results)

	var failed int
	for _, v := range results {
		if !v.OK() {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d folders failed verification", failed, len(results))
	}

	return nil
}

func unknownFolderError(name string, folders []string) error {
	if s := closest(name, folders); s != "" {
		return fmt.Errorf("no test cases for %q, did you mean %q?", name, s)
	}
	return fmt.Errorf("no test cases for %q", name)
}

// closest returns the candidate with the smallest edit distance to name,
// ignoring case.
func closest(name string, candidates []string) string {
	var best string
	score := math.MaxInt
	for _, c := range candidates {
		if s := levenshtein.ComputeDistance(strings.ToLower(name), strings.ToLower(c)); s < score {
			score = s
			best = c
		}
	}

	if score > len(name)/2 {
		return ""
	}

	return best
}

func renderVerifications(w io.Writer, results []fixtures.Verification) {
	table := newTable(w, "FOLDER", "PASSED", "FAILED", "SKIPPED", "FIRST ERROR")
	for _, v := range results {
		var first string
		switch {
		case v.Err != nil:
			first = v.Err.Error()
		case v.Failures != nil:
			first = multierr.Errors(v.Failures)[0].Error()
		}

		table.Append([]string{
			v.Folder,
			strconv.Itoa(v.Passed),
			strconv.Itoa(v.Failed),
			strconv.Itoa(v.Skipped),
			logutil.Truncate(first, 80),
		})
	}
	table.Render()
}
