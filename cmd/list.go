package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ollama/tokfixtures/envconfig"
	"github.com/ollama/tokfixtures/fixtures"
)

func ListHandler(cmd *cobra.Command, args []string) error {
	root, err := cmd.Flags().GetString("root")
	if err != nil {
		return err
	}

	return list(os.Stdout, root)
}

func list(w io.Writer, root string) error {
	generated, err := fixtures.Folders(root)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	models := newTable(w, "MODEL", "FOLDER", "GENERATED")
	for _, model := range fixtures.Models {
		folder := fixtures.FolderName(model)

		var done string
		if slices.Contains(generated, folder) {
			done = "yes"
		}

		models.Append([]string{model, folder, done})
	}
	models.Render()

	fmt.Fprintf(w, "\n%d models, %d texts, %d chats\n\n", len(fixtures.Models), len(fixtures.Texts), len(fixtures.Chats))

	vals := envconfig.Values()
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	env := newTable(w, "VARIABLE", "VALUE")
	for _, k := range keys {
		env.Append([]string{k, vals[k]})
	}
	env.Render()

	return nil
}
