package cli

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func (a *App) newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <image>",
		Short: "Upload an image into the session store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, cancel := a.withTimeout(cmd.Context())
			defer cancel()

			name, mt, data, err := readImage(args[0])
			if err != nil {
				return err
			}

			f, err := c.Upload(ctx, name, mt, data)
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}
			_, _ = fmt.Fprintf(a.out, "Stored %s (sha256 %s)\n", f.Name, f.Hash)
			return nil
		},
	}
}

// readImage returns the file's base name, its MIME type guessed from the
// extension, and its bytes.
func readImage(path string) (string, string, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", nil, fmt.Errorf("read image: %w", err)
	}
	name := filepath.Base(path)
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return name, mt, data, nil
}
