package cli

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/sha3"
)

// Fingerprint returns the 0x-prefixed Keccak-256 digest of r, the form the
// registry expects for a document fingerprint.
func Fingerprint(r io.Reader) (string, error) {
	h := sha3.NewLegacyKeccak256()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

func newFingerprintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint [file...]",
		Short: "Print the Keccak-256 fingerprint of files (or stdin with -)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				sum, err := fingerprintPath(cmd.InOrStdin(), path)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, path)
			}
			return nil
		},
	}
}

func fingerprintPath(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		return Fingerprint(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Fingerprint(f)
}
