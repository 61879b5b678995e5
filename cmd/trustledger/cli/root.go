// Package cli holds the trustledger command tree.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// ServeFunc runs the API server until ctx is cancelled.
type ServeFunc func(ctx context.Context) error

// NewRootCommand builds the command tree. Running the binary without a
// subcommand serves the API.
func NewRootCommand(serve ServeFunc, stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "trustledger",
		Short:         "Document registry with N-of-M signer verification",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.RunE = serveCmd.RunE
	root.Args = cobra.NoArgs

	root.AddCommand(serveCmd, newFingerprintCommand(), newTokenCommand(), newJobsCommand())
	return root
}

// Run executes args against the command tree and returns the process exit code.
func Run(ctx context.Context, serve ServeFunc, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(serve, stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = io.WriteString(stderr, "trustledger: "+err.Error()+"\n")
		return 1
	}
	return 0
}
