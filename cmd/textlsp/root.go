package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/corymhall/textlsp/config"
	"github.com/corymhall/textlsp/debug"
	"github.com/corymhall/textlsp/logger"
	"github.com/corymhall/textlsp/lsp"
	"github.com/corymhall/textlsp/rpc"
	"github.com/corymhall/textlsp/server"
	"github.com/corymhall/textlsp/workspace"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// exitError carries the process exit code requested by the client.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func execute(args []string) int {
	cmd := newRootCommand(os.Stdin, os.Stdout)
	cmd.SetArgs(args)
	err := cmd.Execute()
	var exit exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exit):
		return exit.code
	default:
		color.New(color.FgRed, color.Bold).Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
}

// newRootCommand creates the root command. Without a subcommand it serves
// LSP on in and out.
func newRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "textlsp",
		Short: "A language server for plain text workspaces",
		Long: `textlsp is a Language Server Protocol server for plain text files.

It keeps track of the documents open in the editor, publishes diagnostics
for them, and answers find-references requests by listing the matching
files in the workspace.

The server communicates via JSON-RPC over stdin/stdout.
It is typically started automatically by your editor.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			code, err := serve(ctx, cfg, in, out, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if code != 0 {
				return exitError{code}
			}
			return nil
		},
	}

	flags := rootCmd.Flags()
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("logfile", "", "also write logs to this file")
	flags.String("extension", workspace.DefaultExtension, "extension of the files returned by find references")

	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// newVersionCommand creates the version command
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			titleColor := color.New(color.FgCyan, color.Bold)
			out := cmd.OutOrStdout()

			titleColor.Fprint(out, "textlsp version: ")
			fmt.Fprintln(out, version)
			titleColor.Fprint(out, "Go version: ")
			fmt.Fprintln(out, runtime.Version())
		},
	}
}

// serve runs the server until the client sends exit, the input closes or ctx
// is done. It returns the exit code requested by the client.
func serve(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, errOut io.Writer) (int, error) {
	logger.ProgramLevel.Set(cfg.LogLevel())

	// the connection logs locally only; everything else is also sent to the editor
	var local slog.Handler = slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: logger.ProgramLevel})
	if cfg.Log.File != "" {
		h, f, err := logger.NewFileLogger(cfg.Log.File, logger.ProgramLevel)
		if err != nil {
			return 1, err
		}
		defer f.Close()
		local = h
	}

	stream := rpc.NewHeaderStream(in, out)
	conn := rpc.NewConn(stream, slog.New(local))
	client := lsp.ClientDispatcher(conn)
	log := slog.New(logger.Fanout(local, logger.NewClientHandler(client, logger.ProgramLevel)))
	slog.SetDefault(log)

	if cfg.OnChange(func(c *config.Config, err error) {
		if err != nil {
			log.Warn("ignoring invalid config change", slog.Any("error", err))
			return
		}
		logger.ProgramLevel.Set(c.LogLevel())
		log.Info("reloaded config", slog.String("file", c.FileUsed()), slog.String("level", c.LogLevel().String()))
	}) {
		log.Debug("watching config file", slog.String("file", cfg.FileUsed()))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	exitCode := -1
	srv := server.New(log, client,
		server.WithVersion(version),
		server.WithExit(func(code int) {
			exitCode = code
			cancel()
		}),
		server.WithResolverOptions(workspace.WithMatcher(workspace.ExtensionMatcher(cfg.References.Extension))),
	)

	ctx = debug.WithLogger(lsp.WithClient(ctx, client), log)
	err := conn.Run(ctx, lsp.ServerHandler(srv, rpc.MethodNotFound))
	if exitCode >= 0 {
		return exitCode, nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return 1, err
	}
	log.Info("connection closed without exit")
	return 1, nil
}
