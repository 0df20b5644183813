// Command gatewayctl drives a generation backend directly with the gateway's
// workflow templates: list, submit, watch, fetch and tail raw events.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"comfy-gateway/internal/config"
	"comfy-gateway/internal/infra/adapters/comfy"
	"comfy-gateway/internal/infra/logging"
	"comfy-gateway/internal/infra/workflow"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type app struct {
	server      string
	workflowDir string
	timeout     time.Duration
	logLevel    string

	log      *zerolog.Logger
	client   *comfy.Client
	listener *comfy.Listener
	store    *workflow.Store
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (a *app) init() error {
	a.log = logging.NewWithWriter(os.Stderr, config.LogConfig{Level: a.logLevel, Format: "console"}, false)

	var err error
	a.client, err = comfy.NewClient(config.ComfyConfig{ServerURL: a.server, Timeout: a.timeout}, a.log)
	if err != nil {
		return err
	}
	a.listener, err = comfy.NewListener(a.server, a.log)
	if err != nil {
		return err
	}
	a.store = workflow.NewStore(a.workflowDir, a.log)
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "gatewayctl",
		Short:         "Operator CLI for the generation backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&a.server, "server", envOr("COMFYUI_SERVER_URL", "127.0.0.1:8188"), "backend address (host:port or URL)")
	f.StringVar(&a.workflowDir, "workflows", envOr("WORKFLOW_DIR", "workflows"), "workflow template directory")
	f.DurationVar(&a.timeout, "http-timeout", 30*time.Second, "per-request HTTP timeout")
	f.StringVar(&a.logLevel, "log-level", "warn", "trace|debug|info|warn|error")

	root.AddCommand(
		newWorkflowsCmd(a),
		newSubmitCmd(a),
		newProgressCmd(a),
		newFetchCmd(a),
		newListenCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
