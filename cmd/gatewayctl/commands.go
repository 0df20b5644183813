package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/infra/adapters/comfy"
	"comfy-gateway/internal/usecase"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newWorkflowsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "workflows",
		Short: "List workflow templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.store.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newSubmitCmd(a *app) *cobra.Command {
	var (
		name, negative, imagePath string
		seed                      int64
		watch                     bool
		wait                      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit PROMPT",
		Short: "Patch a workflow with PROMPT and queue it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tmpl, err := a.store.Load(ctx, name)
			if err != nil {
				return err
			}
			seedFn := usecase.RandomSeed
			if seed > 0 {
				seedFn = func() int64 { return seed }
			}
			patcher := usecase.NewPromptPatcher(seedFn)
			g, err := patcher.PatchTextPrompt(tmpl, args[0], negative)
			if err != nil {
				return err
			}

			var asset string
			if imagePath != "" {
				raw, err := os.ReadFile(imagePath)
				if err != nil {
					return err
				}
				if asset, err = usecase.UploadInput(ctx, a.client, raw); err != nil {
					return err
				}
				if g, err = patcher.PatchImageReference(g, asset); err != nil {
					return err
				}
			}

			clientID := uuid.NewString()
			submit := func() (string, error) {
				return usecase.NewJobSubmitter(a.client, a.log).Submit(ctx, g, clientID, asset)
			}
			if !watch {
				id, err := submit()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			}

			wctx, cancel := context.WithTimeout(ctx, wait)
			defer cancel()
			return a.submitAndWatch(wctx, clientID, submit, cmd)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&name, "workflow", "w", "default", "workflow template name")
	f.StringVarP(&negative, "negative", "n", "", "negative prompt")
	f.StringVarP(&imagePath, "image", "i", "", "conditioning image file")
	f.Int64Var(&seed, "seed", 0, "fixed sampler seed (random when 0)")
	f.BoolVar(&watch, "watch", false, "follow execution over the websocket")
	f.DurationVar(&wait, "wait", 10*time.Minute, "give up watching after this long")
	return cmd
}

// submitAndWatch connects the event stream before queueing so no early
// event is missed. The backend greets every new socket with a status event.
func (a *app) submitAndWatch(ctx context.Context, clientID string, submit func() (string, error), cmd *cobra.Command) error {
	events := make(chan comfy.Event, 256)
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- a.listener.Listen(ctx, clientID, func(ev comfy.Event) error {
			select {
			case events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		close(events)
	}()

	select {
	case <-events:
	case err := <-listenErr:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}

	id, err := submit()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return followEvents(ctx, events, id, newBar(cmd.ErrOrStderr(), -1, "queued"))
}

func newProgressCmd(a *app) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
		wait     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "progress PROMPT_ID",
		Short: "Report completion percentage of a queued prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker := usecase.NewProgressTracker(a.client, a.log)
			if !watch {
				p, err := tracker.ComputeProgress(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%.1f\n", p)
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			bar := newBar(cmd.ErrOrStderr(), 100, args[0])
			return pollProgress(ctx, tracker.ComputeProgress, args[0], interval, bar)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&watch, "watch", false, "poll until the prompt completes")
	f.DurationVar(&interval, "interval", time.Second, "poll interval")
	f.DurationVar(&wait, "wait", 10*time.Minute, "give up after this long")
	return cmd
}

func newFetchCmd(a *app) *cobra.Command {
	var (
		outDir   string
		previews bool
	)
	cmd := &cobra.Command{
		Use:   "fetch PROMPT_ID",
		Short: "Download the first image of a finished prompt as PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := usecase.NewResultFetcher(a.client, outDir, a.log)
			path, err := f.FetchResult(cmd.Context(), args[0], previews)
			if err != nil {
				return err
			}
			if path == "" {
				return fmt.Errorf("%w: %s", domain.ErrNotReady, args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "output", "directory to write the image into")
	cmd.Flags().BoolVar(&previews, "previews", true, "accept preview (temp) images")
	return cmd
}

func newListenCmd(a *app) *cobra.Command {
	var clientID string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print raw websocket events as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clientID == "" {
				clientID = uuid.NewString()
			}
			a.log.Info().Str("client_id", clientID).Str("url", a.listener.URL(clientID)).Msg("listening")
			enc := json.NewEncoder(cmd.OutOrStdout())
			err := a.listener.Listen(cmd.Context(), clientID, func(ev comfy.Event) error {
				return enc.Encode(ev)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&clientID, "client-id", "", "client id to subscribe as (random when empty)")
	return cmd
}
