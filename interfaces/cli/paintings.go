package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"atelier/interfaces/http/rest/dto"
	"atelier/pkg/client"
)

const defaultQuantity = 5

func (a *app) newGenerateCommand() *cobra.Command {
	var (
		titleID  string
		quantity int
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Start a batch of paintings for a title",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := a.resolveTitle(titleID)
			if err != nil {
				return err
			}

			api := a.client()
			store := a.store()
			rec, err := client.NewReconciler(id, store)
			if err != nil {
				return err
			}
			// Baseline the reconciler so existing paintings are not counted
			// against the new batch.
			status, err := api.Status(ctx, id)
			if err != nil {
				return err
			}
			if _, err := rec.Merge(status.Paintings); err != nil {
				return err
			}
			if _, err := rec.Submit(quantity); err != nil {
				return err
			}

			resp, err := api.Generate(ctx, id, quantity)
			if err != nil {
				// Paintings created before a mid-batch failure keep their
				// placeholders until a poll returns them.
				dropped := quantity
				var apiErr *client.APIError
				if errors.As(err, &apiErr) {
					dropped -= apiErr.Created()
				}
				if dropped > 0 {
					if _, cancelErr := rec.Cancel(dropped); cancelErr != nil {
						return fmt.Errorf("%w (and dropping placeholders failed: %v)", err, cancelErr)
					}
				}
				return err
			}
			if err := store.SetLastTitle(id); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format := a.v.GetString(keyOutput); format != "table" && !watch {
				return writeStructured(out, format, resp)
			}
			fmt.Fprintln(out, resp.Message)
			if !watch {
				return nil
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			w := client.NewWatcher(api, store, interval, a.logger())
			return w.WatchReconciler(ctx, id, rec, printer(out))
		},
	}

	cmd.Flags().StringVarP(&titleID, "title", "t", "", "title id (defaults to the last title used)")
	cmd.Flags().IntVarP(&quantity, "quantity", "n", defaultQuantity, "number of paintings, 1 to 20")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "poll until the batch settles")
	cmd.Flags().DurationVar(&interval, "interval", client.DefaultPollInterval, "poll interval for --watch")
	return cmd
}

func (a *app) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [title-id]",
		Short: "Show every painting of a title",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.resolveTitle(firstArg(args))
			if err != nil {
				return err
			}
			status, err := a.client().Status(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if format := a.v.GetString(keyOutput); format != "table" {
				return writeStructured(out, format, status)
			}
			writePaintings(out, status.Paintings)
			return nil
		},
	}
}

func (a *app) newRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <painting-id>",
		Short: "Retry the image of a failed painting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client().Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.writeCommandResponse(cmd.OutOrStdout(), resp)
		},
	}
}

func (a *app) newRegenerateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <painting-id>",
		Short: "Write a safer prompt for a painting rejected by the content policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client().RegeneratePrompt(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.writeCommandResponse(cmd.OutOrStdout(), resp)
		},
	}
}

func (a *app) newWatchCommand() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch [title-id]",
		Short: "Poll a title until its in-flight paintings settle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.resolveTitle(firstArg(args))
			if err != nil {
				return err
			}
			store := a.store()
			if err := store.SetLastTitle(id); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			w := client.NewWatcher(a.client(), store, interval, a.logger())
			return w.Watch(ctx, id, printer(cmd.OutOrStdout()))
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", client.DefaultPollInterval, "poll interval")
	return cmd
}

func (a *app) writeCommandResponse(w io.Writer, resp *dto.CommandResponse) error {
	if format := a.v.GetString(keyOutput); format != "table" {
		return writeStructured(w, format, resp)
	}
	fmt.Fprintf(w, "%s: %s is %s\n", resp.Message, resp.Painting.ID, renderStatus(resp.Painting.Status))
	if resp.Idea != nil {
		fmt.Fprintf(w, "New idea: %s\n", resp.Idea.Summary)
	}
	return nil
}

func printer(w io.Writer) func(client.View) {
	return func(v client.View) {
		fmt.Fprintf(w, "\n%s  ", time.Now().Format("15:04:05"))
		writeView(w, v)
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
