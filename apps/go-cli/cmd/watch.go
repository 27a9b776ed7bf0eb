package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/skydoves/firebase-android-ktx/database"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Replay the fixture and print the events observed at path",
	Long: `Seed an in-memory database from --fixture, subscribe to path and replay the
fixture steps, printing every event the subscription receives.

Modes:
  value     every value of the node (default)
  once      the current value only
  children  child added, changed and removed events`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := watchOptions{}
		if len(args) == 1 {
			opts.path = args[0]
		}
		opts.mode, _ = cmd.Flags().GetString("mode")
		opts.child, _ = cmd.Flags().GetString("child")
		opts.decoder, _ = cmd.Flags().GetString("decoder")

		fx, err := LoadFixture(fixturePath)
		if err != nil {
			return err
		}
		return runWatch(cmd.Context(), cmd.OutOrStdout(), fx, opts, slog.Default())
	},
}

func init() {
	watchCmd.Flags().String("mode", "value", "What to observe: value, once or children")
	watchCmd.Flags().String("child", "", "Decode this child path of each snapshot instead of the snapshot itself")
	watchCmd.Flags().String("decoder", "json", "Value decoder: json, strict or lenient")
	rootCmd.AddCommand(watchCmd)
}

type watchOptions struct {
	path    string
	mode    string
	child   string
	decoder string
}

type record = map[string]any

func decoderFor(name string) (database.Decoder[record], error) {
	switch name {
	case "", "json":
		return database.JSONDecoder[record](), nil
	case "strict":
		return database.StrictJSONDecoder[record](), nil
	case "lenient":
		return database.LenientJSONDecoder[record](), nil
	}
	return nil, fmt.Errorf("unknown decoder %q", name)
}

func runWatch(ctx context.Context, w io.Writer, fx *Fixture, opts watchOptions, logger *slog.Logger) error {
	decode, err := decoderFor(opts.decoder)
	if err != nil {
		return err
	}
	path := database.Root
	if opts.child != "" {
		path = database.ChildPath(opts.child)
	}

	r, err := openFixtureDB(fx, logger)
	if err != nil {
		return err
	}
	defer r.db.Close()

	ref := r.db.Reference(opts.path)
	streamOpts := []database.StreamOption{database.WithLogger(logger)}

	switch opts.mode {
	case "", "value":
		return watchStream(ctx, w, r, fx.Steps, database.Observe(ref, path, decode, streamOpts...), valueRow)
	case "once":
		return watchStream(ctx, w, r, fx.Steps, database.ObserveOnce(ref, path, decode, streamOpts...), valueRow)
	case "children":
		return watchStream(ctx, w, r, fx.Steps, database.ObserveChildren(ref, path, decode, streamOpts...), childRow)
	}
	return fmt.Errorf("unknown mode %q", opts.mode)
}

// watchStream prints the events of stream while the fixture steps are
// replayed. It returns once every resulting notification has been printed.
func watchStream[E any](ctx context.Context, w io.Writer, r *replayer, steps []Step, stream *database.Stream[E], row func(E) record) error {
	sub := stream.Subscribe(ctx)
	defer sub.Close()

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for e := range sub.Events() {
			printEvent(w, row(e))
		}
	}()

	if err := r.replay(steps); err != nil {
		return err
	}
	if err := r.db.Flush(ctx); err != nil {
		return err
	}
	sub.Close()
	<-printed

	if err := sub.Err(); err != nil {
		return fmt.Errorf("subscription ended: %w", err)
	}
	return nil
}

func valueRow(res database.Result[record]) record {
	if !res.Ok() {
		return record{"event": "cancelled", "error": res.Err.Error()}
	}
	var v any
	if res.Value != nil {
		v = *res.Value
	}
	return record{"event": "value", "value": v}
}

func childRow(state database.ChildState[record]) record {
	switch s := state.(type) {
	case database.ChildAdded[record]:
		return childRecord("child_added", s.Value, s.PreviousChildName)
	case database.ChildChanged[record]:
		return childRecord("child_changed", s.Value, s.PreviousChildName)
	case database.ChildMoved[record]:
		return childRecord("child_moved", s.Value, s.PreviousChildName)
	case database.ChildRemoved[record]:
		return childRecord("child_removed", s.Value, nil)
	case database.ChildCanceled[record]:
		return record{"event": "cancelled", "error": s.Err.Error()}
	}
	return record{"event": "unknown"}
}

func childRecord(event string, value *record, previous *string) record {
	row := record{"event": event}
	if value != nil {
		row["value"] = *value
	} else {
		row["value"] = nil
	}
	if previous != nil {
		row["previous"] = *previous
	}
	return row
}
