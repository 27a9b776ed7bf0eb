package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/skydoves/firebase-android-ktx/database"
	"github.com/skydoves/firebase-android-ktx/database/memdb"
	"github.com/skydoves/firebase-android-ktx/lifecycle"
	"github.com/skydoves/firebase-android-ktx/messaging"
	"github.com/spf13/cobra"
)

// inboxPath is where received push messages are stored.
const inboxPath = "messages"

var listenCmd = &cobra.Command{
	Use:   "listen <hub-url>",
	Short: "Receive push messages from a SignalR hub (Ctrl+C to stop)",
	Long: `Host a push messaging service on a SignalR hub. Received messages are stored
under /messages in an in-memory database seeded from --fixture, and every
change to /messages is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accessToken, _ := cmd.Flags().GetString("access-token")
		if envToken := os.Getenv("FIREBASE_KTX_ACCESS_TOKEN"); envToken != "" && accessToken == "" {
			accessToken = envToken
		}

		fx, err := LoadFixture(fixturePath)
		if err != nil {
			return err
		}
		logger := slog.Default()
		r, err := openFixtureDB(fx, logger)
		if err != nil {
			return err
		}
		defer r.db.Close()

		var streamOpts []database.StreamOption
		if metricsAddr, _ := cmd.Flags().GetString("metrics-addr"); metricsAddr != "" {
			m, server := startMetrics(metricsAddr, prometheus.NewRegistry(), logger)
			defer server.Close()
			streamOpts = append(streamOpts, database.WithMetrics(m))
		}

		out := &lockedWriter{w: cmd.OutOrStdout()}
		svc := newListenService(r.db, out, logger)
		wait := watchInbox(svc.Lifecycle().Context(), r.db, out, logger, streamOpts...)
		defer wait()

		var hubOpts []messaging.HubOption
		hubOpts = append(hubOpts, messaging.WithHubLogger(logger))
		if accessToken != "" {
			hubOpts = append(hubOpts, messaging.WithAccessToken(func(context.Context) (string, error) {
				return accessToken, nil
			}))
		}
		src := messaging.NewHubSource(args[0], hubOpts...)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		fmt.Fprintln(os.Stderr, "Listening for push messages (Ctrl+C to stop) ...")
		if err := messaging.Run(ctx, svc, src); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "\nShutting down ...")
		return nil
	},
}

func init() {
	listenCmd.Flags().String("access-token", "", "Bearer token for hub negotiation (or FIREBASE_KTX_ACCESS_TOKEN)")
	listenCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	rootCmd.AddCommand(listenCmd)
}

// lockedWriter serialises writes from the service callbacks and the inbox
// printer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// newListenService creates a messaging service that stores every received
// message in db.
func newListenService(db *memdb.DB, out io.Writer, logger *slog.Logger) *messaging.Service {
	svc := messaging.NewService(messaging.WithLogger(logger), messaging.WithName("listen"))
	svc.Lifecycle().AddObserver(lifecycle.LoggingObserver(logger, "listen"))

	svc.OnNewToken(func(token string) {
		fmt.Fprintf(os.Stderr, "Push token: %s\n", token)
	})
	svc.OnMessageReceived(func(msg messaging.RemoteMessage) {
		if err := storeMessage(db, msg); err != nil {
			logger.Error("Storing push message", "messageId", msg.MessageID, "error", err)
		}
	})
	svc.OnDeletedMessages(func() {
		printEvent(out, record{"event": "deleted_messages"})
	})
	return svc
}

// storeMessage writes msg under the inbox, keyed by its message ID.
func storeMessage(db *memdb.DB, msg messaging.RemoteMessage) error {
	key := strings.ReplaceAll(msg.MessageID, "/", "_")
	return db.Reference(inboxPath).Child(key).Set(msg)
}

// watchInbox prints child events of the inbox until ctx is done. The
// returned function waits for the printer to finish.
func watchInbox(ctx context.Context, db *memdb.DB, out io.Writer, logger *slog.Logger, opts ...database.StreamOption) (wait func()) {
	opts = append([]database.StreamOption{database.WithLogger(logger)}, opts...)
	stream := database.ObserveChildren(db.Reference(inboxPath), database.Root,
		database.JSONDecoder[record](), opts...)
	sub := stream.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for state := range sub.Events() {
			printEvent(out, childRow(state))
		}
		if err := sub.Err(); err != nil {
			logger.Error("Inbox subscription ended", "error", err)
		}
	}()
	return func() {
		sub.Close()
		<-done
	}
}
