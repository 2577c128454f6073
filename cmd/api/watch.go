package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"moscowboard/api/internal/feed"
)

func newWatchCmd() *cobra.Command {
	var (
		server string
		token  string
		topic  string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live feed of a running server",
		Long: `Connect to /api/live and print one line per feed message.

Examples:
  moscow-api watch --token $TOKEN
  moscow-api watch --server wss://board.example --token $TOKEN --topic changelog`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !feed.ValidTopic(topic) {
				return fmt.Errorf("unknown topic %q", topic)
			}
			target, err := liveURL(server, token)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchFeed(ctx, target, topic, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&server, "server", "ws://localhost:8787", "server base url")
	cmd.Flags().StringVar(&token, "token", os.Getenv("MOSCOW_TOKEN"), "access token (defaults to $MOSCOW_TOKEN)")
	cmd.Flags().StringVar(&topic, "topic", feed.TopicAll, "functionalities, changelog or *")
	return cmd
}

func liveURL(server, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("an access token is required")
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/api/live"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

func watchFeed(ctx context.Context, target, topic string, out io.Writer) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial live feed: %w", err)
	}
	defer conn.Close()

	subscribe, _ := json.Marshal(feed.WSMessage{Type: "subscribe", Topic: topic})
	if err := conn.WriteMessage(websocket.TextMessage, subscribe); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read live feed: %w", err)
		}
		fmt.Fprintln(out, describeMessage(data))
	}
}

// describeMessage renders a feed message as one line.
func describeMessage(data []byte) string {
	msg := gjson.ParseBytes(data)
	kind := msg.Get("type").String()
	switch kind {
	case "snapshot":
		return fmt.Sprintf("snapshot %s: %d items", msg.Get("topic").String(), msg.Get("data.#").Int())
	case "subscribed", "pong":
		return strings.TrimSpace(kind + " " + msg.Get("topic").String())
	case "error":
		return "error: " + msg.Get("error").String()
	case "event":
	default:
		return string(data)
	}

	event := msg.Get("event").String()
	switch feed.EventType(event) {
	case feed.EventChangeLogAppended:
		return fmt.Sprintf("%s %s %s %q %s->%s",
			event,
			msg.Get("data.username").String(),
			msg.Get("data.changeType").String(),
			msg.Get("data.functionalityText").String(),
			orDash(msg.Get("data.fromPriority").String()),
			msg.Get("data.toPriority").String())
	case feed.EventFunctionalityCreated, feed.EventFunctionalityMoved:
		return fmt.Sprintf("%s %s [%s] %q",
			event,
			msg.Get("data.id").String(),
			msg.Get("data.priority").String(),
			msg.Get("data.text").String())
	}
	return string(data)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
