// Command video-call-client is a terminal client for the call relay.
// It connects to the signaling endpoint, shows who is online and can
// place and answer calls, negotiating a WebRTC transport per peer.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/galkyn/video-calling-app/internal/config"
	"github.com/galkyn/video-calling-app/internal/peer"
	"github.com/galkyn/video-calling-app/internal/signaling"
)

func main() {
	serverURL := flag.String("server", "ws://127.0.0.1:8080/ws", "signaling websocket URL")
	callPeer := flag.String("call", "", "peer ID to call immediately after connecting")
	stunURLs := flag.String("stun", config.DefaultSTUNURL, "comma-separated STUN server URLs")
	logLevel := flag.String("log-level", "warn", "minimum log level: debug, info, warn, error")
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	if err := run(*serverURL, *callPeer, splitList(*stunURLs), logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(serverURL, callPeer string, stunURLs []string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var client *peer.Client
	factory := peer.NewPionFactory(stunURLs, logger, peer.EngineEvents{
		OnCandidate: func(peerID string, c signaling.Candidate) {
			client.SendCandidate(peerID, c)
		},
		OnStateChange: func(peerID string, state webrtc.PeerConnectionState) {
			client.HandleConnectionState(peerID, state)
		},
	})

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, err := peer.Dial(dialCtx, serverURL, factory, logger)
	if err != nil {
		return err
	}
	client = c
	defer client.Close()

	select {
	case <-client.Ready():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		return errors.New("relay never assigned a client id")
	}
	fmt.Printf("connected as %s\n", client.ClientID())

	client.OnRoster(func(ids []string) {
		if len(ids) == 0 {
			fmt.Println("online: nobody else")
			return
		}
		fmt.Printf("online: %s\n", strings.Join(ids, ", "))
	})
	if err := client.RequestUserList(); err != nil {
		return err
	}

	if callPeer != "" {
		if err := client.Call(callPeer); err != nil {
			return fmt.Errorf("call %s: %w", callPeer, err)
		}
		fmt.Printf("calling %s\n", callPeer)
	}

	go commandLoop(client)

	select {
	case <-ctx.Done():
	case <-client.Done():
		fmt.Println("signaling connection closed")
	}
	return nil
}

// commandLoop reads simple commands from stdin: list, call <id>,
// hangup <id>, quit.
func commandLoop(client *peer.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "list":
			if err := client.RequestUserList(); err != nil {
				fmt.Println("error:", err)
			}
		case "call":
			if len(fields) != 2 {
				fmt.Println("usage: call <peer-id>")
				continue
			}
			if err := client.Call(fields[1]); err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("calling %s\n", fields[1])
		case "hangup":
			if len(fields) != 2 {
				fmt.Println("usage: hangup <peer-id>")
				continue
			}
			if err := client.Hangup(fields[1]); err != nil {
				fmt.Println("error:", err)
			}
		case "quit", "exit":
			client.Close()
			return
		default:
			fmt.Println("commands: list, call <peer-id>, hangup <peer-id>, quit")
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
