package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethanbaker/ragchat/pkg/sdk"
	"github.com/ethanbaker/ragchat/pkg/session"
	"github.com/ethanbaker/ragchat/pkg/utils"
)

// Chat with a running API server from the terminal
func main() {
	envFile := ".env"
	if os.Getenv("ENV_FILE") != "" {
		envFile = os.Getenv("ENV_FILE")
	}
	cfg := utils.NewConfigFromEnv(envFile)

	baseURL := flag.String("url", "http://localhost:"+cfg.GetWithDefault("API_PORT", "5001"), "API base URL")
	sessionID := flag.String("session", "", "session id (random when empty)")
	flag.Parse()

	if *sessionID == "" {
		*sessionID = session.NewTurnID()
	}

	client := sdk.NewClient(*baseURL, cfg.Get("API_KEY"))
	if err := startInteractiveSession(context.Background(), client, *sessionID, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// startInteractiveSession reads queries from in until EOF or "exit".
// "/history" prints the session and "/clear" empties it
func startInteractiveSession(ctx context.Context, client *sdk.Client, sessionID string, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Chat started (session %s). Type 'exit' to quit.\n", sessionID)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")

		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "exit":
			return nil
		case "/history":
			messages, err := client.History(ctx, sessionID)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			for _, m := range messages {
				fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
			}
		case "/clear":
			if err := client.Clear(ctx, sessionID); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, "Session cleared")
		default:
			resp, err := client.Ask(ctx, sessionID, input)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "Assistant: %s\n", resp.Answer)
		}
	}

	return scanner.Err()
}
