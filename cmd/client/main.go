package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/tcpchat/internal/client"
	"github.com/Tyrowin/tcpchat/internal/protocol"
)

var (
	addr        string
	wsURL       string
	origin      string
	username    string
	downloads   string
	dialTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "tcpchat",
	Short: "Join a chat server from the terminal",
	Long: `Connects to a chat server and relays lines typed on stdin as messages.

Type "/file <path>" to send a file and "/quit" to leave. Received files are
written to the --downloads directory.`,
	SilenceUsage: true,
	RunE:         runClient,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&addr, "addr", "localhost:8888", "TCP address of the server")
	flags.StringVar(&wsURL, "ws", "", "WebSocket URL of the server, used instead of --addr")
	flags.StringVar(&origin, "origin", "http://localhost:8888", "Origin sent with the WebSocket handshake")
	flags.StringVarP(&username, "user", "u", "", "Username (1 to 10 bytes)")
	flags.StringVar(&downloads, "downloads", ".", "Directory received files are saved to")
	flags.DurationVar(&dialTimeout, "timeout", 10*time.Second, "Connect and login timeout")
	_ = rootCmd.MarkFlagRequired("user")
}

func runClient(_ *cobra.Command, _ []string) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	fmt.Printf("Connected to %s as %s\n", c.ServerName(), c.Username())

	received := make(chan error, 1)
	go func() { received <- receiveLoop(c) }()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case err := <-received:
			return err
		case line, ok := <-lines:
			if !ok || line == "/quit" {
				return nil
			}
			if err := sendLine(c, line); err != nil {
				return err
			}
		}
	}
}

func connect() (*client.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if wsURL != "" {
		header := http.Header{}
		header.Set("Origin", origin)
		return client.DialWebSocket(ctx, wsURL, username, header)
	}
	return client.Dial(ctx, addr, username)
}

func sendLine(c *client.Client, line string) error {
	if path, ok := strings.CutPrefix(line, "/file "); ok {
		content, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot read %s: %v\n", path, err)
			return nil
		}
		if err := c.SendFile(filepath.Base(path), content); err != nil {
			if errors.Is(err, protocol.ErrInvalidArgument) {
				fmt.Fprintf(os.Stderr, "cannot send %s: %v\n", path, err)
				return nil
			}
			return err
		}
		return nil
	}
	if strings.TrimSpace(line) == "" {
		return nil
	}
	return c.SendMessage(line)
}

func receiveLoop(c *client.Client) error {
	for {
		msg, err := c.Receive()
		if err != nil {
			return err
		}
		stamp := msg.Time.Format("15:04:05")

		switch msg.Command {
		case protocol.SendMsg:
			fmt.Printf("[%s] %s: %s\n", stamp, msg.Username, msg.Text)
		case protocol.SendFile:
			saveFile(msg, stamp)
		case protocol.Close:
			fmt.Printf("[%s] disconnected: %s\n", stamp, msg.Text)
			return nil
		}
	}
}

func saveFile(msg *client.Message, stamp string) {
	name, content, err := msg.File()
	if err != nil {
		fmt.Fprintf(os.Stderr, "malformed file from %s: %v\n", msg.Username, err)
		return
	}
	path := filepath.Join(downloads, filepath.Base(name))
	if err := os.WriteFile(path, content, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "cannot save %s: %v\n", path, err)
		return
	}
	fmt.Printf("[%s] %s sent %s (%d bytes), saved to %s\n", stamp, msg.Username, name, len(content), path)
}
