package main

import (
	"bufio"
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Rapa0/amigos-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat <user-id>",
	Short: "Open a live conversation with a match",
	Long: `Open a live conversation with a match.

Type a message and press enter to send it. Commands:
  /img <path> [caption]   send an image from disk
  /quit                   leave the chat`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()
		if cfg.Auth.UserID == "" {
			return fmt.Errorf("stored session has no user id, log in again")
		}
		peerID := args[0]

		peer := amigos.Peer{ID: peerID, DisplayName: peerID}
		ctx, cancel := apiContext()
		matches, err := client.Matches(ctx)
		cancel()
		if err == nil {
			for _, u := range matches {
				if u.ID == peerID {
					peer = amigos.PeerFromUser(u)
					break
				}
			}
		}

		session := amigos.NewSession(client, cfg.Auth.UserID, nil)
		defer session.Close()

		startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = session.Start(startCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}

		session.Notifications().OnChange(func(n int) {
			if n > 0 {
				fmt.Printf("  [%d unread]\n", n)
			}
		})

		openCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		conv, err := session.OpenConversation(openCtx, peer)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load history: %v\n", err)
		}

		for _, m := range conv.Messages() {
			printMessage(cfg.Auth.UserID, peer, m)
		}
		conv.OnAppend(func(m amigos.Message) {
			printMessage(cfg.Auth.UserID, peer, m)
		})
		session.Notifications().MarkViewed()

		fmt.Printf("Chatting with %s. /quit to leave.\n", peer.DisplayName)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch {
			case line == "/quit":
				return nil
			case strings.HasPrefix(line, "/img "):
				if err := sendImage(conv, strings.TrimPrefix(line, "/img ")); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to send image: %v\n", err)
				}
			default:
				conv.SendText(line)
			}
			session.Notifications().MarkViewed()
		}
		return scanner.Err()
	},
}

func printMessage(localID string, peer amigos.Peer, m amigos.Message) {
	who := peer.DisplayName
	if m.Sender == localID {
		who = "you"
	}
	body := m.Body
	if m.Kind == amigos.KindImage {
		body = "[image] " + body
	}
	fmt.Printf("%s: %s\n", who, body)
}

func sendImage(conv *amigos.Conversation, rest string) error {
	path := rest
	caption := ""
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		path, caption = rest[:i], strings.TrimSpace(rest[i+1:])
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	asset := amigos.ImageAsset{
		FileName: filepath.Base(path),
		Mime:     mime.TypeByExtension(filepath.Ext(path)),
		Data:     data,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	return conv.SendImage(ctx, asset, caption)
}
