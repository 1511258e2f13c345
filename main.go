// Package main our entry point.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/peerwell/chatclient/internal/api"
	"github.com/peerwell/chatclient/internal/config"
	"github.com/peerwell/chatclient/internal/controller"
	"github.com/peerwell/chatclient/internal/model"
	"github.com/peerwell/chatclient/internal/session"
	"github.com/peerwell/chatclient/internal/socket"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("failed to load .env file: %+v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stdout)

	role := flag.String("role", string(model.RoleSeeker), "chat role: seeker or listener")
	peer := flag.String("peer", "", "full name of the peer to open on start")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	sess, err := session.FromEnv()
	if err != nil {
		log.Fatalf("cannot start without a session: %v", err)
	}

	client := api.New(cfg.APIBaseURL, sess)
	ctrl := controller.New(model.Role(*role), sess, client, socket.NewDialer(), cfg)
	defer ctrl.Close()

	go ctrl.Run(ctx)
	go printEvents(ctrl, sess)

	conns, err := ctrl.Roster(ctx)
	if err != nil {
		log.Fatalf("roster fetch failed: %v", err)
	}
	if len(conns) == 0 {
		fmt.Println("no connections yet")
		return
	}

	fmt.Println("Conversations:")
	for _, conn := range conns {
		badge := ""
		if n := ctrl.UnreadFor(conn.ID); n > 0 {
			badge = fmt.Sprintf(" (%d unread)", n)
		}
		fmt.Printf("  %s [%s]%s\n", conn.FullName, conn.Status, badge)
	}

	target := pickPeer(conns, *peer)
	if target == nil {
		fmt.Println("no chat-eligible peer found")
		return
	}

	if err := ctrl.Open(ctx, *target); err != nil {
		if errors.Is(err, controller.ErrNotAccepted) {
			fmt.Printf("cannot chat with %s: connection not yet accepted\n", target.FullName)
			return
		}
		log.Fatalf("failed to open chat: %v", err)
	}
	fmt.Printf("chatting with %s - type a message and press Enter\n", target.FullName)

	for _, msg := range ctrl.Transcript() {
		printMessage(msg, sess.FullName)
	}

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
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := ctrl.Send(line); err != nil {
				switch {
				case errors.Is(err, socket.ErrSocketClosed):
					fmt.Println("not connected - message not sent")
				case errors.Is(err, controller.ErrRateLimited):
					fmt.Println("sending too fast - slow down")
				default:
					log.Printf("send failed: %v", err)
				}
			}

		case <-ctx.Done():
			fmt.Println("\nbye")
			return
		}
	}
}

func pickPeer(conns []model.Connection, name string) *model.Connection {
	for i, conn := range conns {
		if name != "" {
			if strings.EqualFold(conn.FullName, name) {
				return &conns[i]
			}
			continue
		}
		if conn.ChatEligible() {
			return &conns[i]
		}
	}
	return nil
}

func printEvents(ctrl *controller.Controller, sess session.Session) {
	for ev := range ctrl.Events() {
		switch ev.Kind {
		case controller.EventTranscript:
			printMessage(ev.Message, sess.FullName)

		case controller.EventSocket:
			switch ev.State {
			case socket.StateOpen:
				fmt.Println("[connected]")
			case socket.StateConnecting:
				fmt.Println("[connecting...]")
			case socket.StateClosed:
				fmt.Println("[disconnected]")
			case socket.StateFailed:
				fmt.Println("[reconnect failed - restart to try again]")
			}

		case controller.EventError:
			fmt.Printf("[error] %v\n", ev.Err)
		}
	}
}

func printMessage(msg model.Message, self string) {
	if msg.Author == self {
		status := "sent"
		if msg.Delivered {
			status = "delivered"
		}
		if msg.Read {
			status = "read"
		}
		fmt.Printf("me: %s (%s)\n", msg.Content, status)
		return
	}
	fmt.Printf("%s: %s\n", msg.Author, msg.Content)
}
