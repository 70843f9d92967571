package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"community-chat/internal/client"
	"community-chat/internal/models"
	"community-chat/internal/protocol"
)

// A minimal terminal client, mostly useful for poking at a running
// server. One room at a time; lines starting with '/' are commands,
// everything else is sent as a message.
func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "websocket endpoint")
	apiURL := flag.String("api", "http://localhost:8080", "REST base URL")
	token := flag.String("token", os.Getenv("CHAT_TOKEN"), "bearer token")
	roomFlag := flag.String("room", "", "room ID to join on connect")
	typingWindow := flag.Duration("typing-window", 3*time.Second, "idle time before typing_stop is sent")
	handshakeTimeout := flag.Duration("handshake-timeout", 10*time.Second, "websocket dial timeout")
	flag.Parse()

	if *token == "" {
		log.Fatal("A token is required (-token or CHAT_TOKEN)")
	}

	var currentRoom *uuid.UUID

	session := client.NewSession(client.Config{
		ServerURL:        *serverURL,
		APIBaseURL:       *apiURL,
		Token:            *token,
		TypingWindow:     *typingWindow,
		HandshakeTimeout: *handshakeTimeout,
	}, client.Handlers{
		OnStateChange: func(state client.State) {
			fmt.Printf("* connection: %s\n", state)
		},
		OnRoomJoined: func(room *models.Room) {
			fmt.Printf("* joined %s (%d/%d users)\n", room.Name, room.CurrentUsers, room.MaxUsers)
		},
		OnRoomLeft: func(roomID uuid.UUID) {
			fmt.Printf("* left room %s\n", roomID)
		},
		OnMessage: func(msg *models.Message) {
			if msg.IsDeleted {
				fmt.Printf("[%s] <message deleted>\n", msg.SenderName)
				return
			}
			fmt.Printf("[%s] %s\n", msg.SenderName, msg.Content)
		},
		OnHistory: func(messages []*models.Message) {
			fmt.Printf("* --- last %d messages ---\n", len(messages))
			for i := len(messages) - 1; i >= 0; i-- {
				fmt.Printf("[%s] %s\n", messages[i].SenderName, messages[i].Content)
			}
		},
		OnUserJoined: func(p protocol.UserEventPayload) {
			fmt.Printf("* %s joined\n", p.Username)
		},
		OnUserLeft: func(p protocol.UserEventPayload) {
			fmt.Printf("* %s left\n", p.Username)
		},
		OnTyping: func(p protocol.TypingPayload, active bool) {
			if active {
				fmt.Printf("* %s is typing...\n", p.Username)
			}
		},
		OnPresence: func(p protocol.PresencePayload) {
			fmt.Printf("* %s is now %s\n", p.UserID, p.Status)
		},
		OnError: func(p protocol.ErrorPayload) {
			fmt.Printf("! %s: %s\n", p.Code, p.Message)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- session.Run(ctx) }()

	if *roomFlag != "" {
		roomID, err := uuid.Parse(*roomFlag)
		if err != nil {
			log.Fatalf("Invalid room ID %q: %v", *roomFlag, err)
		}
		currentRoom = &roomID
		// Run may still be dialing; resync covers the race by
		// re-joining once connected, so a failed first join is fine.
		go session.JoinRoom(roomID)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := command(session, line, &currentRoom); quit {
				break
			}
			continue
		}

		if currentRoom == nil {
			fmt.Println("! join a room first: /join <room-id>")
			continue
		}
		session.Typing(*currentRoom)
		if err := session.SendMessage(*currentRoom, line, nil); err != nil {
			fmt.Printf("! send failed: %v\n", err)
			continue
		}
		session.StopTyping(*currentRoom)
	}

	session.Close()
	cancel()
	if err := <-errCh; err != nil && err != context.Canceled {
		log.Printf("Session ended: %v", err)
	}
}

func command(session *client.Session, line string, currentRoom **uuid.UUID) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return true

	case "/join":
		if len(fields) < 2 {
			fmt.Println("! usage: /join <room-id>")
			return false
		}
		roomID, err := uuid.Parse(fields[1])
		if err != nil {
			fmt.Printf("! invalid room ID: %v\n", err)
			return false
		}
		if err := session.JoinRoom(roomID); err != nil {
			fmt.Printf("! join failed: %v\n", err)
			return false
		}
		*currentRoom = &roomID

	case "/leave":
		if *currentRoom == nil {
			return false
		}
		session.LeaveRoom(**currentRoom)
		*currentRoom = nil

	case "/status":
		if len(fields) < 2 {
			fmt.Println("! usage: /status online|away|busy [message]")
			return false
		}
		message := strings.Join(fields[2:], " ")
		if err := session.SetStatus(models.PresenceStatus(fields[1]), message); err != nil {
			fmt.Printf("! status failed: %v\n", err)
		}

	default:
		fmt.Printf("! unknown command %s\n", fields[0])
	}
	return false
}
