// Command bot runs an auto-responder account: it accepts every friend
// invite, answers chat messages with a canned reply, and wizzes back
// anyone who wizzes it. Useful as an always-online peer for manual
// testing.
package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mensageiro/mensageiro/pkg/client"
	"github.com/mensageiro/mensageiro/pkg/protocol"
)

type bot struct {
	conn    *client.Connection
	userID  int64
	replies []string
	next    int
}

func main() {
	server := flag.String("server", "127.0.0.1:8087", "Server address")
	email := flag.String("email", "bot@example.com", "Bot account email")
	password := flag.String("password", "", "Bot account password (required)")
	name := flag.String("name", "Atendente", "Bot display name")
	status := flag.String("status", "resposta automática", "Bot status message")
	replyList := flag.String("replies", "", "Comma-separated replies (cycled); default built-in set")
	debug := flag.Bool("debug", false, "Log connection events")
	flag.Parse()

	if *password == "" {
		log.Fatal("-password is required")
	}

	replies := []string{
		"oi! não estou no computador agora, já te respondo",
		"recebi sua mensagem, volto logo",
		"um momento, por favor",
	}
	if *replyList != "" {
		replies = strings.Split(*replyList, ",")
	}

	conn := client.NewConnection(*server)
	if *debug {
		conn.SetLogger(log.New(os.Stderr, "conn: ", log.LstdFlags))
	}
	if err := conn.Connect(); err != nil {
		log.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	// The account may already exist from a previous run.
	if _, err := conn.Register(*name, *email, *password); err != nil {
		var serverErr *client.ServerError
		if !errors.As(err, &serverErr) || serverErr.Message != "email already registered" {
			log.Fatalf("Register: %v", err)
		}
	}
	login, err := conn.Login(*email, *password)
	if err != nil {
		log.Fatalf("Login: %v", err)
	}
	if err := conn.UpdateStatus(*status); err != nil {
		log.Printf("UpdateStatus: %v", err)
	}
	log.Printf("Bot online as %s (user %d)", *email, login.User.ID)

	b := &bot{conn: conn, userID: login.User.ID, replies: replies}

	// Accept anything that was already pending before this run.
	if pending, err := conn.FriendRequests(); err == nil {
		for _, req := range pending.Incoming {
			b.acceptInvite(req.ID, req.FromEmail)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				log.Print("Connection closed, exiting")
				return
			}
			b.handleEvent(ev)
		case sig := <-sigCh:
			log.Printf("Received %v, shutting down", sig)
			return
		}
	}
}

func (b *bot) handleEvent(ev client.Event) {
	switch ev.Type {
	case protocol.TypeFriendRequestPush:
		var push protocol.FriendRequestPush
		if err := ev.Decode(&push); err != nil {
			return
		}
		b.acceptInvite(push.RequestID, push.FromEmail)

	case protocol.TypeChat:
		var push protocol.ChatPush
		if err := ev.Decode(&push); err != nil {
			return
		}
		if push.Message.SenderID == b.userID {
			return
		}
		reply := b.replies[b.next%len(b.replies)]
		b.next++
		if _, err := b.conn.Chat(push.ConversationID, reply); err != nil {
			log.Printf("Reply in conversation %d: %v", push.ConversationID, err)
		}

	case protocol.TypeWizz:
		var push protocol.WizzPush
		if err := ev.Decode(&push); err != nil {
			return
		}
		if err := b.conn.Wizz(push.ConversationID); err != nil {
			log.Printf("Wizz back in conversation %d: %v", push.ConversationID, err)
		}
	}
}

func (b *bot) acceptInvite(requestID int64, fromEmail string) {
	if err := b.conn.AcceptFriend(requestID); err != nil {
		log.Printf("Accept invite %d from %s: %v", requestID, fromEmail, err)
		return
	}
	log.Printf("Accepted invite from %s", fromEmail)
}
