package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ostelo/deskchat/internal/chat"
	"github.com/ostelo/deskchat/internal/engine"
	"github.com/ostelo/deskchat/internal/session"
	"go.uber.org/fx"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	conversationFlag := flag.String("conversation", "", "conversation id to open")
	roleFlag := flag.String("role", "staff", "viewer role: staff or guest")
	refFlag := flag.String("ref", "", "staff id (staff role only)")
	nameFlag := flag.String("name", "", "display name (staff role only)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *conversationFlag == "" {
		fmt.Fprintln(os.Stderr, "error: --conversation is required")
		os.Exit(1)
	}
	role := chat.SenderClass(*roleFlag)
	if role != chat.SenderStaff && role != chat.SenderGuest {
		fmt.Fprintf(os.Stderr, "error: invalid role %q\n", *roleFlag)
		os.Exit(1)
	}

	app := fx.New(
		engine.Module(engine.Params{
			SessionName:    sessionName,
			ConversationID: *conversationFlag,
			Role:           role,
			ViewerRef:      *refFlag,
			ViewerName:     *nameFlag,
		}),
	)

	app.Run()
}
