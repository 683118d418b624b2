package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cbodonnell/gridlock/pkg/auth"
	"github.com/cbodonnell/gridlock/pkg/client"
	"github.com/cbodonnell/gridlock/pkg/feed"
	"github.com/cbodonnell/gridlock/pkg/log"
	"github.com/cbodonnell/gridlock/pkg/match"
	"github.com/cbodonnell/gridlock/pkg/session"
)

func main() {
	serverURL := flag.String("server-url", "http://localhost:8080", "Base URL of the match service")
	wsURL := flag.String("ws-url", "", "Websocket URL of the match service, derived from -server-url when empty")
	firebaseAPIKey := flag.String("firebase-api-key", "", "Firebase API key for anonymous sign-in")
	insecureUser := flag.String("insecure-user", "", "Skip sign-in and identify as this user id (local development only)")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)

	if *wsURL == "" {
		derived := strings.Replace(*serverURL, "http", "ws", 1)
		wsURL = &derived
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var identity auth.Identity
	if *insecureUser != "" {
		identity = auth.NewStaticIdentity(*insecureUser)
	} else {
		identity = auth.NewAnonymousIdentity(*firebaseAPIKey)
	}

	// The token is only available after sign-in, so resolve before
	// wiring the repository and feed.
	if _, err := identity.Resolve(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign in: %v\n", err)
		os.Exit(1)
	}

	sink := session.NewChannelSink(16)
	controller := session.NewController(session.NewControllerOptions{
		Identity: identity,
		Repository: client.NewRESTRepository(client.NewRESTRepositoryOptions{
			ServerURL: *serverURL,
			Token:     identity.Token(),
		}),
		Feed: feed.NewWSFeed(feed.NewWSFeedOptions{
			ServerURL: *wsURL,
			Token:     identity.Token(),
		}),
		Sink: sink,
	})

	if err := controller.StartSession(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start session: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Playing as %s\n", controller.PlayerID())

	go func() {
		for notice := range sink.Notices() {
			fmt.Printf("! %s\n", notice)
		}
	}()

	printHelp()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "new":
			if err := controller.CreateMatch(ctx); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("Created match %s, waiting for an opponent\n", controller.Snapshot().ID)
		case "join":
			if len(fields) < 2 {
				fmt.Println("usage: join <match-id>")
				continue
			}
			if err := controller.JoinMatch(ctx, fields[1]); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			printMatch(controller.Snapshot())
		case "move":
			if len(fields) < 2 {
				fmt.Println("usage: move <position 0-8>")
				continue
			}
			position, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("usage: move <position 0-8>")
				continue
			}
			if err := controller.SubmitMove(ctx, position); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		case "restart":
			if err := controller.RestartMatch(ctx); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		case "leave":
			if err := controller.LeaveMatch(ctx); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		case "show":
			printMatch(controller.Snapshot())
		case "quit":
			return
		default:
			printHelp()
		}
	}
}

func printHelp() {
	fmt.Println("commands: new, join <match-id>, move <position 0-8>, restart, leave, show, quit")
}

func printMatch(m *match.Match) {
	if m == nil {
		fmt.Println("no active match")
		return
	}

	fmt.Printf("match %s (%s)\n", m.ID, m.Status)
	board := m.Board.String()
	for row := 0; row < 3; row++ {
		fmt.Printf(" %c | %c | %c\n", board[row*3], board[row*3+1], board[row*3+2])
		if row < 2 {
			fmt.Println("---+---+---")
		}
	}
	if m.Status == match.StatusInProgress {
		fmt.Printf("turn %d, %s to move\n", m.TurnNumber, m.CurrentTurn)
	}
}
