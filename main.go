package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bazaar/internal/app"
	"bazaar/internal/commands"
	"bazaar/internal/config"

	"github.com/spf13/pflag"
	"go.uber.org/fx"
)

const stopTimeout = 5 * time.Second

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("bazaar", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	thread := flags.String("thread", "", "listing (advert) id of the conversation to open")
	peer := flags.String("peer", "", "user id of the other participant")
	token := flags.String("token", "", "session token; overrides "+config.EnvPrefix+"TOKEN and is remembered")
	list := flags.Bool("list", false, "list conversations and exit")
	start := flags.Bool("start", false, "create the conversation on the server before opening it")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *token != "" {
		cfg.Token = *token
	}

	logger, err := app.NewLogger(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}

	var deps app.Deps
	a := app.New(cfg, logger, fx.Populate(&deps))
	if err := a.Err(); err != nil {
		return err
	}

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := a.Stop(stopCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	if *list {
		return commands.ListConversations(ctx, stdout, deps.API, deps.Badges.Counts())
	}

	if *start {
		if _, err := deps.API.StartConversation(ctx, *thread, *peer); err != nil {
			return fmt.Errorf("failed to start conversation: %w", err)
		}
	}

	return commands.Chat(ctx, commands.ChatParams{
		Session:       deps.Session,
		ThreadID:      *thread,
		PeerID:        *peer,
		Socket:        deps.Socket,
		History:       deps.API,
		Uploader:      deps.API,
		TypingTimeout: cfg.TypingTimeout,
		Logger:        logger.With("component", "chat"),
		In:            stdin,
		Out:           stdout,
	})
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
