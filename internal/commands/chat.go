package commands

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bazaar/internal/chat"
	"bazaar/internal/models"

	"golang.org/x/sync/errgroup"
)

// Socket is the session connection as used by an interactive chat.
type Socket interface {
	chat.EventSource
	chat.Sender
}

type ChatParams struct {
	Session       models.Session
	ThreadID      string
	PeerID        string
	Socket        Socket
	History       chat.HistoryFetcher
	Uploader      chat.MediaUploader
	TypingTimeout time.Duration
	Logger        *slog.Logger

	In  io.Reader
	Out io.Writer
}

// Chat opens the conversation with PeerID about ThreadID and relays
// lines read from In until EOF, "/quit" or ctx is done.
//
// Lines starting with "/image " upload the named file; anything else is
// sent as a text message.
func Chat(ctx context.Context, p ChatParams) error {
	if p.ThreadID == "" || p.PeerID == "" {
		return errors.New("chat needs --thread and --peer")
	}

	view := newRenderer(p.Out, p.Session.UserID, p.PeerID)
	room, err := chat.NewRoom(chat.RoomConfig{
		Config: chat.Config{
			LocalUserID:   p.Session.UserID,
			ThreadID:      p.ThreadID,
			PeerID:        p.PeerID,
			Sender:        p.Socket,
			TypingTimeout: p.TypingTimeout,
			Logger:        p.Logger,
		},
		Events:   p.Socket,
		History:  p.History,
		Uploader: p.Uploader,
		OnChange: view.Render,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(p.Out, "chatting with %s about %s; /image <path> sends a picture, /quit leaves\n", p.PeerID, p.ThreadID)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return room.Run(gCtx)
	})

	g.Go(func() error {
		defer room.Close()

		if err := room.LoadHistory(gCtx); err != nil {
			if errors.Is(err, chat.ErrRoomClosed) || gCtx.Err() != nil {
				return nil
			}
			view.Errorf("%v", err)
		}
		return readInput(gCtx, room, p.In, view)
	})

	return g.Wait()
}

// input is either a complete line or a notice that part of a line has
// been typed.
type input struct {
	line    string
	partial bool
}

func readInput(ctx context.Context, room *chat.Room, in io.Reader, view *renderer) error {
	// The reader goroutine may stay blocked in Read after we return. Closing
	// the input releases it when the input can be closed; otherwise it
	// lives until the process exits.
	if c, ok := in.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	inputs := make(chan input)
	go readLines(in, inputs, room.Done())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-room.Done():
			return nil
		case ev, ok := <-inputs:
			if !ok {
				return nil
			}
			if ev.partial {
				if err := room.Keystroke(ctx); err != nil && !errors.Is(err, chat.ErrRoomClosed) {
					view.Errorf("%v", err)
				}
				continue
			}
			if quit := handleLine(ctx, room, ev.line, view); quit {
				return nil
			}
		}
	}
}

// readLines splits in into lines. Every read that leaves an unfinished
// line behind is reported as partial input, which drives the typing
// indicator.
func readLines(in io.Reader, out chan<- input, done <-chan struct{}) {
	defer close(out)

	emit := func(i input) bool {
		select {
		case out <- i:
			return true
		case <-done:
			return false
		}
	}

	r := bufio.NewReader(in)
	buf := make([]byte, 4096)
	var pending bytes.Buffer
	for {
		n, err := r.Read(buf)
		chunk := buf[:n]
		for {
			i := bytes.IndexByte(chunk, '\n')
			if i < 0 {
				break
			}
			pending.Write(chunk[:i])
			line := strings.TrimSuffix(pending.String(), "\r")
			pending.Reset()
			if !emit(input{line: line}) {
				return
			}
			chunk = chunk[i+1:]
		}
		if len(chunk) > 0 {
			pending.Write(chunk)
			if !emit(input{partial: true}) {
				return
			}
		}

		if err != nil {
			if pending.Len() > 0 {
				emit(input{line: pending.String()})
			}
			return
		}
	}
}

func handleLine(ctx context.Context, room *chat.Room, line string, view *renderer) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case strings.HasPrefix(line, "/image "):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/image "))
		data, err := os.ReadFile(path)
		if err != nil {
			view.Errorf("failed to read %s: %v", path, err)
			return false
		}
		if _, err := room.SendMedia(ctx, filepath.Base(path), data); err != nil {
			view.Errorf("%v", err)
		}
		return false
	}

	if _, err := room.Send(ctx, line); err != nil && !errors.Is(err, chat.ErrRoomClosed) {
		view.Errorf("send failed: %v", err)
	}
	return false
}
