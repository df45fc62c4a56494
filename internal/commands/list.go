package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"bazaar/internal/content"
	"bazaar/internal/models"
)

type ConversationLister interface {
	Conversations(ctx context.Context) ([]models.Conversation, error)
}

// ListConversations prints the badge counters followed by one row per
// conversation, most recent first as returned by the server.
func ListConversations(ctx context.Context, w io.Writer, lister ConversationLister, counts models.Counters) error {
	convs, err := lister.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	fmt.Fprintf(w, "unread: %d  reviews: %d\n", counts.Unread, counts.Reviews)
	if len(convs) == 0 {
		fmt.Fprintln(w, "no conversations")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "THREAD\tTITLE\tPEER\tUNREAD\tLAST MESSAGE")
	for _, c := range convs {
		peer := c.PeerName
		if peer == "" {
			peer = c.PeerID
		}
		last := ""
		if c.LastMessage != nil {
			last = truncate(excerpt(*c.LastMessage), 40)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			c.ThreadID, content.Sanitize(c.ThreadTitle), peer, c.UnreadCount, last)
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
