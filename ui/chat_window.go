package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swipechat/engine"
	"swipechat/errs"
)

const chatHelp = "Type a message and press enter. Commands: /seen /list /help /quit"

func (c *controller) chatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <conversation>",
		Short: "Open a conversation by id or list position and chat live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			live, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer live.close()

			conversationID, err := resolveConversation(live.engine.ViewModel(), args[0])
			if err != nil {
				return err
			}
			if err := live.engine.OpenConversation(ctx, conversationID); err != nil {
				return err
			}
			defer live.engine.CloseConversation(conversationID)

			window := newChatWindow(c, live.engine, conversationID)
			return window.run(ctx, c.readLines(ctx))
		},
	}
}

// resolveConversation accepts a conversation id or a 1-based list position.
func resolveConversation(vm engine.ViewModel, arg string) (string, error) {
	for _, row := range vm.Conversations {
		if row.ID == arg {
			return row.ID, nil
		}
	}
	if n, err := strconv.Atoi(arg); err == nil {
		if n >= 1 && n <= len(vm.Conversations) {
			return vm.Conversations[n-1].ID, nil
		}
	}
	return "", fmt.Errorf("conversation %q: %w", arg, errs.ErrNotFound)
}

// readLines feeds stdin lines to the returned channel until EOF.
func (c *controller) readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := c.in.ReadString('\n')
			if line != "" {
				select {
				case lines <- strings.TrimRight(line, "\r\n"):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					c.logger.Debug("stdin closed", zap.Error(err))
				}
				return
			}
		}
	}()
	return lines
}

// chatWindow prints an open thread incrementally.
type chatWindow struct {
	c              *controller
	engine         *engine.Engine
	conversationID string

	shown      map[string]bool
	typingText string
	seenID     string
}

func newChatWindow(c *controller, eng *engine.Engine, conversationID string) *chatWindow {
	return &chatWindow{
		c:              c,
		engine:         eng,
		conversationID: conversationID,
		shown:          make(map[string]bool),
	}
}

func (w *chatWindow) run(ctx context.Context, lines <-chan string) error {
	w.printHeader()
	w.refresh()

	changes := w.engine.Changes()
	notifications := w.engine.Notifications()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := w.handleLine(ctx, line)
			if err != nil {
				w.c.printf("%s %v\n", Styles.Error.Render("✗"), err)
			}
			if quit {
				return nil
			}
		case <-changes:
			w.refresh()
		case n := <-notifications:
			w.c.println(renderNotification(n))
		}
	}
}

func (w *chatWindow) printHeader() {
	vm := w.engine.ViewModel()
	if vm.Open == nil {
		return
	}
	w.c.println(Styles.Box.Render(Styles.Title.Render(vm.Open.Title) + "\n" + Styles.Muted.Render(chatHelp)))
}

// handleLine runs a slash command or sends the line as a message.
func (w *chatWindow) handleLine(ctx context.Context, line string) (bool, error) {
	trimmed := strings.TrimSpace(line)
	switch trimmed {
	case "":
		return false, nil
	case "/quit", "/exit":
		return true, nil
	case "/help":
		w.c.println(Styles.Muted.Render(chatHelp))
		return false, nil
	case "/seen":
		return false, w.engine.MarkLatestSeen(w.conversationID)
	case "/list":
		w.c.printf("%s", renderConversationList(w.engine.ViewModel(), time.Now()))
		return false, nil
	}
	if strings.HasPrefix(trimmed, "/") {
		return false, fmt.Errorf("unknown command %s", trimmed)
	}

	_, err := w.engine.SendMessage(ctx, w.conversationID, line)
	return false, err
}

// refresh prints confirmed messages not shown yet, a seen marker for the
// newest own message and typing transitions.
func (w *chatWindow) refresh() {
	vm := w.engine.ViewModel()
	thread := vm.Open
	if thread == nil || thread.ConversationID != w.conversationID || !thread.Loaded {
		return
	}

	now := time.Now()
	lastMine := ""
	for _, m := range thread.Messages {
		if m.Mine {
			lastMine = m.ID
		}
		if m.IsPending() || w.shown[m.ID] {
			continue
		}
		w.shown[m.ID] = true
		w.c.println(renderMessage(m, thread.Participants, now))
	}

	for _, m := range thread.Messages {
		if m.ID == lastMine && m.Status == engine.StatusSeen && w.seenID != m.ID {
			w.seenID = m.ID
			w.c.println(Styles.Muted.Render("  seen " + glyphSeen))
		}
	}

	if thread.TypingText != w.typingText {
		w.typingText = thread.TypingText
		if thread.TypingText != "" {
			w.c.println(Styles.Typing.Render(thread.TypingText))
		}
	}
}
