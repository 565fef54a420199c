package ui

import (
	"fmt"
	"strings"
	"time"

	"swipechat/engine"
	"swipechat/models"
)

const previewLength = 40

func renderConversationList(vm engine.ViewModel, now time.Time) string {
	if len(vm.Conversations) == 0 {
		return Styles.Muted.Render("No conversations yet. Match with someone to start chatting.") + "\n"
	}

	var b strings.Builder
	for i, row := range vm.Conversations {
		fmt.Fprintf(&b, "%2d  %s\n", i+1, renderConversationRow(row, vm.Self.ID, now))
	}
	return b.String()
}

func renderConversationRow(row engine.ConversationView, selfID string, now time.Time) string {
	title := row.Title
	if row.UnreadCount > 0 {
		title = Styles.Unread.Render(title)
	} else {
		title = Styles.Bold.Render(title)
	}

	parts := []string{title}
	if row.Online {
		parts = append(parts, Styles.Online.Render(glyphOnline))
	}
	if row.UnreadCount > 0 {
		parts = append(parts, Styles.Unread.Render(fmt.Sprintf("(%d)", row.UnreadCount)))
	}
	if !row.UpdatedAt.IsZero() {
		parts = append(parts, Styles.Muted.Render(formatTimestamp(row.UpdatedAt, now)))
	}

	line := strings.Join(parts, " ")
	switch {
	case row.TypingText != "":
		line += "\n    " + Styles.Typing.Render(row.TypingText)
	case row.LastMessage != nil:
		line += "\n    " + Styles.Muted.Render(previewText(*row.LastMessage, selfID))
	}
	return line
}

func previewText(m models.Message, selfID string) string {
	text := strings.Join(strings.Fields(m.Content), " ")
	if runes := []rune(text); len(runes) > previewLength {
		text = string(runes[:previewLength-1]) + "…"
	}
	if m.Sender.ID == selfID {
		return "You: " + text
	}
	return text
}

func renderThread(thread *engine.ThreadView, now time.Time) string {
	if thread == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(Styles.Title.Render(thread.Title))
	b.WriteString("\n")
	if !thread.Loaded {
		b.WriteString(Styles.Muted.Render("loading…"))
		b.WriteString("\n")
		return b.String()
	}
	if len(thread.Messages) == 0 {
		b.WriteString(Styles.Muted.Render("Say hi!"))
		b.WriteString("\n")
	}
	for _, m := range thread.Messages {
		b.WriteString(renderMessage(m, thread.Participants, now))
		b.WriteString("\n")
	}
	if thread.TypingText != "" {
		b.WriteString(Styles.Typing.Render(thread.TypingText))
		b.WriteString("\n")
	}
	return b.String()
}

func renderMessage(m engine.MessageView, participants []models.User, now time.Time) string {
	stamp := Styles.Muted.Render(formatTimestamp(m.CreatedAt, now))
	if m.Mine {
		return fmt.Sprintf("%s %s %s %s", stamp, Styles.Mine.Render("You:"), m.Content, statusGlyph(m.Status))
	}
	return fmt.Sprintf("%s %s %s", stamp, Styles.Theirs.Render(senderName(m.Message, participants)+":"), m.Content)
}

func statusGlyph(status engine.MessageStatus) string {
	switch status {
	case engine.StatusSending:
		return Styles.Muted.Render(glyphSending)
	case engine.StatusSent:
		return Styles.Muted.Render(glyphSent)
	case engine.StatusDelivered:
		return Styles.Subtitle.Render(glyphDelivered)
	case engine.StatusSeen:
		return Styles.Success.Render(glyphSeen)
	default:
		return ""
	}
}

func senderName(m models.Message, participants []models.User) string {
	if m.Sender.Name != "" {
		return m.Sender.Name
	}
	for _, p := range participants {
		if p.ID == m.Sender.ID && p.Name != "" {
			return p.Name
		}
	}
	return "Unknown"
}

func formatTimestamp(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	local := t.Local()
	y1, m1, d1 := local.Date()
	y2, m2, d2 := now.Local().Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return local.Format("15:04")
	}
	if y1 == y2 {
		return local.Format("Jan 2")
	}
	return local.Format("Jan 2 2006")
}

func renderNotification(n models.Notification) string {
	name := n.Name
	if name == "" {
		name = "Someone"
	}
	switch n.Kind {
	case models.NotificationMatch:
		return Styles.Highlight.Render("It's a match!") + " You and " + name + " liked each other."
	case models.NotificationLiked:
		return Styles.Subtitle.Render("♥") + " " + name + " liked you."
	default:
		return name
	}
}

func renderUsers(users []models.User) string {
	if len(users) == 0 {
		return Styles.Muted.Render("Nobody new around. Check back later.") + "\n"
	}
	var b strings.Builder
	for _, u := range users {
		line := Styles.Bold.Render(u.Name)
		if u.Status == models.StatusOnline {
			line += " " + Styles.Online.Render(glyphOnline)
		}
		fmt.Fprintf(&b, "%s  %s\n", line, Styles.Muted.Render(u.ID))
	}
	return b.String()
}
