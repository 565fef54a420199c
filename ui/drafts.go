package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swipechat/storage"
)

func (c *controller) draftsCommand() *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List messages that failed to send",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			drafts, err := c.store.ListDrafts(conversationID)
			if err != nil {
				return err
			}
			c.printf("%s", renderDrafts(drafts, time.Now()))
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "only drafts of this conversation")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "discard <draft-id>",
			Short: "Delete a draft",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := c.store.DeleteDraft(args[0]); err != nil {
					return err
				}
				c.printf("Discarded %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "resend <draft-id>",
			Short: "Send a draft again and delete it on success",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				session, err := c.requireSession()
				if err != nil {
					return err
				}
				draft, err := c.store.GetDraft(args[0])
				if err != nil {
					return err
				}
				client, err := c.restClient(cmd.Context(), session.AccessToken)
				if err != nil {
					return err
				}

				message, err := client.PostMessage(cmd.Context(), draft.ConversationID, draft.Content)
				if err != nil {
					return fmt.Errorf("resend draft %q: %w", draft.DraftID, err)
				}
				if err := c.store.DeleteDraft(draft.DraftID); err != nil {
					c.logger.Warn("sent draft not deleted", zap.String("draft_id", draft.DraftID), zap.Error(err))
				}
				c.printf("%s Sent as %s\n", Styles.Success.Render("✓"), message.ID)
				return nil
			},
		},
	)
	return cmd
}

func renderDrafts(drafts []storage.Draft, now time.Time) string {
	if len(drafts) == 0 {
		return Styles.Muted.Render("No unsent drafts.") + "\n"
	}
	var b strings.Builder
	for _, d := range drafts {
		fmt.Fprintf(&b, "%s  %s  %s\n    %s\n",
			Styles.Bold.Render(d.DraftID),
			Styles.Muted.Render(d.ConversationID),
			Styles.Muted.Render(formatTimestamp(time.UnixMilli(d.CreatedAt), now)),
			d.Content,
		)
		if d.Failure != "" {
			fmt.Fprintf(&b, "    %s\n", Styles.Error.Render(d.Failure))
		}
	}
	return b.String()
}
