package ui

import (
	"strings"

	"github.com/spf13/cobra"
)

func (c *controller) usersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "Show people to swipe on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := c.requireSession()
			if err != nil {
				return err
			}
			client, err := c.restClient(cmd.Context(), session.AccessToken)
			if err != nil {
				return err
			}
			users, err := client.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			c.printf("%s", renderUsers(users))
			return nil
		},
	}
}

func (c *controller) likeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "like <user-id>",
		Short: "Like someone; a match opens a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			live, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer live.close()

			userID := strings.TrimSpace(args[0])
			if err := live.engine.LikeUser(cmd.Context(), userID); err != nil {
				return err
			}
			c.printf("%s Liked %s\n", Styles.Success.Render("♥"), userID)
			return nil
		},
	}
}
