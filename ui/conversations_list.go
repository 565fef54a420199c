package ui

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"swipechat/engine"
)

func (c *controller) conversationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := c.snapshotEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Shutdown()

			if err := eng.LoadConversations(cmd.Context()); err != nil {
				return err
			}
			c.printf("%s", renderConversationList(eng.ViewModel(), time.Now()))
			return nil
		},
	}
}

// snapshotEngine builds an engine that reads REST snapshots without an
// event channel.
func (c *controller) snapshotEngine(ctx context.Context) (*engine.Engine, error) {
	session, err := c.requireSession()
	if err != nil {
		return nil, err
	}
	client, err := c.restClient(ctx, session.AccessToken)
	if err != nil {
		return nil, err
	}
	return c.newEngine(session, client, offlineEmitter{})
}
