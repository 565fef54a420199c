package ui

import (
	"context"

	"github.com/spf13/cobra"

	"swipechat/engine"
)

func (c *controller) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stay online and print new messages, likes and matches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			live, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer live.close()

			c.println(Styles.Muted.Render("Watching for activity. Press Ctrl+C to stop."))
			return newActivityFeed(c, live.engine).run(cmd.Context())
		},
	}
}

// activityFeed prints the newest inbound message of each conversation as it
// arrives, plus like and match notifications.
type activityFeed struct {
	c      *controller
	engine *engine.Engine
	last   map[string]string
}

func newActivityFeed(c *controller, eng *engine.Engine) *activityFeed {
	feed := &activityFeed{c: c, engine: eng, last: make(map[string]string)}
	for _, row := range eng.ViewModel().Conversations {
		if row.LastMessage != nil {
			feed.last[row.ID] = row.LastMessage.ID
		}
	}
	return feed
}

func (f *activityFeed) run(ctx context.Context) error {
	changes := f.engine.Changes()
	notifications := f.engine.Notifications()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			f.refresh()
		case n := <-notifications:
			f.c.println(renderNotification(n))
		}
	}
}

func (f *activityFeed) refresh() {
	vm := f.engine.ViewModel()
	for _, row := range vm.Conversations {
		if row.LastMessage == nil || row.LastMessage.IsPending() {
			continue
		}
		if f.last[row.ID] == row.LastMessage.ID {
			continue
		}
		f.last[row.ID] = row.LastMessage.ID
		if row.LastMessage.Sender.ID == vm.Self.ID {
			continue
		}
		f.c.printf("%s %s\n", Styles.Bold.Render(row.Title+":"), previewText(*row.LastMessage, vm.Self.ID))
	}
}
