package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swipechat/discovery"
)

func (c *controller) serversCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Find swipechat backends on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			servers, err := c.lookup(cmd.Context())
			if err != nil {
				return err
			}
			c.printf("%s", renderServers(servers))
			return nil
		},
	}

	var (
		name string
		port int
		tls  bool
	)
	announce := &cobra.Command{
		Use:   "announce",
		Short: "Advertise a local development backend until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port <= 0 {
				return errors.New("--port is required")
			}
			broadcaster, err := discovery.Announce(discovery.Config{
				InstanceName: name,
				Port:         port,
				TLS:          tls,
			})
			if err != nil {
				return err
			}
			defer broadcaster.Stop()

			c.logger.Info("announcing backend", zap.String("instance", name), zap.Int("port", port))
			c.printf("Announcing %s on port %d. Press Ctrl+C to stop.\n", Styles.Bold.Render(name), port)
			<-cmd.Context().Done()
			return nil
		},
	}
	announce.Flags().StringVar(&name, "name", "swipechat-dev", "instance name")
	announce.Flags().IntVar(&port, "port", 0, "backend port")
	announce.Flags().BoolVar(&tls, "tls", false, "backend serves https and wss")

	cmd.AddCommand(announce)
	return cmd
}

func renderServers(servers []discovery.Server) string {
	if len(servers) == 0 {
		return Styles.Muted.Render("No servers found.") + "\n"
	}
	var b strings.Builder
	for _, s := range servers {
		fmt.Fprintf(&b, "%s  %s  %s\n", Styles.Bold.Render(s.Instance), s.BaseURL(), Styles.Muted.Render(s.SocketURL()))
	}
	return b.String()
}
