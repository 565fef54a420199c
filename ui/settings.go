package ui

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"swipechat/config"
)

type settingsFlags struct {
	apiURL        string
	socketURL     string
	sendTransport string
	logLevel      string
	autoMarkSeen  bool
	discovery     bool
}

func (c *controller) settingsCommand() *cobra.Command {
	var flags settingsFlags

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show the effective settings, or change the saved ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := cmd.Flags().NFlag() > 0
			if changed {
				if err := c.saveSettings(cmd, flags); err != nil {
					return err
				}
			}
			c.printf("%s", renderSettings(c.cfg, c.cfgPath, c.dataDir))
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.apiURL, "api-url", "", "REST base URL")
	cmd.Flags().StringVar(&flags.socketURL, "socket-url", "", "event channel URL")
	cmd.Flags().StringVar(&flags.sendTransport, "send-transport", "", "socket or rest")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	cmd.Flags().BoolVar(&flags.autoMarkSeen, "auto-mark-seen", false, "mark messages seen while a conversation is open")
	cmd.Flags().BoolVar(&flags.discovery, "discovery", false, "find the backend via mDNS when no URL is set")
	return cmd
}

// saveSettings applies changed flags to the file on disk, leaving
// environment overrides out of it, then to the effective settings.
func (c *controller) saveSettings(cmd *cobra.Command, flags settingsFlags) error {
	saved, err := config.Load(c.cfgPath)
	if err != nil {
		return err
	}

	for _, cfg := range []*config.ClientConfig{saved, c.cfg} {
		f := cmd.Flags()
		if f.Changed("api-url") {
			cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(flags.apiURL), "/")
		}
		if f.Changed("socket-url") {
			cfg.SocketURL = strings.TrimSpace(flags.socketURL)
		}
		if f.Changed("send-transport") {
			transport := strings.ToLower(strings.TrimSpace(flags.sendTransport))
			if transport != config.SendTransportSocket && transport != config.SendTransportREST {
				return fmt.Errorf("send transport %q: want %s or %s", flags.sendTransport, config.SendTransportSocket, config.SendTransportREST)
			}
			cfg.SendTransport = transport
		}
		if f.Changed("log-level") {
			cfg.LogLevel = strings.ToLower(strings.TrimSpace(flags.logLevel))
		}
		if f.Changed("auto-mark-seen") {
			cfg.AutoMarkSeen = flags.autoMarkSeen
		}
		if f.Changed("discovery") {
			cfg.DiscoveryEnabled = flags.discovery
		}
	}

	return config.Save(c.cfgPath, saved)
}

func renderSettings(cfg *config.ClientConfig, cfgPath, dataDir string) string {
	var b strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&b, "%-17s%s\n", label+":", value)
	}
	row("Client ID", cfg.ClientID)
	row("API URL", orDiscovered(cfg.APIBaseURL))
	row("Socket URL", orDiscovered(cfg.SocketURL))
	row("Send Transport", cfg.SendTransport)
	row("Request Timeout", cfg.RequestTimeout().String())
	row("Typing Timeout", cfg.TypingTimeout().String())
	row("Typing Idle", cfg.TypingIdle().String())
	row("Auto Mark Seen", fmt.Sprint(cfg.AutoMarkSeen))
	row("Discovery", fmt.Sprint(cfg.DiscoveryEnabled))
	row("Log Level", cfg.LogLevel)
	row("Config File", cfgPath)
	row("Data Directory", dataDir)
	return b.String()
}

func orDiscovered(value string) string {
	if value == "" {
		return "(discovered)"
	}
	return value
}
