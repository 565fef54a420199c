// Package ui is the terminal front end. Commands render engine view models
// and forward user intents; they never talk to the event channel directly.
package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swipechat/config"
	"swipechat/discovery"
	"swipechat/engine"
	"swipechat/errs"
	"swipechat/models"
	"swipechat/network"
	"swipechat/storage"
)

// ErrNotSignedIn is returned by commands that need a stored session.
var ErrNotSignedIn = errors.New("not signed in; run `swipechat login` first")

type controller struct {
	cfg     *config.ClientConfig
	cfgPath string
	dataDir string
	store   *storage.Store
	logger  *zap.Logger

	// lookup finds backends when discovery is enabled.
	lookup func(ctx context.Context) ([]discovery.Server, error)

	out   io.Writer
	outMu sync.Mutex
	in    *bufio.Reader

	shutdownOnce sync.Once
}

// Execute runs the CLI on the process stdio until it finishes or the
// process receives SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, c := newRootCommand(os.Stdout, os.Stdin)
	defer c.shutdown()
	return root.ExecuteContext(ctx)
}

func newRootCommand(out io.Writer, in io.Reader) (*cobra.Command, *controller) {
	c := &controller{
		out: out,
		in:  bufio.NewReader(in),
	}
	c.lookup = func(ctx context.Context) ([]discovery.Server, error) {
		return discovery.Lookup(ctx, discovery.Config{})
	}

	root := &cobra.Command{
		Use:           "swipechat",
		Short:         "Terminal client for swipechat conversations",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.start()
		},
	}
	root.SetOut(out)
	root.SetErr(out)
	root.SetIn(in)

	root.AddCommand(
		c.loginCommand(),
		c.logoutCommand(),
		c.conversationsCommand(),
		c.chatCommand(),
		c.usersCommand(),
		c.likeCommand(),
		c.watchCommand(),
		c.draftsCommand(),
		c.serversCommand(),
		c.settingsCommand(),
	)
	return root, c
}

func (c *controller) start() error {
	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	c.cfgPath = cfgPath
	c.dataDir = filepath.Dir(cfgPath)

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	c.logger = logger.With(zap.String("client_id", cfg.ClientID))

	store, dbPath, err := storage.Open(c.dataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	c.store = store
	c.logger.Debug("storage ready", zap.String("path", dbPath))
	return nil
}

func (c *controller) shutdown() {
	c.shutdownOnce.Do(func() {
		if c.store != nil {
			if err := c.store.Close(); err != nil && c.logger != nil {
				c.logger.Warn("database close error", zap.Error(err))
			}
		}
		if c.logger != nil {
			_ = c.logger.Sync()
		}
	})
}

func (c *controller) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *controller) println(args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, args...)
}

// resolveEndpoints fills the API and socket URLs from mDNS when discovery is
// enabled and nothing is configured. The result is not persisted.
func (c *controller) resolveEndpoints(ctx context.Context) error {
	if c.cfg.APIBaseURL != "" && c.cfg.SocketURL != "" {
		return nil
	}
	if !c.cfg.DiscoveryEnabled {
		return errors.New("no API URL configured")
	}

	servers, err := c.lookup(ctx)
	if err != nil {
		return fmt.Errorf("discover server: %w", err)
	}
	if len(servers) == 0 {
		return errors.New("no swipechat server found on the local network")
	}

	server := servers[0]
	if c.cfg.APIBaseURL == "" {
		c.cfg.APIBaseURL = server.BaseURL()
	}
	if c.cfg.SocketURL == "" {
		c.cfg.SocketURL = server.SocketURL()
	}
	c.logger.Info("using discovered server",
		zap.String("instance", server.Instance),
		zap.String("api", c.cfg.APIBaseURL),
	)
	return nil
}

func (c *controller) restClient(ctx context.Context, token string) (*network.Client, error) {
	if err := c.resolveEndpoints(ctx); err != nil {
		return nil, err
	}
	return network.NewClient(network.ClientOptions{
		BaseURL: c.cfg.APIBaseURL,
		Token:   token,
		Timeout: c.cfg.RequestTimeout(),
		Logger:  c.logger,
	})
}

func (c *controller) requireSession() (*storage.Session, error) {
	session, err := c.store.LoadSession()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotSignedIn
	}
	if err != nil {
		return nil, err
	}
	if session.Expired(time.Now().UnixMilli()) {
		return nil, fmt.Errorf("session expired: %w", ErrNotSignedIn)
	}
	return session, nil
}

func (c *controller) newEngine(session *storage.Session, api engine.API, emitter engine.Emitter) (*engine.Engine, error) {
	return engine.New(engine.Options{
		Self:          models.User{ID: session.UserID, Name: session.Name, Email: session.Email},
		API:           api,
		Emitter:       emitter,
		Receipts:      c.store,
		Logger:        c.logger,
		TypingTTL:     c.cfg.TypingTimeout(),
		TypingIdle:    c.cfg.TypingIdle(),
		SendTransport: c.cfg.SendTransport,
		SendTimeout:   c.cfg.RequestTimeout(),
		AutoMarkSeen:  c.cfg.AutoMarkSeen,
		OnSendFailure: c.keepDraft,
	})
}

// liveSession is an engine fed by a connected event channel.
type liveSession struct {
	engine *engine.Engine
	socket *network.Socket
	done   chan struct{}
}

func (c *controller) connect(ctx context.Context) (*liveSession, error) {
	session, err := c.requireSession()
	if err != nil {
		return nil, err
	}
	client, err := c.restClient(ctx, session.AccessToken)
	if err != nil {
		return nil, err
	}
	socket, err := network.NewSocket(network.SocketOptions{
		URL:    c.cfg.SocketURL,
		Token:  session.AccessToken,
		Logger: c.logger,
	})
	if err != nil {
		return nil, err
	}
	eng, err := c.newEngine(session, client, socket)
	if err != nil {
		return nil, err
	}

	if err := socket.Connect(ctx); err != nil {
		eng.Shutdown()
		return nil, fmt.Errorf("connect event channel: %w", err)
	}
	if err := eng.AnnouncePresence(ctx); err != nil {
		c.logger.Warn("presence not announced", zap.Error(err))
	}

	live := &liveSession{engine: eng, socket: socket, done: make(chan struct{})}
	go func() {
		defer close(live.done)
		_ = eng.Run(ctx, socket.Events())
	}()

	if err := eng.LoadConversations(ctx); err != nil {
		live.close()
		return nil, err
	}
	return live, nil
}

func (l *liveSession) close() {
	l.engine.Shutdown()
	_ = l.socket.Disconnect()
	<-l.done
}

// keepDraft stores the text of a message that could not be sent.
func (c *controller) keepDraft(failure *errs.SendFailure) {
	draft := storage.Draft{
		DraftID:        failure.ProvisionalID,
		ConversationID: failure.ConversationID,
		Content:        failure.Text,
		Failure:        failure.Err.Error(),
	}
	if err := c.store.SaveDraft(draft); err != nil {
		c.logger.Error("draft not saved", zap.String("draft_id", draft.DraftID), zap.Error(err))
		c.printf("%s message not sent: %q\n", Styles.Error.Render("✗"), failure.Text)
		return
	}
	c.printf("%s message not sent, kept as draft %s\n", Styles.Error.Render("✗"), draft.DraftID)
}

// offlineEmitter backs engines that only read REST snapshots.
type offlineEmitter struct{}

func (offlineEmitter) Emit(context.Context, string, any) error {
	return network.ErrNotConnected
}
