package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"wormhole/internal/app"
	"wormhole/internal/config"
	"wormhole/internal/history"
	"wormhole/internal/logging"
	"wormhole/internal/processor"
	"wormhole/internal/transfer"
	"wormhole/internal/transport"
	"wormhole/internal/ui"
	"wormhole/internal/wormhole"
)

var (
	cfg     *config.Config
	log     *logrus.Logger
	cfgFile string
	debug   bool

	v = viper.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wormhole",
	Short: "Send files and text between computers with a short code",
	Long: `wormhole transfers a file or a text message between two computers.

The sender gets a short code such as 7-guitarist-revenge. Whoever types the
same code on the other machine receives the payload over an encrypted
peer-to-peer WebRTC connection. The code is only used once.

Usage:
  Send a file:       wormhole send --file /path/to/file
  Send a message:    wormhole send --text "hello"
  Receive:           wormhole receive 7-guitarist-revenge`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initConfig()

		log = logging.New(debug, os.Stderr)
		if !debug {
			log.SetLevel(logrus.WarnLevel)
		}

		loaded, err := config.Load(v)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.wormhole.yaml)")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.String("mailbox", "", "Mailbox (Firebase Realtime Database) URL")
	flags.String("relay", config.DefaultRelayURL, "STUN/TURN server used to reach the peer")
	flags.String("app-id", config.DefaultAppID, "Application namespace, both sides must use the same")
	flags.Int("code-length", config.DefaultCodeLength, "Number of words in generated codes")
	flags.String("history", defaultHistoryPath(), "Directory of the transfer history database, empty to disable")

	_ = v.BindPFlag(config.KeyMailboxURL, flags.Lookup("mailbox"))
	_ = v.BindPFlag(config.KeyRelayURL, flags.Lookup("relay"))
	_ = v.BindPFlag(config.KeyAppID, flags.Lookup("app-id"))
	_ = v.BindPFlag(config.KeyCodeLength, flags.Lookup("code-length"))
	_ = v.BindPFlag(config.KeyHistoryPath, flags.Lookup("history"))

	// WORMHOLE_MAILBOX_URL, WORMHOLE_TRANSFER_CHUNK_SIZE, ...
	v.SetEnvPrefix("WORMHOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".wormhole", "history")
}

// initConfig reads .env, the config file and environment variables
func initConfig() {
	// A missing .env is fine
	_ = godotenv.Load()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".wormhole")
	}

	if err := v.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", v.ConfigFileUsed())
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := fang.Execute(createContext(), rootCmd); err != nil {
		os.Exit(1)
	}
}

// createContext creates a context that cancels on interrupt signals
func createContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	return ctx
}

// services are shared by send and receive
type services struct {
	orchestrator *transfer.Orchestrator
	files        *processor.FileService
	ui           *ui.ConsoleUI
	history      app.HistoryRecorder
	close        func()
}

// createServices creates and wires up all the application services
func createServices(ctx context.Context) (*services, error) {
	tr, err := transport.NewDefaultWebRTCTransport(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	s := &services{
		orchestrator: transfer.New(cfg, wormhole.NewManager(cfg, tr, log), log),
		files:        processor.NewFileService(log),
		ui:           ui.NewConsoleUI(os.Stdin, os.Stdout, os.Stderr),
		close:        func() {},
	}

	if path := cfg.HistoryPath(); path != "" {
		store, err := history.Open(path)
		if err != nil {
			// History is a convenience, transfers work without it
			log.WithError(err).Warn("Transfer history disabled")
			return s, nil
		}
		s.history = store
		s.close = func() {
			if err := store.Close(); err != nil {
				log.WithError(err).Warn("Failed to close history")
			}
		}
	}
	return s, nil
}
