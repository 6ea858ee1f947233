package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opd-ai/wireline"
	"github.com/opd-ai/wireline/codec"
	"github.com/opd-ai/wireline/connection"
	"github.com/opd-ai/wireline/messaging"
)

// config is the file-backed configuration, overridable by flags.
type config struct {
	Endpoint      string `mapstructure:"endpoint"`
	Token         string `mapstructure:"token"`
	EncryptionKey string `mapstructure:"encryption_key"`
	Secretbox     bool   `mapstructure:"secretbox"`
	QueueCapacity int    `mapstructure:"queue_capacity"`
	MaxAttempts   int    `mapstructure:"max_attempts"`
	BaseDelay     string `mapstructure:"base_delay"`
	MaxDelay      string `mapstructure:"max_delay"`
	LogLevel      string `mapstructure:"log_level"`
}

var (
	cfgFile       string
	flagEndpoint  string
	flagToken     string
	flagKey       string
	flagSecretbox bool
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "wirechat",
	Short: "Interactive chat client over a resilient wireline connection",
	Long: `Wirechat connects to a chat endpoint and keeps the session alive:
it reconnects with backoff when the connection drops, queues messages
typed while offline, and lets you retry messages that failed to send.

Type a line to send it. Commands:
  /state        show the connection state
  /history      show all messages seen this session
  /failed       list messages awaiting retry
  /retry <id>   retry a failed message
  /quit         disconnect and exit`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default searches ./wirechat.yaml, ~/.wirechat/wirechat.yaml)")
	rootCmd.Flags().StringVar(&flagEndpoint, "endpoint", "", "connection URI (ws:// or wss://)")
	rootCmd.Flags().StringVar(&flagToken, "token", "", "auth token, sent as the token query parameter")
	rootCmd.Flags().StringVar(&flagKey, "key", "", "encryption key for the wire transform")
	rootCmd.Flags().BoolVar(&flagSecretbox, "secretbox", false, "use authenticated NaCl encryption instead of obfuscation")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config, error) {
	viper.SetConfigType("yaml")
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("wirechat")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.wirechat")
	}
	viper.SetEnvPrefix("wirechat")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing default config is fine; flags may carry everything.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg config
	if err := viper.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	if flagEndpoint != "" {
		cfg.Endpoint = flagEndpoint
	}
	if flagToken != "" {
		cfg.Token = flagToken
	}
	if flagKey != "" {
		cfg.EncryptionKey = flagKey
	}
	if flagSecretbox {
		cfg.Secretbox = true
	}
	if cfg.Endpoint == "" {
		return fmt.Errorf("no endpoint configured (use --endpoint or a config file)")
	}

	log := buildLogger(cfg)
	opts, err := buildOptions(cfg, log)
	if err != nil {
		return err
	}

	client, err := wireline.New(opts)
	if err != nil {
		return err
	}
	defer client.Close()

	client.OnStateChange(func(change connection.Change) {
		switch change.State {
		case connection.StateReconnecting:
			fmt.Printf("-- connection lost, reconnecting (attempt %d)\n", change.Attempt)
		case connection.StateFailed:
			fmt.Printf("-- connection failed: %v (type /quit or wait and press enter to retry)\n", change.Err)
		default:
			fmt.Printf("-- %s\n", change.State)
		}
	})
	client.OnMessage(func(m messaging.Message) {
		fmt.Printf("<peer> %s\n", m.Content)
	})
	client.OnMessageUpdate(func(m messaging.Message) {
		if m.DeliveryState == messaging.DeliveryFailed {
			fmt.Printf("!! message %s failed to send, /retry %s\n", shortID(m.ID), m.ID)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	lines := readLines(ctx)
	for {
		select {
		case sig := <-sigChan:
			log.WithFields(logrus.Fields{"signal": sig}).Info("shutting down")
			return client.Disconnect()
		case line, ok := <-lines:
			if !ok {
				return client.Disconnect()
			}
			if quit := handleLine(client, line); quit {
				return client.Disconnect()
			}
		}
	}
}

func buildLogger(cfg config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level := logrus.WarnLevel
	if cfg.LogLevel != "" {
		if parsed, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			level = parsed
		}
	}
	if flagVerbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	return log
}

func buildOptions(cfg config, log *logrus.Logger) (*wireline.Options, error) {
	opts := wireline.NewOptions()
	opts.Endpoint = cfg.Endpoint
	opts.AuthToken = cfg.Token
	opts.EncryptionKey = cfg.EncryptionKey
	opts.QueueCapacity = cfg.QueueCapacity
	opts.Logger = log

	if cfg.Secretbox {
		if cfg.EncryptionKey == "" {
			return nil, fmt.Errorf("secretbox requires an encryption key")
		}
		opts.Cipher = codec.NewSecretbox(cfg.EncryptionKey)
	}

	if cfg.MaxAttempts > 0 {
		opts.Retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay != "" {
		d, err := time.ParseDuration(cfg.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("base_delay: %w", err)
		}
		opts.Retry.BaseDelay = d
	}
	if cfg.MaxDelay != "" {
		d, err := time.ParseDuration(cfg.MaxDelay)
		if err != nil {
			return nil, fmt.Errorf("max_delay: %w", err)
		}
		opts.Retry.MaxDelay = d
	}
	return opts, nil
}

// handleLine sends one input line or runs a slash command. It reports
// whether the user asked to quit.
func handleLine(client *wireline.Client, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "/quit" || line == "/q":
		return true
	case line == "/state":
		stats := client.Stats()
		fmt.Printf("-- %s (queued %d, failed %d)\n", stats.State, stats.Queued, stats.Failed)
	case line == "/history":
		printHistory(client)
	case line == "/failed":
		printFailed(client)
	case strings.HasPrefix(line, "/retry "):
		id := strings.TrimSpace(strings.TrimPrefix(line, "/retry "))
		if err := client.Retry(id); err != nil {
			fmt.Printf("!! retry %s: %v\n", shortID(id), err)
		}
	case strings.HasPrefix(line, "/"):
		fmt.Printf("!! unknown command %q\n", line)
	default:
		if _, err := client.Submit(line); err != nil {
			fmt.Printf("!! %v\n", err)
		}
	}
	return false
}

func printHistory(client *wireline.Client) {
	history := client.History()
	if len(history) == 0 {
		fmt.Println("-- no messages yet")
		return
	}
	for _, m := range history {
		who := "you"
		if m.Role == messaging.RoleRemote {
			who = "peer"
		}
		fmt.Printf("[%s] <%s> %s (%s)\n",
			m.CreatedAt.Local().Format("15:04:05"), who, m.Content, m.DeliveryState)
	}
}

func printFailed(client *wireline.Client) {
	failed := client.FailedMessages()
	if len(failed) == 0 {
		fmt.Println("-- nothing awaiting retry")
		return
	}
	for _, m := range failed {
		fmt.Printf("%s  %q (retries %d)\n", m.ID, m.Content, m.RetryCount)
	}
}

// readLines pumps stdin lines into a channel and closes it on EOF.
func readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
