// Package commands implements the p21 CLI.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Sternrassler/p21-erp-client/internal/config"
	"github.com/Sternrassler/p21-erp-client/pkg/client"
	"github.com/Sternrassler/p21-erp-client/pkg/logging"
	"github.com/Sternrassler/p21-erp-client/pkg/session"
	"github.com/Sternrassler/p21-erp-client/pkg/transport"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// NewRootCommand builds the p21 command tree.
func NewRootCommand(version, commit string) *cobra.Command {
	root := &cobra.Command{
		Use:   "p21",
		Short: "Prophet 21 ERP REST client",
		Long: `Query, count, upload and scan Prophet 21 records over the REST API.

Settings come from --config (default $HOME/.p21/config.yml), P21_* environment
variables and flags, in increasing priority.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.p21/config.yml)")
	flags.StringP("endpoint", "e", "", "API entry point, e.g. https://p21.example.com:3443")
	flags.StringP("username", "u", "", "API username")
	flags.String("password", "", "API password (prompted when empty on a terminal)")
	flags.Bool("insecure-skip-verify", false, "skip TLS certificate verification")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.StringP("output", "o", outputJSON, "output format (json, yaml, table)")

	root.AddCommand(newLoginCommand())
	root.AddCommand(newCountCommand())
	root.AddCommand(newFindCommand())
	root.AddCommand(newScanCommand())
	root.AddCommand(newUploadCommand())

	return root
}

// loadConfig merges file, environment and flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	v := config.New(file)

	bindings := map[string]string{
		config.KeyEndpoint:           "endpoint",
		config.KeyUsername:           "username",
		config.KeyPassword:           "password",
		config.KeyInsecureSkipVerify: "insecure-skip-verify",
		config.KeyLogLevel:           "log-level",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	if err := config.Read(v, file != ""); err != nil {
		return nil, err
	}
	return config.FromViper(v)
}

// connection is an opened client plus what it was built from.
type connection struct {
	cfg    *config.Config
	client *client.Client
	redis  *redis.Client
}

func (c *connection) Close() {
	if c.redis != nil {
		c.redis.Close()
	}
}

// connect loads configuration and opens a session.
func connect(ctx context.Context, cmd *cobra.Command, tune func(*client.Config)) (*connection, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Output = cmd.ErrOrStderr()
	logging.Setup(logCfg)

	if cfg.Password == "" {
		if cfg.Password, err = promptPassword(cmd); err != nil {
			return nil, err
		}
	}

	conn := &connection{cfg: cfg}
	opts := []session.Option{session.WithLogger(logging.NewLogger(logging.ComponentSession))}
	if cfg.RedisAddr != "" {
		conn.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		opts = append(opts, session.WithStore(session.NewRedisStore(conn.redis, cfg.TokenTTL)))
	}

	tr := transport.NewHTTP(cfg.TransportConfig())
	sess := session.New(tr, opts...)
	if err := sess.Open(ctx, cfg.Credentials(), cfg.Endpoint); err != nil {
		conn.Close()
		return nil, err
	}

	clientCfg := client.DefaultConfig()
	clientCfg.PageSize = cfg.PageSize
	clientCfg.Logger = logging.NewLogger(logging.ComponentClient)
	if tune != nil {
		tune(&clientCfg)
	}

	conn.client, err = client.New(sess, tr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func promptPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}

	return readPassword(cmd.ErrOrStderr(), func() ([]byte, error) {
		return term.ReadPassword(fd)
	})
}

// readPassword prompts on w and returns the secret exactly as typed.
func readPassword(w io.Writer, read func() ([]byte, error)) (string, error) {
	fmt.Fprint(w, "P21 password: ")
	password, err := read()
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}
