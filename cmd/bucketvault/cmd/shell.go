package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmcleod/bucketvault/gateway"
	"github.com/jmcleod/bucketvault/internal/util"
	"github.com/jmcleod/bucketvault/record"
	"github.com/jmcleod/bucketvault/sanitize"
	"github.com/jmcleod/bucketvault/session"
	boltstore "github.com/jmcleod/bucketvault/storage/bbolt"
	"github.com/jmcleod/bucketvault/storage/memory"
	"github.com/jmcleod/bucketvault/vault"
)

const prompt = "bucketvault> "

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive vault session",
	Long: `Start an interactive session. The shell owns the transient store: the
vault key and session token exist only while it runs. Credentials saved in
one shell cannot be read by the next; log in again after restarting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir := viper.GetString("data.dir")
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		durable, err := boltstore.NewStoreFromFile(filepath.Join(dataDir, "bucketvault.db"), viper.GetString("data.scope"), nil)
		if err != nil {
			return fmt.Errorf("failed to open durable store: %w", err)
		}
		defer durable.Close()

		opts, err := vaultOptions()
		if err != nil {
			return err
		}
		v := vault.New(memory.NewStore(), durable, opts...)

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		if err := v.EnsureAuthReady(ctx); err != nil {
			return err
		}
		go v.Watch(ctx)

		if !viper.GetBool("shell.quiet") {
			printBanner(cmd.OutOrStdout())
		}
		err = newShell(v, cmd.InOrStdin(), cmd.OutOrStdout()).run(ctx)
		// The durable half of the session is unreadable once we exit.
		if clearErr := v.Clear(context.WithoutCancel(ctx)); clearErr != nil {
			clog.FromContext(ctx).WarnContext(ctx, "clearing vault on exit", "error", clearErr)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)

	defaultDir := ".bucketvault"
	if home, err := os.UserHomeDir(); err == nil {
		defaultDir = filepath.Join(home, ".bucketvault")
	}
	shellCmd.Flags().String("data-dir", defaultDir, "directory for the durable store")
	shellCmd.Flags().String("scope", boltstore.DefaultScope, "durable store scope")
	shellCmd.Flags().Duration("idle-timeout", session.DefaultIdleTimeout, "session idle timeout")
	shellCmd.Flags().Duration("check-interval", session.DefaultCheckInterval, "expiry check interval")
	shellCmd.Flags().String("scheme", string(util.SchemeAES256GCM), "credential cipher (aes256gcm, chacha20poly1305); must match the scheme that sealed the stored credential")
	shellCmd.Flags().BoolP("quiet", "q", false, "do not print the banner")

	bindFlagOrPanic(shellCmd, "data.dir", "data-dir")
	bindFlagOrPanic(shellCmd, "data.scope", "scope")
	bindFlagOrPanic(shellCmd, "session.idle_timeout", "idle-timeout")
	bindFlagOrPanic(shellCmd, "session.check_interval", "check-interval")
	bindFlagOrPanic(shellCmd, "cipher.scheme", "scheme")
	bindFlagOrPanic(shellCmd, "shell.quiet", "quiet")
}

func vaultOptions() ([]vault.Option, error) {
	scheme := util.Scheme(viper.GetString("cipher.scheme"))
	switch scheme {
	case util.SchemeAES256GCM, util.SchemeChaCha20Poly1305:
	default:
		return nil, fmt.Errorf("unsupported cipher scheme %q", scheme)
	}
	idle := viper.GetDuration("session.idle_timeout")
	check := viper.GetDuration("session.check_interval")
	if idle <= 0 || check <= 0 {
		return nil, fmt.Errorf("session timeouts must be positive")
	}
	if check > idle {
		return nil, fmt.Errorf("check interval %s exceeds idle timeout %s", check, idle)
	}
	return []vault.Option{
		vault.WithScheme(scheme),
		vault.WithIdleTimeout(idle),
		vault.WithCheckInterval(check),
		vault.WithAlertFunc(func(e vault.AlertEvent) {
			fmt.Fprintf(os.Stderr, "security alert: %s (%d events)\n", e.Message, e.Count)
		}),
	}, nil
}

type shell struct {
	v   *vault.Vault
	in  *bufio.Scanner
	out io.Writer
}

func newShell(v *vault.Vault, in io.Reader, out io.Writer) *shell {
	return &shell{v: v, in: bufio.NewScanner(in), out: out}
}

func (s *shell) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(s.out, prompt)
		line, ok := s.readLine()
		if !ok {
			fmt.Fprintln(s.out)
			return s.in.Err()
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" || fields[0] == "quit" {
			return nil
		}
		if err := s.v.TouchSession(ctx, session.EventCommand); err != nil {
			clog.FromContext(ctx).WarnContext(ctx, "recording activity", "error", err)
		}
		if err := s.exec(ctx, fields[0], fields[1:]); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

func (s *shell) readLine() (string, bool) {
	if !s.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.in.Text()), true
}

func (s *shell) exec(ctx context.Context, name string, args []string) error {
	switch name {
	case "help":
		s.help()
		return nil
	case "login":
		return s.login(ctx, args)
	case "whoami":
		return s.whoami(ctx)
	case "status":
		return s.status()
	case "bucket":
		return s.bucket(ctx, args)
	case "addr":
		return s.addr(ctx, args)
	case "client":
		return s.client(ctx)
	case "logout":
		if err := s.v.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "logged out")
		return nil
	case "clear":
		if err := s.v.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "vault cleared")
		return nil
	default:
		return fmt.Errorf("unknown command %q (try help)", sanitize.Printable(name))
	}
}

func (s *shell) help() {
	fmt.Fprint(s.out, `commands:
  login <access-key-id>            store a credential (prompts for the secret)
  whoami                           show the active access key ID (masked)
  status                           show session state as JSON
  bucket [<name> <region> [url]]   show or set the bucket configuration
  addr <path>                      sanitize a path into an object address
  client                           build a storage client from the vault
  logout                           log out and purge the vault
  clear                            purge the vault
  exit                             leave the shell
`)
}

func (s *shell) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: login <access-key-id>")
	}
	fmt.Fprint(s.out, "secret access key: ")
	secret, ok := s.readLine()
	if !ok {
		return fmt.Errorf("no secret provided")
	}
	fmt.Fprint(s.out, "session token (blank for none): ")
	token, _ := s.readLine()

	c := record.Credential{AccessKeyID: args[0], SecretAccessKey: secret, SessionToken: token}
	if err := s.v.Login(ctx, c); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "logged in as %s\n", c.MaskedAccessKeyID())
	return nil
}

func (s *shell) whoami(ctx context.Context) error {
	c, err := s.v.CurrentCredential(ctx)
	if err != nil {
		return err
	}
	if c == nil {
		fmt.Fprintln(s.out, "not logged in")
		return nil
	}
	fmt.Fprintln(s.out, c.MaskedAccessKeyID())
	return nil
}

func (s *shell) status() error {
	data, err := json.MarshalIndent(s.v.Status(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, string(data))
	return nil
}

func (s *shell) bucket(ctx context.Context, args []string) error {
	switch len(args) {
	case 0:
		b, err := s.v.Bucket(ctx)
		if err != nil {
			return err
		}
		if b == nil {
			fmt.Fprintln(s.out, "no bucket configured")
			return nil
		}
		fmt.Fprintf(s.out, "%s (%s)", sanitize.Printable(b.Bucket), sanitize.Printable(b.Region))
		if b.Endpoint != "" {
			fmt.Fprintf(s.out, " at %s", sanitize.Printable(b.Endpoint))
		}
		fmt.Fprintln(s.out)
		return nil
	case 2, 3:
		cfg := record.BucketConfig{Bucket: args[0], Region: args[1]}
		if len(args) == 3 {
			cfg.Endpoint = args[2]
		}
		if err := s.v.SaveBucket(ctx, cfg); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "bucket saved")
		return nil
	default:
		return fmt.Errorf("usage: bucket [<name> <region> [endpoint]]")
	}
}

func (s *shell) addr(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: addr <path>")
	}
	cfg, err := s.requireBucket(ctx)
	if err != nil {
		return err
	}
	a, err := gateway.ObjectAddress(*cfg, args[0])
	if err != nil {
		return err
	}
	kind := "object"
	if a.IsPrefix() {
		kind = "prefix"
	}
	fmt.Fprintf(s.out, "%s %s\n", kind, sanitize.Printable(a.String()))
	return nil
}

func (s *shell) client(ctx context.Context) error {
	cfg, err := s.requireBucket(ctx)
	if err != nil {
		return err
	}
	c, err := gateway.NewClient(ctx, s.v, *cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "client ready for %s\n", sanitize.Printable(c.EndpointURL().String()))
	return nil
}

func (s *shell) requireBucket(ctx context.Context) (*record.BucketConfig, error) {
	cfg, err := s.v.Bucket(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("no bucket configured (use: bucket <name> <region>)")
	}
	return cfg, nil
}
