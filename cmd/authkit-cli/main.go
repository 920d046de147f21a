// Command authkit-cli is a headless driver for the account SDK: it logs in,
// probes the session, inspects method availability, and redeems out-of-band
// confirmation links from the terminal. It doubles as a smoke test against a
// staging backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/finovia/authkit"
	"github.com/finovia/authkit/storage"
)

type cliConfig struct {
	APIURL      string        `env:"AUTHKIT_API_URL"`
	StateFile   string        `env:"AUTHKIT_STATE_FILE"`
	RedisAddr   string        `env:"AUTHKIT_REDIS_ADDR"`
	RedisPrefix string        `env:"AUTHKIT_REDIS_PREFIX" envDefault:"ak"`
	Timeout     time.Duration `env:"AUTHKIT_TIMEOUT" envDefault:"15s"`
	AppVersion  string        `env:"AUTHKIT_APP_VERSION" envDefault:"dev"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "authkit-cli:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: authkit-cli <login|check|methods|confirm|logout|whoami> [flags]")
	}

	// A missing .env file is fine; the environment may already be populated.
	_ = godotenv.Load()

	var cfg cliConfig
	if err := env.Parse(&cfg); err != nil {
		return err
	}
	if cfg.APIURL == "" {
		return errors.New("AUTHKIT_API_URL not set")
	}

	store, err := buildStorage(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := authkit.New().
		WithConfig(authkit.Config{
			API:     authkit.APIConfig{BaseURL: cfg.APIURL, Timeout: cfg.Timeout},
			Session: authkit.SessionConfig{ExpiryLeeway: 30 * time.Second},
			Device:  authkit.DeviceConfig{AppVersion: cfg.AppVersion},
		}).
		WithStorage(store).
		Build(ctx)
	if err != nil {
		return err
	}

	switch args[0] {
	case "login":
		return cmdLogin(ctx, client, args[1:])
	case "check":
		return cmdCheck(ctx, client)
	case "methods":
		return cmdMethods(ctx, client, args[1:])
	case "confirm":
		return cmdConfirm(ctx, client, args[1:])
	case "logout":
		return client.Logout(ctx)
	case "whoami":
		return cmdWhoami(client)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// buildStorage picks Redis when an address is configured (shared fleet
// session) and falls back to a per-user state file otherwise.
func buildStorage(cfg cliConfig) (storage.Store, error) {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return storage.NewRedis(client, cfg.RedisPrefix), nil
	}

	path := cfg.StateFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".authkit", "state.json")
	}
	return storage.NewFile(path)
}

func cmdLogin(ctx context.Context, client *authkit.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	desc, err := client.BuildDescriptor(ctx)
	if err != nil {
		return err
	}
	if err := client.Login(ctx, *email, *password, desc); err != nil {
		if errors.Is(err, authkit.ErrNewDeviceApproval) {
			fmt.Println("sign-in held: approve this device from the email we sent you, then run `authkit-cli check`")
			return nil
		}
		return err
	}
	fmt.Println("logged in as", *email, "device", desc.DeviceID[:12])
	return nil
}

func cmdCheck(ctx context.Context, client *authkit.Client) error {
	if client.CheckAuth(ctx) {
		fmt.Println("session valid")
	} else {
		fmt.Println("not authenticated")
	}
	return nil
}

func cmdMethods(ctx context.Context, client *authkit.Client, args []string) error {
	fs := flag.NewFlagSet("methods", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resolver := client.NewMethodResolver()
	affordance, err := resolver.SetEmail(ctx, *email)
	if err != nil {
		return err
	}
	fmt.Println("primary:", affordance.Primary)
	if affordance.PreferredBanner {
		fmt.Println("preferred by account settings")
	}
	for _, m := range affordance.More {
		fmt.Println("also available:", m)
	}
	return nil
}

func cmdConfirm(ctx context.Context, client *authkit.Client, args []string) error {
	fs := flag.NewFlagSet("confirm", flag.ExitOnError)
	flow := fs.String("flow", string(authkit.FlowNewDevice), "confirmation flow")
	link := fs.String("link", "", "inbound confirmation link")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result := client.NewConfirmation(authkit.ConfirmationFlow(*flow)).Redeem(ctx, *link)
	if result.State == authkit.ConfirmationSucceeded {
		fmt.Println("confirmed; continue at", result.Redirect)
		return nil
	}
	fmt.Println("confirmation failed; continue at", result.Redirect)
	return result.Err
}

func cmdWhoami(client *authkit.Client) error {
	user := client.CurrentUser()
	if user == nil {
		fmt.Println("not authenticated")
		return nil
	}
	fmt.Printf("%s %s <%s> (%s)\n", user.FirstName, user.LastName, user.Email, user.Role)
	return nil
}
