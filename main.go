package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"authapp/internal/app"
	"authapp/internal/config"
	"authapp/pkg/logger"

	"golang.org/x/term"
)

const superuserPasswordEnv = "AUTHAPP_SUPERUSER_PASSWORD"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	command, args := splitCommand(args)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)

	switch command {
	case "serve":
		return serve(cfg, log)
	case "createsuperuser":
		opts, err := parseSuperuserFlags(args, os.Stderr)
		if err != nil {
			return err
		}
		return createSuperuser(cfg, log, opts)
	default:
		return fmt.Errorf("unknown command %q (expected serve or createsuperuser)", command)
	}
}

// splitCommand returns the subcommand, defaulting to serve, and its flags.
func splitCommand(args []string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "serve", args
	}
	return args[0], args[1:]
}

func serve(cfg *config.Config, log logger.Logger) error {
	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// Graceful shutdown handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx)
}

type superuserOptions struct {
	Username string
	Password string
	NoInput  bool
}

func parseSuperuserFlags(args []string, output io.Writer) (superuserOptions, error) {
	var opts superuserOptions
	fs := flag.NewFlagSet("createsuperuser", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.Username, "username", "", "username of the new administrator")
	fs.StringVar(&opts.Password, "password", "", "password (defaults to $"+superuserPasswordEnv+" or a prompt)")
	fs.BoolVar(&opts.NoInput, "no-input", false, "never prompt; without a password the account cannot log in")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if strings.TrimSpace(opts.Username) == "" {
		return opts, errors.New("createsuperuser: -username is required")
	}
	return opts, nil
}

// resolvePassword picks the flag value, then the environment, then prompt.
// With NoInput set an empty password is returned instead of prompting.
func resolvePassword(opts superuserOptions, getenv func(string) string, prompt func() (string, error)) (string, error) {
	if opts.Password != "" {
		return opts.Password, nil
	}
	if pw := getenv(superuserPasswordEnv); pw != "" {
		return pw, nil
	}
	if opts.NoInput {
		return "", nil
	}
	return prompt()
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no password given: use -password, $%s or -no-input", superuserPasswordEnv)
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Fprint(os.Stderr, "Password (again): ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords didn't match")
	}
	if len(first) == 0 {
		return "", errors.New("blank passwords aren't allowed")
	}
	return string(first), nil
}

func createSuperuser(cfg *config.Config, log logger.Logger, opts superuserOptions) error {
	password, err := resolvePassword(opts, os.Getenv, promptPassword)
	if err != nil {
		return err
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.Accounts.CreateSuperuser(opts.Username, password)
	if err != nil {
		return err
	}

	fmt.Printf("Superuser %s created (id %d).\n", user.Username, user.ID)
	if !user.HasUsablePassword() {
		fmt.Println("No password was set; the account cannot log in until one is.")
	}
	return nil
}
