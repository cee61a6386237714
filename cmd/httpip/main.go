package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/abczzz13/httpip"
	"github.com/abczzz13/httpip/internal/config"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(logger).Run(ctx, os.Args); err != nil {
		logger.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "httpip",
		Usage: "Resolve client addresses from forwarding headers",
		Commands: []*cli.Command{
			{
				Name:      "resolve",
				Usage:     "Print the client address of each header value",
				ArgsUsage: "[HEADER_VALUE...]",
				Flags: []cli.Flag{
					newConfigFlag(),
					newTrustedFlag(),
					newPolicyFlag(),
					&cli.StringFlag{
						Name:  "header",
						Value: httpip.HeaderXForwardedFor,
						Usage: "Header the values belong to: X-Forwarded-For or Forwarded",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runResolve(ctx, cmd, logger)
				},
			},
			{
				Name:      "contains",
				Usage:     "Report whether each address is inside a CIDR",
				ArgsUsage: "CIDR ADDR...",
				Action:    runContains,
			},
			newServeCommand(logger),
			{
				Name:  "check-config",
				Usage: "Validate a trusted proxy configuration file",
				Flags: []cli.Flag{
					newConfigFlag(),
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runCheckConfig(ctx, cmd, logger)
				},
			},
		},
	}
}

func newConfigFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to a YAML trusted proxy configuration file",
		Sources: cli.EnvVars("HTTPIP_CONFIG"),
	}
}

func newTrustedFlag() *cli.StringSliceFlag {
	return &cli.StringSliceFlag{
		Name:    "trusted",
		Aliases: []string{"t"},
		Usage:   "Trusted proxy CIDR, repeatable or comma-separated",
		Sources: cli.EnvVars("HTTPIP_TRUSTED"),
	}
}

func newPolicyFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "policy",
		Aliases: []string{"p"},
		Usage:   "What to do with malformed chain entries: skip or abort",
	}
}

func runResolve(ctx context.Context, cmd *cli.Command, logger *slog.Logger) error {
	opts, err := resolverOptions(cmd, logger)
	if err != nil {
		return err
	}

	header := cmd.String("header")
	opts = append(opts, httpip.Priority(header))

	resolver, err := httpip.New(opts...)
	if err != nil {
		return err
	}

	values := cmd.Args().Slice()
	if len(values) == 0 {
		values, err = readLines(input(cmd))
		if err != nil {
			return fmt.Errorf("failed to read header values: %w", err)
		}
	}

	out := output(cmd)
	failed := 0
	for _, value := range values {
		headers := httpip.HeaderGetterFunc(func(name string) (string, bool) {
			return value, strings.EqualFold(name, header)
		})

		resolution, err := resolver.Resolve(ctx, headers)
		if err != nil {
			failed++
			logger.ErrorContext(ctx, "unresolved header value", "value", value, "error", err)
			continue
		}
		fmt.Fprintln(out, resolution.Addr)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d header values could not be resolved", failed, len(values))
	}
	return nil
}

func runContains(_ context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) < 2 {
		return errors.New("usage: httpip contains CIDR ADDR...")
	}

	cidr, err := httpip.ParseCidr(args[0])
	if err != nil {
		return err
	}

	out := output(cmd)
	for _, arg := range args[1:] {
		addr, err := httpip.ParseAddr(arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%t\n", addr, cidr.Contains(addr))
	}

	return nil
}

func runCheckConfig(ctx context.Context, cmd *cli.Command, logger *slog.Logger) error {
	path := cmd.String("config")
	if path == "" {
		return errors.New("--config is required")
	}

	opts, err := loadConfigOptions(path)
	if err != nil {
		return err
	}

	if _, err := httpip.New(opts...); err != nil {
		return err
	}

	logger.InfoContext(ctx, "configuration is valid", "path", path)
	fmt.Fprintln(output(cmd), "OK")
	return nil
}

// resolverOptions collects resolver options from the config file, --trusted
// and --policy flags of cmd, in that order.
func resolverOptions(cmd *cli.Command, logger *slog.Logger) ([]httpip.Option, error) {
	opts := []httpip.Option{httpip.WithLogger(logger)}

	if path := cmd.String("config"); path != "" {
		fileOpts, err := loadConfigOptions(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fileOpts...)
	}

	if trusted := cmd.StringSlice("trusted"); len(trusted) > 0 {
		opts = append(opts, httpip.TrustedCidrs(trusted...))
	}

	if policyName := cmd.String("policy"); policyName != "" {
		policy, err := httpip.ParseMalformedPolicy(policyName)
		if err != nil {
			return nil, fmt.Errorf("invalid --policy: %w", err)
		}
		opts = append(opts, httpip.WithMalformedPolicy(policy))
	}

	return opts, nil
}

func loadConfigOptions(path string) ([]httpip.Option, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg.Options()
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}

	return lines, scanner.Err()
}

func input(cmd *cli.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}

func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
