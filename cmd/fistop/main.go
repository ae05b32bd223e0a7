// Package main provides the fistop CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/richinex/fistop/api"
	"github.com/richinex/fistop/cli"
	"github.com/richinex/fistop/dispatch"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	// Global flags
	configPath string
	dbPath     string
	driver     string
	apiURL     string
	logLevel   string
	verbose    bool
	raw        bool
	askToken   bool
)

var errSessionTokenOneShot = errors.New("a session token only lasts for one process: use 'token set --persistent', the global --token flag, or 'fistop shell'")

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fistop",
		Short: "Lookup client with a persistent result history",
		Long: `A command-line client for a lookup API (IP addresses, domains, hashes).

Every successful answer is kept in a local history backed by SQLite.
The access token lives in a session tier (this process) or a persistent
tier (the database); the persistent token wins when both are set.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default $FISTOP_CONFIG or fistop.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default .fistop/fistop.db)")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "SQLite driver: sqlite3 (cgo) or sqlite (pure Go)")
	rootCmd.PersistentFlags().StringVarP(&apiURL, "api", "a", "", "API address (default http://127.0.0.1:80)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")
	rootCmd.PersistentFlags().BoolVar(&raw, "raw", false, "Show only raw output")
	rootCmd.PersistentFlags().BoolVar(&askToken, "token", false, "Prompt for a token used only by this invocation")

	rootCmd.AddCommand(lookupCmd())
	rootCmd.AddCommand(detectCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(selectCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(clearCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(infoCmd())
	rootCmd.AddCommand(execCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(prefsCmd())
	rootCmd.AddCommand(termsCmd())
	rootCmd.AddCommand(shellCmd())

	return rootCmd
}

// withApp opens the environment, runs fn and closes it again.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *cli.App) error) error {
	ctx := cmd.Context()
	var tok string
	if askToken {
		var err error
		if tok, err = promptToken(cmd); err != nil {
			return err
		}
	}
	app, err := cli.Open(ctx, cli.Options{
		ConfigPath: configPath,
		DBPath:     dbPath,
		Driver:     driver,
		APIURL:     apiURL,
		LogLevel:   logLevel,
		Verbose:    verbose,
		Raw:        raw,
		Token:      tok,
		Out:        cmd.OutOrStdout(),
		Err:        cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

// promptToken asks for a token on stderr. A terminal on stdin is read
// without echo; anything else is read up to the first newline, one byte at
// a time so that later readers of stdin see the rest.
func promptToken(cmd *cobra.Command) (string, error) {
	errOut := cmd.ErrOrStderr()
	fmt.Fprint(errOut, "Token: ")

	var (
		value string
		err   error
	)
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		var b []byte
		b, err = term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(errOut)
		value = string(b)
	} else {
		value, err = readLine(in)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New("token must not be empty")
	}
	return value, nil
}

func readLine(r io.Reader) (string, error) {
	var (
		sb  strings.Builder
		buf [1]byte
	)
	for {
		n, err := r.Read(buf[:])
		if n == 1 {
			if buf[0] == '\n' {
				return sb.String(), nil
			}
			sb.WriteByte(buf[0])
		}
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
	}
}

func lookupCmd() *cobra.Command {
	var requestType string

	cmd := &cobra.Command{
		Use:   "lookup [input...]",
		Short: "Look up one item or a space-separated list",
		Long: `Look up one item or a list of items separated by spaces.

With --type auto (the default) the request type is detected from the input:
ipv4, ipv6, sha256, md5, domain, or other. A list whose items do not all share
one type is sent as "other". Any other --type value is sent as given, which
also allows service IDs and group names.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.Lookup(ctx, strings.Join(args, " "), requestType)
			})
		},
	}

	cmd.Flags().StringVarP(&requestType, "type", "t", dispatch.Auto, "Request type or 'auto'")

	return cmd
}

func detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect [input...]",
		Short: "Show the detected type of input without sending it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.Detect(ctx, strings.Join(args, " "))
			})
		},
	}
}

func historyCmd() *cobra.Command {
	var asc, desc bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			order := ""
			switch {
			case asc:
				order = "asc"
			case desc:
				order = "desc"
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.History(ctx, order)
			})
		},
	}

	cmd.Flags().BoolVar(&asc, "asc", false, "Oldest first")
	cmd.Flags().BoolVar(&desc, "desc", false, "Newest first")
	cmd.MarkFlagsMutuallyExclusive("asc", "desc")

	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [index]",
		Short: "Print a stored result (default: the current one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var index *int
			if len(args) == 1 {
				i, err := parseIndex(args[0])
				if err != nil {
					return err
				}
				index = &i
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.Show(ctx, index)
			})
		},
	}
}

func selectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <index>",
		Short: "Make a stored result current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.Select(ctx, i)
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index>",
		Short: "Remove a stored result; later results move down by one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.Delete(ctx, i)
			})
		},
	}
}

func clearCmd() *cobra.Command {
	var resetPointer bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every stored result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.Clear(ctx, resetPointer)
			})
		},
	}

	cmd.Flags().BoolVar(&resetPointer, "reset-pointer", false, "Also reset the current pointer to 0")

	return cmd
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add [json|-]",
		Short: "Store a pasted result (reads stdin when the argument is '-' or missing)",
		Long: `Store a result that was obtained elsewhere.

The text must be valid JSON, optionally inside a markdown code block.
Anything else, including JSON surrounded by other text, is rejected and
nothing is stored.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) == 1 && args[0] != "-" {
				text = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = string(data)
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.Add(ctx, text)
			})
		},
	}
}

func searchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <pattern>",
		Short: "Search stored results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.Search(ctx, args[0], limit)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum matches to show")

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the API access token",
	}

	var persistent bool
	setCmd := &cobra.Command{
		Use:   "set <value>",
		Short: "Store the token in the database (requires --persistent)",
		Long: `Store the token in the database so later invocations use it.

Outside 'fistop shell' a session token would be gone when the command
exits, so --persistent is required. For a token that should not be saved,
pass the global --token flag to the command that needs it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !persistent {
				return errSessionTokenOneShot
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.TokenSet(ctx, args[0], persistent)
			})
		},
	}
	setCmd.Flags().BoolVar(&persistent, "persistent", false, "Store the token in the database")

	cmd.AddCommand(setCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the token from both tiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.TokenClear(ctx)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which tier the token comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.TokenStatus(ctx)
			})
		},
	})

	return cmd
}

func infoCmd() *cobra.Command {
	kinds := make([]string, 0, len(api.InfoKinds)+1)
	for _, k := range api.InfoKinds {
		kinds = append(kinds, string(k))
	}
	kinds = append(kinds, "all")

	return &cobra.Command{
		Use:       "info [kind]",
		Short:     "Fetch server information (" + strings.Join(kinds, ", ") + ")",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: kinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := "all"
			if len(args) == 1 {
				kind = args[0]
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.Info(ctx, kind)
			})
		},
	}
}

func execCmd() *cobra.Command {
	cmds := make([]string, 0, len(api.Commands))
	for _, c := range api.Commands {
		cmds = append(cmds, string(c))
	}

	return &cobra.Command{
		Use:       "exec <command>",
		Short:     "Send a server control command (" + strings.Join(cmds, ", ") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: cmds,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.Exec(ctx, args[0])
			})
		},
	}
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Server administration",
	}

	tokens := &cobra.Command{
		Use:   "tokens",
		Short: "Add, update or delete server-side tokens",
	}
	tokens.AddCommand(adminTokensCmd("put", "Add or update tokens", true))
	tokens.AddCommand(adminTokensCmd("delete", "Delete tokens", false))

	cmd.AddCommand(tokens)
	return cmd
}

func adminTokensCmd(use, short string, put bool) *cobra.Command {
	var (
		payload       api.TokensPayload
		userServices  []string
		groupServices []int
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload.GroupServices = groupServices
			payload.UserServices = serviceRefs(userServices)
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.AdminTokens(ctx, put, payload)
			})
		},
	}

	cmd.Flags().StringVar(&payload.Group, "group", "", "Group token")
	cmd.Flags().IntSliceVar(&groupServices, "group-services", nil, "Service IDs for the group token")
	cmd.Flags().StringVar(&payload.User, "user", "", "User token")
	cmd.Flags().StringSliceVar(&userServices, "user-services", nil, "Service IDs or group names for the user token")
	cmd.Flags().StringVar(&payload.Superuser, "superuser", "", "Superuser token")
	cmd.Flags().StringVar(&payload.Admin, "admin", "", "Admin token")

	return cmd
}

func prefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change saved preferences",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show every preference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.PrefsShow(ctx)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <name> [value]",
		Short: "Set order (asc|desc), detection (on|off), theme (light|dark) or api (URL, empty clears)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := ""
			if len(args) == 2 {
				value = args[1]
			}
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.PrefsSet(ctx, args[0], value)
			})
		},
	})

	return cmd
}

func termsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "terms",
		Short: "Terms of use",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "accept",
		Short: "Accept the terms of use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.AcceptTerms(ctx)
			})
		},
	})
	return cmd
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive session",
		Long: `Start an interactive session. Plain input is looked up with the selected
type; 'help' lists the other commands. A token set inside the shell stays in
the session tier until the shell exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *cli.App) error {
				return app.Shell(ctx, cmd.InOrStdin())
			})
		},
	}
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return i, nil
}

// serviceRefs keeps numeric service IDs as numbers and group names as strings.
func serviceRefs(refs []string) []any {
	if len(refs) == 0 {
		return nil
	}
	out := make([]any, 0, len(refs))
	for _, r := range refs {
		if n, err := strconv.Atoi(r); err == nil {
			out = append(out, n)
			continue
		}
		out = append(out, r)
	}
	return out
}
