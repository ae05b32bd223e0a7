package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/richinex/fistop/dispatch"
)

const shellHelp = `Commands:
  <input>                 look up input with the selected type
  type [name|auto]        show or change the selected type
  detect <input>          classify input without sending it
  history [asc|desc]      list stored results
  show [index]            print a result (default: current)
  select <index>          make a result current
  delete <index>          remove a result
  clear                   remove every result
  search <pattern>        search stored results
  token set <value>       set the session token
  token status            show where the token comes from
  token clear             remove the token from both tiers
  help                    show this help
  exit                    leave the shell`

// maxShellLine bounds one input line; pasted lists easily exceed the
// scanner's 64 KiB default.
const maxShellLine = 8 << 20

// Shell reads commands from in until EOF or exit. Tokens set here live in
// the session tier for as long as the loop runs.
func (a *App) Shell(ctx context.Context, in io.Reader) error {
	if !a.raw {
		fmt.Fprintf(a.out, "fistop shell on %s. Type 'help' for commands, 'exit' to quit.\n\n", a.client.BaseURL())
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxShellLine)
	for {
		if !a.raw {
			fmt.Fprint(a.out, a.styles.header.Render("fistop("+a.selected+")")+"> ")
		}
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		if err := a.runShellLine(ctx, line); err != nil {
			a.PrintError(err)
		}
	}
	return scanner.Err()
}

func (a *App) runShellLine(ctx context.Context, line string) error {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "help":
		fmt.Fprintln(a.out, shellHelp)
		return nil
	case "type":
		if rest == "" {
			fmt.Fprintln(a.out, a.selected)
			return nil
		}
		a.selected = strings.ToLower(rest)
		return nil
	case "detect":
		return a.Detect(ctx, rest)
	case "history":
		return a.History(ctx, rest)
	case "show":
		if rest == "" {
			return a.Show(ctx, nil)
		}
		i, err := parseIndexArg(rest)
		if err != nil {
			return err
		}
		return a.Show(ctx, &i)
	case "select", "delete":
		i, err := parseIndexArg(rest)
		if err != nil {
			return err
		}
		if verb == "select" {
			return a.Select(ctx, i)
		}
		return a.Delete(ctx, i)
	case "clear":
		return a.Clear(ctx, false)
	case "search":
		return a.Search(ctx, rest, 0)
	case "token":
		sub, value, _ := strings.Cut(rest, " ")
		switch sub {
		case "set":
			return a.TokenSet(ctx, value, false)
		case "status":
			return a.TokenStatus(ctx)
		case "clear":
			return a.TokenClear(ctx)
		}
		return fmt.Errorf("unknown token command %q (expected set, status or clear)", sub)
	}

	selected := a.selected
	if selected == "" {
		selected = dispatch.Auto
	}
	return a.Lookup(ctx, line, selected)
}

// parseIndexArg parses a non-negative history index.
func parseIndexArg(s string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return i, nil
}
