// ABOUTME: sellerdesk is the command-line dashboard for a social-commerce shop.
// ABOUTME: Dispatches subcommands for auth, orders, customers, products and reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/design2deploy2025/inventory-management-sub000/cmd/internal/appcli"
	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
	"github.com/design2deploy2025/inventory-management-sub000/internal/config"
)

// stdout is where command output goes. Tests swap it.
var stdout io.Writer = os.Stdout

var commands = map[string]func([]string) error{
	"init":      cmdInit,
	"login":     cmdLogin,
	"signup":    cmdSignup,
	"logout":    cmdLogout,
	"status":    cmdStatus,
	"orders":    cmdOrders,
	"customers": cmdCustomers,
	"products":  cmdProducts,
	"stats":     cmdStats,
	"report":    cmdReport,
	"profile":   cmdProfile,
	"contact":   cmdContact,
	"watch":     cmdWatch,
	"serve":     cmdServe,
}

func main() {
	log.SetFlags(0)
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}
	if err := cmd(os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(describe(err))
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "sellerdesk commands: init | login | signup | logout | status | orders | customers | products | stats | report | profile | contact | watch | serve\n")
}

// describe turns dashboard errors into one line for the terminal.
func describe(err error) string {
	var ve *dashboard.ValidationError
	switch {
	case errors.As(err, &ve):
		return "missing required fields: " + strings.Join(ve.Fields, ", ")
	case errors.Is(err, dashboard.ErrAuth):
		return err.Error() + "\nRun 'sellerdesk login' first"
	case errors.Is(err, dashboard.ErrConfirmationRequired):
		return err.Error() + "\nRepeat the id with --confirm"
	}
	return err.Error()
}

// command is a flag set with the shared runtime flags bound.
type command struct {
	fs *flag.FlagSet
	rt appcli.RuntimeConfig
}

func newCommand(name string) *command {
	c := &command{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	c.rt.BindFlags(c.fs)
	return c
}

func (c *command) parse(args []string) error {
	return c.fs.Parse(args)
}

// open builds the runtime after parse.
func (c *command) open() (*appcli.App, error) {
	return appcli.NewApp(c.rt.Options())
}

// signalContext is cancelled on Ctrl-C.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func table() *tabwriter.Writer {
	return tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
}

// subcommand splits "orders add --x" into "add" and its flags; a leading
// flag or nothing means def.
func subcommand(args []string, def string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return def, args
	}
	return args[0], args[1:]
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ", ") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cachedNote(cached bool, savedAt string) {
	if cached {
		fmt.Fprintf(stdout, "(offline snapshot from %s)\n", savedAt)
	}
}
