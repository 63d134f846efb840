// agentauth is the command-line front end for the agentauth library.
//
//	agentauth keygen  --agent agent://support-bot --out agent.jwk
//	agentauth token   --config agentauth.yaml --audience https://tools.local/tickets tickets.read
//	agentauth verify  --config agentauth.yaml --resource tickets --scope tickets.read <token>
//	agentauth serve   --config agentauth.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// command is one subcommand.
type command struct {
	name    string
	summary string
	flags   func(fs *pflag.FlagSet)
	run     func(ctx context.Context, args []string, in io.Reader, out io.Writer) error
}

var errUsage = errors.New("usage")

func commands() []*command {
	return []*command{keygenCommand(), tokenCommand(), verifyCommand(), serveCommand()}
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(out)
		return nil
	}
	for _, c := range commands() {
		if c.name != args[0] {
			continue
		}
		fs := pflag.NewFlagSet("agentauth "+c.name, pflag.ContinueOnError)
		fs.SetOutput(out)
		if c.flags != nil {
			c.flags(fs)
		}
		if err := fs.Parse(args[1:]); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				return nil
			}
			return err
		}
		return c.run(ctx, fs.Args(), in, out)
	}
	printUsage(out)
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: agentauth <command> [flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	for _, c := range commands() {
		fmt.Fprintf(out, "  %-8s %s\n", c.name, c.summary)
	}
}
