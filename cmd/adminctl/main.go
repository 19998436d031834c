package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-admin-client/apierror"
	"github.com/jrsteele09/go-admin-client/internal/config"
	"github.com/jrsteele09/go-admin-client/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("adminctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", config.GetEnv("ADMIN_CONFIG", ""), "path to a YAML config file")
	banner := fs.Bool("banner", false, "print the banner before running")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	name, cmdArgs := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		fs.Usage()
		return 2
	}

	cfg, err := config.NewFromFile(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	logging.Setup(stderr, cfg.GetLogLevel())
	if *banner {
		displayAppname(stdout, cfg.GetAppName())
	}

	a, err := newApp(ctx, cfg, stdout, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer a.Close()

	if err := cmd.run(ctx, a, cmdArgs); err != nil {
		printError(stderr, err)
		return 1
	}
	return 0
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "usage: adminctl [flags] <command> [args]")
	fmt.Fprintln(out, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-16s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(out, "\nflags:")
	fs.PrintDefaults()
}

// printError shows backend errors the way the admin UI does: a title, the
// display message, then per-field messages.
func printError(w io.Writer, err error) {
	apiErr, ok := apierror.As(err)
	if !ok {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "%s: %s (code %s", apiErr.Title(), apiErr.DisplayMessage(), apiErr.Code())
	if apiErr.TraceID() != "" {
		fmt.Fprintf(w, ", trace %s", apiErr.TraceID())
	}
	fmt.Fprintln(w, ")")

	if apiErr.HasFieldErrors() {
		fields := apiErr.FieldErrors()
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "fields:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, fields[k])
		}
	}
	if cause := apiErr.Unwrap(); cause != nil {
		fmt.Fprintf(w, "  cause: %v\n", cause)
	}
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(w, myFigure.String())
}
