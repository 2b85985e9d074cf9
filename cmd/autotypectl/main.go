// autotypectl is the control CLI for autotyped.
package main

import (
	"flag"
	"fmt"
	"os"

	"autotyped/internal/config"
)

// Version follows the daemon release.
const Version = "0.4.2"

var configPath = flag.String("config", "", "path to config file")

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	switch cmd {
	case "ping":
		cmdPing()
	case "status":
		cmdStatus(args)
	case "stores":
		cmdStores()
	case "unlock":
		cmdUnlock(args)
	case "lock":
		cmdLock(args)
	case "entries":
		cmdEntries(args)
	case "type":
		cmdType(args)
	case "global":
		cmdGlobal(args)
	case "validate":
		cmdValidate(args)
	case "cancel":
		cmdCancel()
	case "config":
		cmdConfig(args)
	case "reload":
		cmdReload()
	case "import":
		cmdImport(args)
	case "export":
		cmdExport(args)
	case "watch":
		cmdWatch()
	case "shutdown":
		cmdShutdown()
	case "version":
		fmt.Println("autotypectl " + Version)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `autotypectl - Control utility for autotyped

Usage: autotypectl [options] <command> [args]

Commands:
  ping                      Check whether the daemon is running
  status [-stores]          Show daemon status
  stores                    List registered vault stores
  unlock <store>            Unlock a store (passphrase read from stdin)
  lock [store]              Lock one store, or all stores
  entries [-store] [-q]     List entries from open stores
  type <title> [-sequence]  Type a named entry into the focused window
  global [-title] [-url]    Trigger window-matched typing, like the hotkey
  validate <sequence>       Dry-run parse and resolution of a sequence
  cancel                    Drop a deferred trigger
  config [key ...]          Print daemon configuration
  reload                    Reload the daemon configuration file
  import <store> <file>     Import entries from a JSON or YAML file
  export <store>            Export a store's entries
  watch                     Stream daemon events until interrupted
  shutdown                  Stop the daemon
  help                      Show this help message

Options:
  -config <path>  Path to config file (default: platform config dir)`)
}

// socketPath resolves the daemon socket from the config file, falling back
// to the platform default when no config exists.
func socketPath() string {
	cfg, err := config.Load(*configPath)
	if err != nil || cfg.IPC.SocketPath == "" {
		return config.GetDefaultPaths().SocketPath
	}
	return cfg.IPC.SocketPath
}

// ansi holds the escape sequences used for terminal output.
type ansi struct {
	Reset, Bold, Dim string
	Red, Green       string
	Yellow, Cyan     string
	White            string
}

var c = ansi{
	Reset:  "\033[0m",
	Bold:   "\033[1m",
	Dim:    "\033[2m",
	Red:    "\033[31m",
	Green:  "\033[32m",
	Yellow: "\033[33m",
	Cyan:   "\033[36m",
	White:  "\033[37m",
}

func init() {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		c = ansi{}
	}
}

func printSection(title string) {
	fmt.Printf("\n%s%s %s %s\n\n", c.Bold, c.Cyan, title, c.Reset)
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "%s%sError%s: %s\n", c.Bold, c.Red, c.Reset, msg)
}
