// autotyped - credential auto-type daemon
//
//	autotyped serve            Run the daemon (hotkey, IPC socket, picker UI)
//	autotyped create <file>    Create an empty vault file
//	autotyped check            Load and validate the configuration
//	autotyped paths            Print the platform default paths
//	autotyped version          Print the version
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"autotyped/internal/config"
	"autotyped/internal/vault"
)

// Version is the daemon version, reported over IPC and in logs.
const Version = "0.4.2"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe()
	case "create":
		cmdCreate()
	case "check":
		cmdCheck()
	case "paths":
		cmdPaths()
	case "version", "-v", "--version":
		fmt.Println("autotyped " + Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`autotyped - credential auto-type daemon

USAGE:
    autotyped <command> [options]

COMMANDS:
    serve               Run the daemon
    create <file>       Create an empty vault file (prompts for a passphrase)
    check               Load and validate the configuration, then exit
    paths               Print the platform default paths
    version             Print the version
    help                Show this help message

BASIC WORKFLOW:
    1. autotyped create ~/.local/share/autotyped/vaults/main.atdb
    2. autotyped serve
    3. autotypectl unlock main          # or use the unlock window
    4. Focus a login form, press the hotkey (default ctrl+alt+t)

The daemon matches the focused window's title against entry associations,
asks which entry to type when the match is ambiguous, and injects the
entry's sequence as synthetic keystrokes. Control it with autotypectl.

PRIVACY NOTE:
    Secrets are typed into whatever window holds focus at trigger time.
    Triggers are rejected while autotyped's own windows are focused, but
    verify the target window before pressing the hotkey.`)
}

// cmdServe runs the daemon until a signal or an IPC shutdown request.
func cmdServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(os.Args[2:])

	path := *configPath
	if path == "" {
		path = config.FindConfigFile()
	}

	cfg, created, err := config.LoadOrCreate(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if created {
		fmt.Printf("Created default configuration: %s\n", configFileOrDefault(path))
	}

	d, err := newDaemon(cfg, configFileOrDefault(path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting daemon: %v\n", err)
		os.Exit(1)
	}
	d.run()
}

func configFileOrDefault(path string) string {
	if path == "" {
		return config.ConfigPath()
	}
	return path
}

// cmdCreate initializes a new vault file.
func cmdCreate() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: autotyped create <file"+vault.Ext+">")
		os.Exit(1)
	}
	path := os.Args[2]
	if !strings.HasSuffix(path, vault.Ext) {
		path += vault.Ext
	}

	pass, err := promptPassphrase()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	s, err := vault.Create(path, pass)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating vault: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	fmt.Println()
	fmt.Printf("Vault created: %s\n", path)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. autotyped serve")
	fmt.Printf("  2. autotypectl unlock %s\n", s.Name())
	fmt.Println("  3. autotypectl import " + s.Name() + " entries.json")
}

// promptPassphrase reads the passphrase twice from stdin. The terminal
// echoes; creation is a one-time local setup step, not a routine unlock.
func promptPassphrase() (string, error) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Passphrase: ")
	first, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	first = strings.TrimRight(first, "\r\n")
	if first == "" {
		return "", fmt.Errorf("empty passphrase")
	}

	fmt.Print("Repeat passphrase: ")
	second, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	if first != strings.TrimRight(second, "\r\n") {
		return "", fmt.Errorf("passphrases do not match")
	}
	return first, nil
}

// cmdCheck validates the configuration the daemon would load.
func cmdCheck() {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(os.Args[2:])

	path := *configPath
	if path == "" {
		path = config.FindConfigFile()
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config INVALID: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Config INVALID:\n%v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Config OK: %s\n", configFileOrDefault(path))
	fmt.Printf("  Default sequence: %s\n", cfg.Engine.DefaultSequence)
	fmt.Printf("  Hotkey:           %s (enabled: %v)\n", cfg.Hotkey.Chord, cfg.Hotkey.Enabled)
	fmt.Printf("  Vault dirs:       %s\n", strings.Join(cfg.Vaults.Dirs, ", "))
	fmt.Printf("  IPC socket:       %s\n", cfg.IPC.SocketPath)
}

// cmdPaths prints where the daemon reads and writes by default.
func cmdPaths() {
	p := config.GetDefaultPaths()
	fmt.Println("=== autotyped Paths ===")
	fmt.Println()
	fmt.Printf("Config file:  %s\n", p.ConfigFile)
	fmt.Printf("Vault dir:    %s\n", p.VaultDir)
	fmt.Printf("Log file:     %s\n", p.LogFile)
	fmt.Printf("Socket:       %s\n", p.SocketPath)
	fmt.Printf("Data dir:     %s\n", p.DataDir)
	fmt.Printf("Runtime dir:  %s\n", p.RuntimeDir)
}
