// IPC command implementations for autotypectl. Every command opens a
// short-lived connection to the daemon socket; the daemon owns all state.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"autotyped/internal/ipc"
	"autotyped/internal/vault"
)

// connect opens an authenticated IPC session or exits with a hint.
func connect() *ipc.IPCClient {
	cfg := ipc.DefaultClientConfig(socketPath())
	cfg.ClientName = "autotypectl"
	cfg.ClientVersion = Version

	client := ipc.NewClient(cfg)
	if err := client.Connect(); err != nil {
		printError(fmt.Sprintf("Cannot connect to daemon: %v", err))
		fmt.Fprintf(os.Stderr, "  %sTip%s: Start the daemon with: autotyped serve\n", c.Dim, c.Reset)
		os.Exit(1)
	}
	return client
}

func cmdPing() {
	cfg := ipc.DefaultClientConfig(socketPath())
	client := ipc.NewClient(cfg)

	if err := client.Connect(); err != nil {
		fmt.Printf("  %sDaemon%s  %s%sNOT RUNNING%s\n", c.Dim, c.Reset, c.Bold, c.Red, c.Reset)
		os.Exit(1)
	}
	defer client.Close()

	start := time.Now()
	if err := client.Ping(); err != nil {
		fmt.Printf("  %sDaemon%s  %s%sNOT RESPONDING%s (%v)\n", c.Dim, c.Reset, c.Bold, c.Red, c.Reset, err)
		os.Exit(1)
	}
	latency := time.Since(start)

	fmt.Printf("  %sDaemon%s  %s%sRUNNING%s (latency: %s)\n", c.Dim, c.Reset, c.Bold, c.Green, c.Reset, latency.Round(time.Microsecond))
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	withStores := fs.Bool("stores", false, "include per-store detail")
	fs.Parse(args)

	client := connect()
	defer client.Close()

	status, err := client.Status(*withStores, false)
	if err != nil {
		printError(fmt.Sprintf("Failed to get status: %v", err))
		os.Exit(1)
	}

	printSection("DAEMON STATUS")
	fmt.Printf("  %sVersion%s      %s%s%s\n", c.Dim, c.Reset, c.Cyan, status.Version, c.Reset)
	fmt.Printf("  %sUptime%s       %s\n", c.Dim, c.Reset, status.Uptime.Round(time.Second))
	fmt.Printf("  %sStarted%s      %s\n", c.Dim, c.Reset, status.StartedAt.Format(time.RFC3339))
	fmt.Printf("  %sPhase%s        %s\n", c.Dim, c.Reset, phaseLabel(status.Phase))
	if status.PendingTitle != "" {
		fmt.Printf("  %sPending%s      %s\n", c.Dim, c.Reset, status.PendingTitle)
	}
	fmt.Printf("  %sOpen stores%s  %d\n", c.Dim, c.Reset, status.OpenStores)
	fmt.Printf("  %sEntries%s      %d\n", c.Dim, c.Reset, status.EntryCount)

	if *withStores && len(status.Stores) > 0 {
		printSection("STORES")
		printStores(status.Stores)
	}
	fmt.Println()
}

func phaseLabel(phase string) string {
	switch phase {
	case "idle":
		return c.Green + "idle" + c.Reset
	case "running":
		return c.Bold + c.Yellow + "running" + c.Reset
	case "awaiting-selection":
		return c.Yellow + "awaiting selection" + c.Reset
	case "deferred":
		return c.Cyan + "deferred (waiting for a store to unlock)" + c.Reset
	default:
		return phase
	}
}

func cmdStores() {
	client := connect()
	defer client.Close()

	resp, err := client.ListStores()
	if err != nil {
		printError(fmt.Sprintf("Failed to list stores: %v", err))
		os.Exit(1)
	}

	if len(resp.Stores) == 0 {
		fmt.Printf("  %sNo stores registered. Create one with: autotyped create <file>%s\n", c.Dim, c.Reset)
		return
	}

	printSection("STORES")
	printStores(resp.Stores)
	fmt.Println()
}

func printStores(stores []ipc.StoreSummary) {
	for _, s := range stores {
		state := c.Dim + "LOCKED" + c.Reset
		if s.Open {
			state = c.Green + "OPEN" + c.Reset
		}
		fmt.Printf("  %s%s%s  %s\n", c.Cyan, s.Name, c.Reset, state)
		fmt.Printf("    %sPath%s     %s\n", c.Dim, c.Reset, s.Path)
		if s.Open {
			fmt.Printf("    %sEntries%s  %d\n", c.Dim, c.Reset, s.Entries)
		}
	}
}

func cmdUnlock(args []string) {
	if len(args) < 1 {
		printError("Usage: autotypectl unlock <store>")
		os.Exit(1)
	}
	store := args[0]

	fmt.Fprintf(os.Stderr, "Passphrase for %s: ", store)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		printError(fmt.Sprintf("Reading passphrase: %v", err))
		os.Exit(1)
	}
	passphrase := strings.TrimRight(line, "\r\n")

	client := connect()
	defer client.Close()

	resp, err := client.UnlockStore(store, passphrase)
	if err != nil {
		printError(fmt.Sprintf("Unlock failed: %v", err))
		os.Exit(1)
	}
	if !resp.Success {
		printError(resp.Error)
		os.Exit(1)
	}

	fmt.Printf("\n%s%s STORE UNLOCKED %s %s\n\n", c.Bold, c.Green, c.Reset, store)
}

func cmdLock(args []string) {
	store := ""
	if len(args) >= 1 {
		store = args[0]
	}

	client := connect()
	defer client.Close()

	resp, err := client.LockStore(store)
	if err != nil {
		printError(fmt.Sprintf("Lock failed: %v", err))
		os.Exit(1)
	}

	if len(resp.Locked) == 0 {
		fmt.Printf("  %sNothing to lock.%s\n", c.Dim, c.Reset)
		return
	}
	for _, name := range resp.Locked {
		fmt.Printf("  %sLocked%s  %s\n", c.Dim, c.Reset, name)
	}
}

func cmdEntries(args []string) {
	fs := flag.NewFlagSet("entries", flag.ExitOnError)
	store := fs.String("store", "", "limit to one store")
	query := fs.String("q", "", "title substring filter")
	fs.Parse(args)

	client := connect()
	defer client.Close()

	resp, err := client.ListEntries(*store, *query)
	if err != nil {
		printError(fmt.Sprintf("Failed to list entries: %v", err))
		os.Exit(1)
	}

	if len(resp.Entries) == 0 {
		fmt.Printf("  %sNo entries found. Is a store unlocked?%s\n", c.Dim, c.Reset)
		return
	}

	sort.Slice(resp.Entries, func(i, j int) bool {
		return resp.Entries[i].Title < resp.Entries[j].Title
	})

	printSection("ENTRIES")
	for _, ent := range resp.Entries {
		flags := ""
		if !ent.Enabled {
			flags += " " + c.Yellow + "[auto-type off]" + c.Reset
		}
		if ent.Obfuscate {
			flags += " " + c.Dim + "[obfuscated]" + c.Reset
		}
		fmt.Printf("  %s%s%s%s\n", c.Cyan, ent.Title, c.Reset, flags)
		if ent.Username != "" {
			fmt.Printf("    %sUsername%s  %s\n", c.Dim, c.Reset, ent.Username)
		}
		if ent.URL != "" {
			fmt.Printf("    %sURL%s       %s\n", c.Dim, c.Reset, ent.URL)
		}
		if ent.Sequence != "" {
			fmt.Printf("    %sSequence%s  %s\n", c.Dim, c.Reset, ent.Sequence)
		}
		fmt.Printf("    %sStore%s     %s  %sID%s %s\n", c.Dim, c.Reset, ent.Store, c.Dim, c.Reset, ent.ID)
	}
	fmt.Println()
}

func cmdType(args []string) {
	fs := flag.NewFlagSet("type", flag.ExitOnError)
	id := fs.String("id", "", "entry id (overrides the title argument)")
	sequence := fs.String("sequence", "", "override the entry's template for this run")
	fs.Parse(args)

	title := ""
	if fs.NArg() >= 1 {
		title = fs.Arg(0)
	}
	if title == "" && *id == "" {
		printError("Usage: autotypectl type <title> [-id id] [-sequence tpl]")
		os.Exit(1)
	}

	client := connect()
	defer client.Close()

	resp, err := client.TypeEntry(*id, title, *sequence)
	if err != nil {
		printError(fmt.Sprintf("Typing failed: %v", err))
		os.Exit(1)
	}
	reportTypeOutcome(resp)
}

func cmdGlobal(args []string) {
	fs := flag.NewFlagSet("global", flag.ExitOnError)
	title := fs.String("title", "", "window title to match instead of the live focus query")
	url := fs.String("url", "", "window URL to match")
	fs.Parse(args)

	client := connect()
	defer client.Close()

	resp, err := client.TypeGlobal(*title, *url)
	if err != nil {
		printError(fmt.Sprintf("Trigger failed: %v", err))
		os.Exit(1)
	}
	reportTypeOutcome(resp)
}

func reportTypeOutcome(resp *ipc.TypeResponse) {
	switch {
	case resp.Success:
		fmt.Printf("\n%s%s TYPED %s", c.Bold, c.Green, c.Reset)
		if resp.Entry != "" {
			fmt.Printf(" %s", resp.Entry)
		}
		fmt.Println()
	case resp.Deferred:
		fmt.Printf("\n%s%s DEFERRED %s no store is unlocked; the trigger replays after unlock\n", c.Bold, c.Yellow, c.Reset)
	case resp.Canceled:
		fmt.Printf("\n%s%s CANCELED %s selection dismissed\n", c.Bold, c.Yellow, c.Reset)
	default:
		printError(resp.Error)
		os.Exit(1)
	}
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	entryTitle := fs.String("entry", "", "resolve against this entry's fields")
	fs.Parse(args)

	if fs.NArg() < 1 {
		printError(`Usage: autotypectl validate '<sequence>' [-entry title]`)
		os.Exit(1)
	}
	sequence := fs.Arg(0)

	client := connect()
	defer client.Close()

	resp, err := client.Validate(sequence, "", *entryTitle)
	if err != nil {
		printError(fmt.Sprintf("Validation request failed: %v", err))
		os.Exit(1)
	}

	if !resp.Valid {
		fmt.Printf("  %s%sINVALID%s  %s\n", c.Bold, c.Red, c.Reset, resp.Error)
		os.Exit(1)
	}
	fmt.Printf("  %s%sVALID%s\n", c.Bold, c.Green, c.Reset)
	fmt.Printf("  %sResolves to%s  %s\n", c.Dim, c.Reset, resp.Rendered)
}

func cmdCancel() {
	client := connect()
	defer client.Close()

	resp, err := client.CancelPending()
	if err != nil {
		printError(fmt.Sprintf("Cancel failed: %v", err))
		os.Exit(1)
	}
	if resp.WasPending {
		fmt.Printf("  %sDeferred trigger dropped.%s\n", c.Dim, c.Reset)
	} else {
		fmt.Printf("  %sNothing was pending.%s\n", c.Dim, c.Reset)
	}
}

func cmdConfig(keys []string) {
	client := connect()
	defer client.Close()

	resp, err := client.GetConfig(keys)
	if err != nil {
		printError(fmt.Sprintf("Failed to get config: %v", err))
		os.Exit(1)
	}

	names := make([]string, 0, len(resp.Config))
	for k := range resp.Config {
		names = append(names, k)
	}
	sort.Strings(names)

	printSection("CONFIGURATION")
	for _, k := range names {
		fmt.Printf("  %s%-22s%s %v\n", c.Dim, k, c.Reset, resp.Config[k])
	}
	fmt.Println()
}

func cmdReload() {
	client := connect()
	defer client.Close()

	resp, err := client.ReloadConfig()
	if err != nil {
		printError(fmt.Sprintf("Reload failed: %v", err))
		os.Exit(1)
	}
	if !resp.Success {
		printError(resp.Error)
		os.Exit(1)
	}
	fmt.Printf("  %sConfiguration reloaded.%s\n", c.Dim, c.Reset)
}

func cmdImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	format := fs.String("format", "", "file format: json or yaml (default: by extension)")
	fs.Parse(args)

	if fs.NArg() < 2 {
		printError("Usage: autotypectl import <store> <file> [-format json|yaml]")
		os.Exit(1)
	}
	store, file := fs.Arg(0), fs.Arg(1)

	data, err := os.ReadFile(file)
	if err != nil {
		printError(fmt.Sprintf("Reading %s: %v", file, err))
		os.Exit(1)
	}

	client := connect()
	defer client.Close()

	resp, err := client.ImportEntries(store, exchangeFormat(*format, file), data)
	if err != nil {
		printError(fmt.Sprintf("Import failed: %v", err))
		os.Exit(1)
	}
	if !resp.Success {
		printError(resp.Error)
		os.Exit(1)
	}

	fmt.Printf("\n%s%s IMPORTED %s %d entries into %s\n\n", c.Bold, c.Green, c.Reset, resp.Count, store)
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "", "output format: json or yaml (default: by extension)")
	output := fs.String("o", "", "output file (default: <store>.entries.json)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		printError("Usage: autotypectl export <store> [-o output] [-format json|yaml]")
		os.Exit(1)
	}
	store := fs.Arg(0)

	outPath := *output
	if outPath == "" {
		outPath = store + ".entries.json"
	}

	client := connect()
	defer client.Close()

	resp, err := client.ExportEntries(store, exchangeFormat(*format, outPath))
	if err != nil {
		printError(fmt.Sprintf("Export failed: %v", err))
		os.Exit(1)
	}
	if !resp.Success {
		printError(resp.Error)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, resp.Data, 0600); err != nil {
		printError(fmt.Sprintf("Writing %s: %v", outPath, err))
		os.Exit(1)
	}

	fmt.Printf("\n%s%s EXPORTED %s %d entries to %s\n", c.Bold, c.Green, c.Reset, resp.Count, outPath)
	fmt.Printf("  %sNote%s: the export holds passwords in clear text. Delete it after use.\n\n", c.Yellow, c.Reset)
}

// exchangeFormat picks the exchange encoding from the flag, else the file
// extension, else JSON.
func exchangeFormat(flagValue, path string) string {
	if flagValue != "" {
		return flagValue
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return string(vault.FormatYAML)
	default:
		return string(vault.FormatJSON)
	}
}

func cmdWatch() {
	client := connect()
	defer client.Close()

	if err := client.Subscribe(nil); err != nil {
		printError(fmt.Sprintf("Failed to subscribe: %v", err))
		os.Exit(1)
	}

	fmt.Printf("%s%s WATCHING EVENTS %s press Ctrl+C to stop\n\n", c.Bold, c.Green, c.Reset)

	for event := range client.Events() {
		fmt.Printf("[%s] %s%s%s", event.Timestamp.Format("15:04:05"), c.Cyan, eventTypeName(event.Type), c.Reset)
		if data, ok := event.Data.(map[string]any); ok && len(data) > 0 {
			keys := make([]string, 0, len(data))
			for k := range data {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("  %s%s%s=%v", c.Dim, k, c.Reset, data[k])
			}
		}
		fmt.Println()
	}
}

func eventTypeName(et ipc.EventType) string {
	switch et {
	case ipc.EventRunStarted:
		return "RunStarted"
	case ipc.EventRunFinished:
		return "RunFinished"
	case ipc.EventStoreOpened:
		return "StoreOpened"
	case ipc.EventStoreLocked:
		return "StoreLocked"
	case ipc.EventTriggerDeferred:
		return "TriggerDeferred"
	case ipc.EventConfigChanged:
		return "ConfigChanged"
	case ipc.EventError:
		return "Error"
	case ipc.EventDaemonShutdown:
		return "DaemonShutdown"
	default:
		return fmt.Sprintf("Unknown(%d)", et)
	}
}

func cmdShutdown() {
	client := connect()
	defer client.Close()

	if err := client.Shutdown(); err != nil {
		printError(fmt.Sprintf("Shutdown failed: %v", err))
		os.Exit(1)
	}
	fmt.Printf("  %sDaemon stopping.%s\n", c.Dim, c.Reset)
}
