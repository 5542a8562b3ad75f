// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/avdwoude/callbox/internal/app"
	"github.com/avdwoude/callbox/internal/config"
)

var (
	showHelp    = flag.Bool("h", false, "Show help")
	version     = flag.Bool("version", false, "Show version")
	openBrowser = flag.Bool("open", false, "Open the API status page once the peer is up")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("callbox v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	switch command := args[0]; command {
	case "peer":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: peer command requires directory path")
			fmt.Fprintln(os.Stderr, "Usage: callbox peer <peer-directory>")
			os.Exit(1)
		}
		runPeer(args[1])

	case "init":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: init command requires directory path")
			fmt.Fprintln(os.Stderr, "Usage: callbox init <peer-directory>")
			os.Exit(1)
		}
		runInit(args[1])

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", command)
		fmt.Fprintln(os.Stderr)
		showUsage()
		os.Exit(1)
	}
}

func runPeer(dirArg string) {
	absDir, err := filepath.Abs(dirArg)
	if err != nil {
		log.Fatalf("Invalid peer directory: %v", err)
	}
	if stat, err := os.Stat(absDir); err != nil || !stat.IsDir() {
		log.Fatalf("Peer directory does not exist: %s", absDir)
	}

	cfgPath := filepath.Join(absDir, "callbox.json")
	cfg, created, err := config.Ensure(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if created {
		log.Printf("Created default config: %s", cfgPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("Shutting down…")
		cancel()
	}()

	if *openBrowser {
		_, url, tcpAddr := app.NormalizeLocalAPI(cfg.API.HTTPAddr)
		go func() {
			if err := app.WaitTCP(tcpAddr, 10*time.Second); err != nil {
				log.Printf("API never came up, not opening browser: %v", err)
				return
			}
			if err := app.OpenBrowser(url + "/api/call/state"); err != nil {
				log.Printf("Open browser: %v", err)
			}
		}()
	}

	if err := app.Run(ctx, app.Options{Dir: absDir, CfgPath: cfgPath, Cfg: cfg}); err != nil {
		log.Fatalf("peer failed: %v", err)
	}
}

func runInit(dirArg string) {
	absDir, err := filepath.Abs(dirArg)
	if err != nil {
		log.Fatalf("Invalid peer directory: %v", err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		log.Fatalf("Create peer directory: %v", err)
	}

	cfgPath := filepath.Join(absDir, "callbox.json")
	cfg := config.Default()
	if _, err := os.Stat(cfgPath); err == nil {
		if cfg, err = config.Load(cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "Existing config is invalid (%v), starting from defaults\n", err)
			cfg = config.Default()
		}
	}

	cfg = app.PromptInteractive(absDir, cfgPath, cfg)
	if err := config.Save(cfgPath, cfg); err != nil {
		log.Fatalf("Save config: %v", err)
	}
	fmt.Printf("Wrote %s\n", cfgPath)
}

func showUsage() {
	fmt.Println("callbox — peer-to-peer call signaling daemon")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  callbox peer <peer-directory>   Run a peer from the given directory")
	fmt.Println("  callbox init <peer-directory>   Interactive config setup")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -h         Show help")
	fmt.Println("  -version   Show version")
	fmt.Println("  -open      Open the API status page once the peer is up")
}
