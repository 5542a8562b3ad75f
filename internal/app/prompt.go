// internal/app/prompt.go
package app

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/avdwoude/callbox/internal/config"
)

func PromptInteractive(peerDir, cfgPath string, cfg config.Config) config.Config {
	in := bufio.NewReader(os.Stdin)

	fmt.Println("────────────────────────────────────────")
	fmt.Println("callbox interactive setup")
	fmt.Printf(" Peer folder : %s\n", peerDir)
	fmt.Printf(" Config file : %s\n", cfgPath)
	fmt.Println("────────────────────────────────────────")
	fmt.Println()

	cfg.API.HTTPAddr = askString(in, "API HTTP addr", cfg.API.HTTPAddr)
	cfg.Store.Backend = askString(in, "Signaling store (memory/sqlite/redis)", cfg.Store.Backend)
	if cfg.Store.Backend == "redis" {
		cfg.Store.Redis.Addr = askString(in, "Redis addr", cfg.Store.Redis.Addr)
		cfg.Store.Redis.DB = askInt(in, "Redis DB", cfg.Store.Redis.DB)
	}

	first := ""
	if len(cfg.ICE.Servers) > 0 {
		first = cfg.ICE.Servers[0]
	}
	if s := askString(in, "STUN/TURN server", first); s != "" {
		rest := cfg.ICE.Servers
		if len(rest) > 0 {
			rest = rest[1:]
		}
		cfg.ICE.Servers = append([]string{s}, rest...)
	}

	cfg.Call.RingTimeoutSec = askInt(in, "Ring timeout seconds (0=off)", cfg.Call.RingTimeoutSec)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\nKeeping defaults.\n", err)
		return config.Default()
	}
	return cfg
}

func askString(in *bufio.Reader, label, def string) string {
	fmt.Printf("%s [%s]: ", label, def)
	s, _ := in.ReadString('\n')
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

func askInt(in *bufio.Reader, label string, def int) int {
	for {
		fmt.Printf("%s [%d]: ", label, def)
		s, _ := in.ReadString('\n')
		s = strings.TrimSpace(s)
		if s == "" {
			return def
		}
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
		fmt.Println("Please enter a number.")
	}
}
