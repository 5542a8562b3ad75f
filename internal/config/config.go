package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/avdwoude/callbox/internal/util"
)

type Config struct {
	Identity Identity `json:"identity"`
	Store    Store    `json:"store"`
	ICE      ICE      `json:"ice"`
	Call     Call     `json:"call"`
	API      API      `json:"api"`
}

type Identity struct {
	KeyFile string `json:"key_file"`
}

type Store struct {
	// Backend selects the signaling document store: "memory" (single
	// process, tests and demos), "sqlite" (one machine, several
	// processes), or "redis" (networked).
	Backend string `json:"backend"`
	Redis   Redis  `json:"redis"`
}

type Redis struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ICE struct {
	// Servers are STUN/TURN URLs handed to each new peer connection.
	// Edits to this list are picked up without restart; calls already in
	// progress keep their connection.
	Servers []string `json:"servers"`
}

type Call struct {
	// RingTimeoutSec bounds how long an outgoing call rings before it is
	// ended automatically. 0 disables the timeout.
	RingTimeoutSec int `json:"ring_timeout_sec"`
}

type API struct {
	HTTPAddr string `json:"http_addr"`
	Debug    bool   `json:"debug"`
}

func Default() Config {
	return Config{
		Identity: Identity{
			KeyFile: "data/identity.key",
		},
		Store: Store{
			Backend: "sqlite",
			Redis: Redis{
				Addr: "127.0.0.1:6379",
			},
		},
		ICE: ICE{
			Servers: []string{"stun:stun.l.google.com:19302"},
		},
		Call: Call{
			RingTimeoutSec: 0,
		},
		API: API{
			HTTPAddr: "127.0.0.1:8690",
			Debug:    false,
		},
	}
}

func (c *Config) Validate() error {
	// Identity
	if strings.TrimSpace(c.Identity.KeyFile) == "" {
		return errors.New("identity.key_file is required")
	}

	// Store
	switch c.Store.Backend {
	case "memory", "sqlite":
	case "redis":
		if strings.TrimSpace(c.Store.Redis.Addr) == "" {
			return errors.New("store.redis.addr is required for the redis backend")
		}
		if _, _, err := net.SplitHostPort(c.Store.Redis.Addr); err != nil {
			return errors.New("store.redis.addr must be host:port")
		}
		if c.Store.Redis.DB < 0 {
			return errors.New("store.redis.db must be >= 0")
		}
	default:
		return fmt.Errorf("store.backend must be memory, sqlite or redis (got %q)", c.Store.Backend)
	}

	// ICE
	if len(c.ICE.Servers) == 0 {
		return errors.New("ice.servers must list at least one STUN/TURN URL")
	}
	for _, s := range c.ICE.Servers {
		if !validICEURL(s) {
			return fmt.Errorf("ice.servers entry %q must start with stun:, stuns:, turn: or turns:", s)
		}
	}

	// Call
	if c.Call.RingTimeoutSec < 0 {
		return errors.New("call.ring_timeout_sec must be >= 0")
	}

	// API
	if addr := strings.TrimSpace(c.API.HTTPAddr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return errors.New("api.http_addr must be host:port")
		}
	}

	return nil
}

func validICEURL(s string) bool {
	for _, scheme := range []string{"stun:", "stuns:", "turn:", "turns:"} {
		if strings.HasPrefix(s, scheme) {
			return true
		}
	}
	return false
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Strip UTF-8 BOM if present (common when editing JSON on Windows).
	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
