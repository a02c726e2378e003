package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

type Command string

const (
	CommandMonitor Command = "monitor"
	CommandDoctor  Command = "doctor"
	CommandDryRun  Command = "dry-run"
)

// WebhookEnvVar is consulted when --webhook is unset. It is read once during
// parsing; nothing downstream touches the environment.
const WebhookEnvVar = "GPUMON_WEBHOOK_URL"

type Config struct {
	Command        Command
	Mode           Mode
	Target         string
	Refresh        time.Duration
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	SSHConfig      string
	IdentityFile   string
	Port           int
	NoColor        bool
	Once           bool
	Duration       time.Duration
	NoDB           bool
	DBPath         string
	Webhook        string
	NotifyInterval time.Duration
	Listen         string
	LogFile        string
	LogLevel       string
}

var ErrHelpRequested = errors.New("help requested")

func defaultConfig() Config {
	return Config{
		Command:        CommandMonitor,
		Refresh:        30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 15 * time.Second,
		DBPath:         "gpu_monitor.db",
		NotifyInterval: 30 * time.Minute,
		LogLevel:       "info",
	}
}

func newFlagSet(cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("gpumon", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.DurationVar(&cfg.Refresh, "refresh", cfg.Refresh, "poll interval for collecting new cluster snapshots")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "max SSH connection setup time per command (remote mode)")
	fs.DurationVar(&cfg.CommandTimeout, "command-timeout", cfg.CommandTimeout, "max runtime for each reporting command before the cycle degrades")
	fs.StringVar(&cfg.SSHConfig, "ssh-config", "", "alternate OpenSSH config path (remote mode, supports Host aliases/ProxyJump)")
	fs.StringVar(&cfg.IdentityFile, "identity-file", "", "explicit SSH private key path passed to ssh -i (remote mode)")
	fs.IntVar(&cfg.Port, "port", 0, "override SSH port for remote target (remote mode)")
	fs.BoolVar(&cfg.NoColor, "no-color", false, "disable ANSI color styling")
	fs.BoolVar(&cfg.Once, "once", false, "collect one snapshot, write sinks, print a summary, and exit")
	fs.DurationVar(&cfg.Duration, "duration", 0, "optional total runtime limit; 0 means run until interrupted")
	fs.BoolVar(&cfg.NoDB, "no-db", false, "disable the SQLite history sink")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite file for availability history")
	fs.StringVar(&cfg.Webhook, "webhook", "", "Discord-compatible webhook URL for status notifications ($"+WebhookEnvVar+")")
	fs.DurationVar(&cfg.NotifyInterval, "notify-interval", cfg.NotifyInterval, "minimum gap between webhook notifications")
	fs.StringVar(&cfg.Listen, "listen", "", "optional listen address for the status/metrics HTTP API (for example :8080)")
	fs.StringVar(&cfg.LogFile, "log-file", "", "append structured logs to this file (default: no log output while the TUI runs)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log verbosity: debug, info, warn, or error")

	return fs
}

func HelpText() string {
	cfg := defaultConfig()
	fs := newFlagSet(&cfg)

	var b strings.Builder
	b.WriteString("gpumon: read-only GPU availability monitor for Slurm clusters\n\n")
	b.WriteString("Usage:\n")
	b.WriteString("  gpumon [flags] [ssh-target]\n")
	b.WriteString("  gpumon doctor [flags] [ssh-target]\n")
	b.WriteString("  gpumon dry-run [flags] [ssh-target]\n\n")
	b.WriteString("Commands:\n")
	b.WriteString("  monitor  Start live monitoring (default when no command is given).\n")
	b.WriteString("  doctor   Run non-mutating preflight checks and exit.\n")
	b.WriteString("  dry-run  Print planned execution order and exit.\n\n")
	b.WriteString("Positional target:\n")
	b.WriteString("  ssh-target is optional.\n")
	b.WriteString("  - omitted: run locally (requires local squeue/scontrol)\n")
	b.WriteString("  - provided: run remotely through OpenSSH using alias or user@host\n\n")
	b.WriteString("Behavior:\n")
	b.WriteString("  - gpumon is read-only and never submits, modifies, or cancels jobs\n")
	b.WriteString("  - doctor and dry-run are non-mutating helpers for setup and validation\n")
	b.WriteString("  - a failed collection keeps the previous snapshot and retries on the next tick\n")
	b.WriteString("  - retries are infinite by default; set --duration to time-box a run\n")
	b.WriteString("  - missing Slurm commands are treated as non-recoverable errors\n\n")
	b.WriteString("Sinks:\n")
	b.WriteString("  - every snapshot is appended to a local SQLite file unless --no-db is set\n")
	b.WriteString("  - with --webhook, a status embed is posted at most once per --notify-interval\n")
	b.WriteString("  - the webhook URL falls back to $" + WebhookEnvVar + " when the flag is unset\n\n")
	b.WriteString("Authentication:\n")
	b.WriteString("  - uses standard OpenSSH auth flows (ssh-agent, keys, config)\n")
	b.WriteString("  - supports SSH config aliases and bastion/proxy jumps\n")
	b.WriteString("  - does not accept password flags\n\n")
	b.WriteString("Flags:\n")
	fs.SetOutput(&b)
	fs.PrintDefaults()
	b.WriteString("\nExamples:\n")
	b.WriteString("  gpumon\n")
	b.WriteString("  gpumon cluster_alias\n")
	b.WriteString("  gpumon user@login.example.org --refresh 15s\n")
	b.WriteString("  gpumon --once --webhook https://discord.com/api/webhooks/...\n")
	b.WriteString("  gpumon --listen :8080 cluster_alias\n")
	b.WriteString("  gpumon doctor cluster_alias\n")
	b.WriteString("  gpumon dry-run --no-db cluster_alias\n")

	return b.String()
}

func splitCommand(args []string) (Command, []string) {
	if len(args) == 0 {
		return CommandMonitor, args
	}

	switch strings.TrimSpace(args[0]) {
	case string(CommandDoctor):
		return CommandDoctor, args[1:]
	case string(CommandDryRun):
		return CommandDryRun, args[1:]
	case string(CommandMonitor):
		return CommandMonitor, args[1:]
	default:
		return CommandMonitor, args
	}
}

func ParseArgs(args []string) (Config, error) {
	return parseArgs(args, os.Getenv)
}

func parseArgs(args []string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()
	cfg.Command, args = splitCommand(args)
	fs := newFlagSet(&cfg)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Config{}, ErrHelpRequested
		}
		return Config{}, err
	}

	pos := fs.Args()
	if len(pos) > 1 {
		return Config{}, fmt.Errorf("expected zero or one positional target, got %d", len(pos))
	}
	if len(pos) == 1 {
		cfg.Target = strings.TrimSpace(pos[0])
	}

	if cfg.Target == "" {
		cfg.Mode = ModeLocal
	} else {
		cfg.Mode = ModeRemote
	}

	if cfg.Webhook == "" {
		cfg.Webhook = strings.TrimSpace(getenv(WebhookEnvVar))
	}

	if cfg.Refresh < time.Second {
		return Config{}, fmt.Errorf("--refresh must be at least 1s")
	}
	if cfg.ConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("--connect-timeout must be > 0")
	}
	if cfg.CommandTimeout <= 0 {
		return Config{}, fmt.Errorf("--command-timeout must be > 0")
	}
	if cfg.NotifyInterval <= 0 {
		return Config{}, fmt.Errorf("--notify-interval must be > 0")
	}
	if cfg.Duration < 0 {
		return Config{}, fmt.Errorf("--duration must be >= 0")
	}
	if cfg.Port < 0 {
		return Config{}, fmt.Errorf("--port must be >= 0")
	}
	if !cfg.NoDB && strings.TrimSpace(cfg.DBPath) == "" {
		return Config{}, fmt.Errorf("--db-path must not be empty")
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("--log-level must be one of debug, info, warn, error")
	}

	if cfg.Mode == ModeLocal {
		if cfg.SSHConfig != "" || cfg.IdentityFile != "" || cfg.Port != 0 {
			return Config{}, fmt.Errorf("ssh-specific flags require a remote target")
		}
	}

	return cfg, nil
}
