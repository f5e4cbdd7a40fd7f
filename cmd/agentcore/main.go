package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/agentcore/internal/config"
	"github.com/xonecas/agentcore/internal/facade"
	"github.com/xonecas/agentcore/internal/mcpclient"
	"github.com/xonecas/agentcore/internal/messagestore"
	"github.com/xonecas/agentcore/internal/provider"
	"github.com/xonecas/agentcore/internal/store"
)

func main() {
	if err := setupFileLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to setup logging: %v\n", err)
	}

	flagSession := flag.String("s", "", "resume a session by ID")
	flagList := flag.Bool("l", false, "list sessions")
	flagContinue := flag.Bool("c", false, "continue most recent session")
	flag.StringVar(flagSession, "session", "", "resume a session by ID")
	flag.BoolVar(flagList, "list", false, "list sessions")
	flag.BoolVar(flagContinue, "continue", false, "continue most recent session")
	flag.Parse()

	configPath := filepath.Join(".", "config.toml")
	if dataDir, err := config.DataDir(); err == nil {
		dataDirPath := filepath.Join(dataDir, "config.toml")
		if _, err := os.Stat(dataDirPath); err == nil {
			configPath = dataDirPath
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Printf("Warning: failed to get working directory: %v\n", err)
		cwd = "."
	}
	cfg.Workdir = cwd

	sessionDir := cfg.SessionDir
	if sessionDir == "" {
		sessionDir, err = config.DefaultSessionDir()
		if err != nil {
			fmt.Printf("Error resolving session dir: %v\n", err)
			os.Exit(1)
		}
	}

	if *flagList {
		listSessions(sessionDir)
		return
	}

	registry := buildRegistry(cfg)
	providerName, providerCfg := resolveProvider(cfg, registry)
	prov, err := registry.Create(providerName, providerCfg.Model, provider.Options{
		Temperature: providerCfg.Temperature,
	})
	if err != nil {
		fmt.Printf("Error creating provider %q: %v (is it registered in config.toml?)\n", providerName, err)
		os.Exit(1)
	}
	defer prov.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	f, err := facade.New(ctx, facade.Options{
		Workdir:          cfg.Workdir,
		SessionDir:       sessionDir,
		RestoreSessionID: *flagSession,
		ContinueLast:     *flagContinue,
		Config:           cfg,
		Provider:         prov,
		Model:            providerCfg.Model,
		Callbacks: facade.Callbacks{
			OnEvent:          printEvent,
			McpServersChange: printMCPServersChange,
		},
		AutoConnectMCP: true,
	})
	if err != nil {
		fmt.Printf("Error starting session: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := f.Destroy(); err != nil {
			log.Warn().Err(err).Msg("facade destroy failed")
		}
	}()

	fmt.Printf("session %s (workdir %s)\n", f.SessionID(), cfg.Workdir)
	runREPL(ctx, f)
}

// runREPL reads one line at a time from stdin and feeds it to the Facade.
// Each line is one turn: blank lines are skipped, everything else goes
// through SendMessage, which itself resolves the "#"/"!" special-input
// modes before ever touching the AgentLoop.
func runREPL(ctx context.Context, f *facade.Facade) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return
		}
		if err := f.SendMessage(ctx, line, nil); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func buildRegistry(cfg *config.CoreConfig) *provider.Registry {
	return provider.NewRegistry()
}

func resolveProvider(cfg *config.CoreConfig, registry *provider.Registry) (string, config.ProviderConfig) {
	name := cfg.DefaultProvider
	if name == "" {
		providers := registry.List()
		if len(providers) == 0 {
			fmt.Println("Error: no providers registered. This build ships only the provider.Provider boundary; " +
				"register a Factory for your chat-completion backend before running.")
			os.Exit(1)
		}
		name = providers[0]
	}
	pcfg, ok := cfg.Providers[name]
	if !ok {
		fmt.Printf("Error: provider %q not found in config.toml\n", name)
		os.Exit(1)
	}
	return name, pcfg
}

func setupFileLogging() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	dataDir, err := config.DataDir()
	if err != nil {
		return err
	}

	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0750); err != nil {
		return err
	}

	logFile := filepath.Join(logDir, "agentcore.log")
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	log.Logger = log.Output(file)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	return nil
}

func listSessions(sessionDir string) {
	sessions, err := store.Open(sessionDir)
	if err != nil {
		fmt.Printf("Error opening session store: %v\n", err)
		return
	}
	entries, err := sessions.List()
	if err != nil {
		fmt.Printf("Error listing sessions: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No sessions found")
		return
	}
	for _, s := range entries {
		fmt.Printf("%s  %s  %s\n", s.ID, s.LastActiveAt.Format("2006-01-02 15:04"), s.Workdir)
	}
}

// printEvent renders the change events a terminal UI would otherwise
// subscribe to. Only the events with human-visible content are printed;
// bookkeeping events (token counts, input history) are silent.
func printEvent(e messagestore.Event) {
	switch e.Kind {
	case messagestore.EventAnswerBlockAdded, messagestore.EventAnswerBlockUpdated:
		if e.Block != nil {
			fmt.Print(e.Block.Content)
		}
	case messagestore.EventToolBlockAdded:
		if e.Block != nil {
			fmt.Printf("\n[tool] %s\n", e.Block.Name)
		}
	case messagestore.EventDiffBlockAdded:
		if e.Block != nil {
			fmt.Printf("\n[diff] %s\n", e.Block.FilePath)
		}
	case messagestore.EventErrorBlockAdded:
		if e.Block != nil {
			fmt.Printf("\n[error] %s\n", e.Block.Content)
		}
	case messagestore.EventCommandOutputAdded, messagestore.EventCommandOutputUpdated:
		fmt.Print(e.Output)
	case messagestore.EventCommandOutputComplete:
		fmt.Printf("\n[exit %d]\n", e.ExitCode)
	case messagestore.EventCompressBlockAdded:
		fmt.Println("\n[history compressed]")
	}
}

func printMCPServersChange(servers []mcpclient.ServerState) {
	for _, s := range servers {
		if s.Status != mcpclient.StatusConnected {
			log.Warn().Str("server", s.Name).Str("status", s.Status.String()).Msg("mcp server not connected")
		}
	}
}
