package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/leeineian/chorus/home"
	"github.com/leeineian/chorus/player"
	"github.com/leeineian/chorus/proc"
	"github.com/leeineian/chorus/sys"
	"github.com/leeineian/chorus/track"
)

const pidFile = ".bot.pid"

func main() {
	// LogFatal panics so deferred cleanup runs; turn that into an exit code.
	defer func() {
		if r := recover(); r != nil {
			if msg, ok := r.(string); ok {
				fmt.Fprintf(os.Stderr, "\n[FATAL] %s\n", msg)
				os.Exit(1)
			}
			panic(r)
		}
	}()

	silent := flag.Bool("silent", false, "Disable all log output")
	skipReg := flag.Bool("skip-reg", false, "Skip command registration")
	clearAll := flag.Bool("clear-all", false, "Force clear guild commands (scan all guilds)")
	flag.Parse()

	sys.InitLogger(*silent, true)
	if path := sys.GetLogPath(); path != "" {
		sys.LogDebug(sys.MsgBotLogFile, path)
	}

	cfg, err := sys.LoadConfig()
	if err != nil {
		sys.LogFatal(sys.MsgGenericError, err)
	}
	sys.LogInfo(sys.MsgBotStarting, sys.GetProjectName())

	unlock := acquirePIDLock()
	defer unlock()

	if err := run(cfg, *silent, *skipReg, *clearAll); err != nil {
		sys.LogFatal(sys.MsgGenericError, err)
	}
}

// acquirePIDLock takes an exclusive lock on the PID file, terminating any
// previous instance that still holds it.
func acquirePIDLock() func() {
	f, err := os.OpenFile(pidFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		sys.LogFatal("Failed to open PID file: %v", err)
	}

	for {
		err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if err != syscall.EWOULDBLOCK {
			sys.LogFatal("Failed to lock PID file: %v", err)
		}

		var oldPid int
		_, _ = f.Seek(0, 0)
		if _, scanErr := fmt.Fscanf(f, "%d", &oldPid); scanErr != nil || oldPid == os.Getpid() {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		terminate(oldPid)
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d", os.Getpid())
	_ = f.Sync()

	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		_ = os.Remove(pidFile)
	}
}

func terminate(pid int) {
	process, err := os.FindProcess(pid)
	if err != nil {
		time.Sleep(100 * time.Millisecond)
		return
	}

	sys.LogInfo(sys.MsgBotKillingOld, pid)
	_ = process.Signal(syscall.SIGTERM)

	// Up to 5s for voice sessions to leave cleanly.
	for range 50 {
		if err := process.Signal(syscall.Signal(0)); err != nil {
			sys.LogInfo(sys.MsgBotOldTerminated)
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	sys.LogWarn(sys.MsgBotStubborn, pid)
	_ = process.Signal(syscall.SIGKILL)
	time.Sleep(200 * time.Millisecond)
}

func run(cfg *sys.Config, silent, skipReg, clearAll bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	client, err := sys.CreateClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create Discord client: %w", err)
	}
	defer client.Close(context.Background())

	if err := sys.InitDatabase(ctx, cfg.DatabasePath); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer sys.CloseDatabase()

	library, err := track.OpenLibrary(cfg.LocalAudioDir)
	if err != nil {
		return fmt.Errorf("failed to index local audio: %w", err)
	}
	if cfg.LocalAudioDir != "" {
		sys.LogResolver(sys.MsgResolverLibrary, library.Len(), cfg.LocalAudioDir)
		// Pick up files added while the bot was offline on every new gateway session.
		sys.OnClientReady(func(*bot.Client) {
			if err := library.Reload(); err != nil {
				sys.LogWarn(sys.MsgResolverLibraryFail, err)
			}
		})
	}

	resolver := track.NewResolver(track.ResolverOptions{
		Extractor: &track.YtdlpExtractor{
			Executable: cfg.YtdlpPath,
			Cookies:    cfg.CookiesFile,
			Proxy:      cfg.YoutubeProxy,
		},
		ResolveTimeout: cfg.ResolveTimeout,
		ProbeTimeout:   cfg.ProbeTimeout,
		Rate:           cfg.ResolveRate,
		Burst:          2,
	})

	voice := proc.NewVoice(client)
	manager := player.NewManager(voice, voice)
	sys.RegisterVoiceStateUpdateHandler(voice.HandleVoiceStateUpdate)

	home.Setup(&home.Services{
		Player:    manager,
		Resolver:  resolver,
		Library:   library,
		Suggester: track.NewSuggester(0),
	})

	if !skipReg {
		if err := sys.RegisterCommands(ctx, client, cfg.GuildID, clearAll); err != nil {
			sys.LogError(sys.MsgBotRegisterFail, err)
		}
	} else {
		sys.LogInfo(sys.MsgBotSkipRegister)
	}

	if err := client.OpenGateway(ctx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	<-ctx.Done()
	if !silent {
		fmt.Println()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	manager.Shutdown(shutdownCtx)

	if botUser, ok := client.Caches.SelfUser(); ok {
		sys.LogInfo(sys.MsgBotShutdown, botUser.Username)
	} else {
		sys.LogInfo(sys.MsgBotShutdown, sys.GetProjectName())
	}
	return nil
}
