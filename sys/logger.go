package sys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// --- Globals & Styles ---

var (
	// Level colors
	debugColor = color.New(color.FgHiBlack)
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)

	// Component colors
	databaseColor = color.New()
	loaderColor   = color.New(color.FgBlue)
	resolverColor = color.New(color.FgGreen)
	voiceColor    = color.New(color.FgMagenta)

	DefaultTimeFormat = "15:04:05"
	IsSilent          = false
	LogToFile         = false
	Logger            *slog.Logger

	logFile *os.File
	logMu   sync.Mutex
)

// LevelFatal sits above slog.LevelError and is rendered as FATAL.
const LevelFatal = slog.LevelError + 4

func init() {
	InitLogger(false, false)
}

// InitLogger installs the bot handler as the default slog logger.
func InitLogger(silent bool, saveToFile bool) {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	LogToFile = saveToFile
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout
	if LogToFile {
		logName := GetProjectName() + ".log"
		if exePath, err := os.Executable(); err == nil {
			logName = filepath.Base(exePath) + ".log"
		}

		f, err := os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logName, err)
		} else {
			logFile = f
			writer = io.MultiWriter(os.Stdout, NewStripANSIWriter(logFile))
		}
	}

	Logger = slog.New(NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	}))
	slog.SetDefault(Logger)
}

func SetSilentMode(silent bool) {
	InitLogger(silent, LogToFile)
}

// --- Public Logging API ---

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

// LogFatal logs and panics so deferred cleanup in main still runs.
func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), LevelFatal, msg)
	panic(msg)
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// Component Loggers

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogLoader(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "loader"))
}

func LogResolver(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "resolver"))
}

func LogVoice(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "voice"))
}

// --- Log Handler Implementation ---

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

// BotLogHandler renders records as "15:04:05 [LEVEL] [COMPONENT] message".
type BotLogHandler struct {
	w     io.Writer
	opts  *BotLogHandlerOptions
	mu    *sync.Mutex
	attrs []slog.Attr
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var levelStr string
	var levelColor *color.Color
	switch {
	case r.Level >= LevelFatal:
		levelStr, levelColor = "FATAL", fatalColor
	case r.Level >= slog.LevelError:
		levelStr, levelColor = "ERROR", errorColor
	case r.Level >= slog.LevelWarn:
		levelStr, levelColor = "WARN", warnColor
	case r.Level >= slog.LevelInfo:
		levelStr, levelColor = "INFO", infoColor
	default:
		levelStr, levelColor = "DEBUG", debugColor
	}

	component := ""
	var extra []string
	collect := func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return true
		}
		extra = append(extra, a.Key+"="+a.Value.String())
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	msg := r.Message
	if len(extra) > 0 {
		msg += " " + strings.Join(extra, " ")
	}

	fmt.Fprintf(h.w, "%s", ts.Format(DefaultTimeFormat))

	if component != "" {
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		compColor := getComponentColor(component)
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(compColor, fmt.Sprintf("[%s] %s", component, msg)))
		return nil
	}

	fmt.Fprintf(h.w, " %s\n", colorizeWithResets(levelColor, fmt.Sprintf("[%s] %s", levelStr, msg)))
	return nil
}

// WithAttrs keeps attributes so that loggers derived by disgo (which attach
// a "name" attribute) are still rendered.
func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *BotLogHandler) WithGroup(name string) slog.Handler { return h }

// --- Formatting Helpers ---

func getComponentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "LOADER":
		return loaderColor
	case "RESOLVER":
		return resolverColor
	case "VOICE":
		return voiceColor
	default:
		return color.New(color.FgCyan)
	}
}

func colorizeWithResets(c *color.Color, text string) string {
	if !strings.Contains(text, "\x1b[0m") {
		return c.Sprint(text)
	}

	marker := "@@@MSG@@@"
	wrapped := c.Sprint(marker)
	idx := strings.Index(wrapped, marker)
	if idx <= 0 {
		return text
	}
	startSeq := wrapped[:idx]

	return c.Sprint(strings.ReplaceAll(text, "\x1b[0m", "\x1b[0m"+startSeq))
}

func GetLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// --- ANSI Stripper ---

type StripANSIWriter struct {
	w  io.Writer
	re *regexp.Regexp
}

func NewStripANSIWriter(w io.Writer) *StripANSIWriter {
	return &StripANSIWriter{
		w:  w,
		re: regexp.MustCompile(`\x1b\[[0-9;]*m`),
	}
}

func (s *StripANSIWriter) Write(p []byte) (n int, err error) {
	_, err = s.w.Write(s.re.ReplaceAll(p, nil))
	return len(p), err
}

// --- Message Constants ---

const (
	// --- Infrastructure & Lifecycle ---
	MsgConfigFailedToLoad  = "Failed to load config: %v"
	MsgConfigMissingToken  = "DISCORD_TOKEN is not set in .env file"
	MsgConfigInvalidGuild  = "invalid GUILD_ID: must be a valid Snowflake"
	MsgConfigPathMissing   = "%s: '%s' does not exist"
	MsgConfigPathNotFile   = "%s: '%s' is not a file"
	MsgConfigPathNotDir    = "%s: '%s' is not a directory"
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgBotStarting         = "Starting %s..."
	MsgBotReady            = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown         = "Shutting down %s..."
	MsgBotRegisterFail     = "Command registration failed: %v"
	MsgBotSkipRegister     = "Skipping command registration as requested."
	MsgBotKillingOld       = "Killing running instance... (PID: %d)"
	MsgBotOldTerminated    = "Old instance terminated."
	MsgBotLogFile          = "Writing logs to %s"
	MsgBotStubborn         = "Old process %d is stubborn. Sending SIGKILL..."
	MsgGenericError        = "%v"

	// --- Loader ---
	MsgLoaderSyncCommands       = "Syncing %s commands..."
	MsgLoaderUpToDate           = "Commands are up to date. (Hash: %s)"
	MsgLoaderCleanup            = "[CLEANUP] Removing commands from previous dev guild: %s"
	MsgLoaderDevStarting        = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered      = "[DEV] Registered: %s"
	MsgLoaderDevFail            = "[DEV] Registration failed: %v"
	MsgLoaderDevGlobalClear     = "[DEV] Verifying global commands are cleared..."
	MsgLoaderDevGlobalClearFail = "[DEV] Global clear skipped (likely rate limited): %v"
	MsgLoaderProdStarting       = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered     = "[PROD] Registered: %s"
	MsgLoaderProdFail           = "[PROD] Global registration failed: %w"
	MsgLoaderScanStarting       = "[SCAN] Checking all guilds for ghost commands..."
	MsgLoaderScanCleared        = "[SCAN] Cleared ghost commands from: %s (%s)"
	MsgLoaderPanicRecovered     = "Panic recovered in handler: %v"

	// --- Resolver ---
	MsgResolverResolved    = "Resolved %q in %dms"
	MsgResolverProbeFailed = "Cached stream for %q failed liveness probe: %v"
	MsgResolverLibrary     = "Indexed %d local audio file(s) from %s"
	MsgResolverLibraryFail = "Failed to re-index local audio: %v"
	MsgSuggestTimeout      = "Autocomplete search timed out for %q"

	// --- Voice ---
	MsgVoiceJoining        = "Joining channel %s in guild %s"
	MsgVoiceJoined         = "Connected to channel %s in guild %s"
	MsgVoiceJoinFailed     = "Failed to connect to voice in guild %s: %v"
	MsgVoiceRetry          = "Retrying voice connection in %v (attempt %d/%d)"
	MsgVoiceMoving         = "Moving to channel %s in guild %s"
	MsgVoiceLeft           = "Left voice in guild %s"
	MsgVoiceLeaveFailed    = "Graceful leave failed in guild %s: %v"
	MsgVoiceAutoLeave      = "Queue finished in guild %s, leaving"
	MsgVoiceDropped        = "Voice connection dropped in guild %s"
	MsgVoiceTrackStart     = "Now playing in guild %s: %s"
	MsgVoiceTrackEnd       = "Finished in guild %s: %s"
	MsgVoiceTrackFailed    = "Playback failed in guild %s: %v"
	MsgVoiceFollowUpFailed = "Failed to send now-playing follow-up: %v"
	MsgVoiceTranscodeFail  = "Transcoder %s failed: %v"
	MsgVoiceShutdown       = "Closing %d voice session(s)"
)

// User-facing replies.
const (
	MsgGuildOnly         = "This command can only be used in a server."
	MsgNotInVoice        = "You must be in a voice channel to use this command."
	MsgNotConnected      = "Not connected to a voice channel."
	MsgJoinFailed        = "Failed to join voice channel."
	MsgResolveFailed     = "Could not find anything playable for that query."
	MsgStreamFailed      = "Found the track but could not start streaming it."
	MsgNoSuchFile        = "No such file."
	MsgQueueEmpty        = "Queue is empty."
	MsgSkipped           = "Skipped."
	MsgDisconnected      = "Disconnected."
	MsgChangedChannel    = "Changed voice channel."
	MsgChangeFailed      = "Failed to change voice channel."
	MsgQueueCleared      = "Queue cleared."
	MsgQueueShuffled     = "Queue shuffled."
	MsgNowPlaying        = "Now playing"
	MsgAddedToQueue      = "Added to queue"
	MsgQueueTitle        = "Queue"
	MsgFieldArtist       = "Artist"
	MsgFieldAuthor       = "Author"
	MsgFieldDuration     = "Duration"
	MsgFieldQueueLength  = "Queue length"
	MsgUnexpectedFailure = "Something went wrong."
)
