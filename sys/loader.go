package sys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/godave/golibdave"
	"github.com/disgoorg/snowflake/v2"
)

// safeGo runs a function in a new goroutine with panic recovery
func safeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				LogError(MsgLoaderPanicRecovered, r)
				fmt.Printf("%s\n", debug.Stack())
			}
		}()
		f()
	}()
}

// --- Global State & Setup ---

var StartupTime = time.Now()

var (
	registryMu               sync.RWMutex
	commands                 = []discord.ApplicationCommandCreate{}
	commandHandlers          = map[string]func(event *events.ApplicationCommandInteractionCreate){}
	autocompleteHandlers     = map[string]func(event *events.AutocompleteInteractionCreate){}
	voiceStateUpdateHandlers []func(event *events.GuildVoiceStateUpdate)
	onClientReadyCallbacks   []func(client *bot.Client)
)

// --- Bot Initialization ---

// CreateClient creates a disgo client with the intents and caches voice
// playback needs. Listeners dispatch to the registries below.
func CreateClient(cfg *Config) (*bot.Client, error) {
	return disgo.New(cfg.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildVoiceStates,
			),
			gateway.WithPresenceOpts(
				gateway.WithListeningActivity("/play"),
				gateway.WithOnlineStatus(discord.OnlineStatusOnline),
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagChannels, cache.FlagVoiceStates),
		),
		bot.WithVoiceManagerConfigOpts(
			voice.WithDaveSessionCreateFunc(golibdave.NewSession),
		),
		bot.WithEventListenerFunc(onApplicationCommandInteraction),
		bot.WithEventListenerFunc(onAutocompleteInteraction),
		bot.WithEventListenerFunc(onVoiceStateUpdate),
		bot.WithEventListenerFunc(onReady),
		bot.WithLogger(slog.Default()),
		bot.WithRestClientConfigOpts(
			rest.WithHTTPClient(&http.Client{
				Timeout: 60 * time.Second,
				Transport: &http.Transport{
					MaxIdleConns:        100,
					MaxIdleConnsPerHost: 50,
					IdleConnTimeout:     90 * time.Second,
				},
			}),
		),
	)
}

// --- Command & Handler Registration ---

func RegisterCommand(cmd discord.ApplicationCommandCreate, handler func(event *events.ApplicationCommandInteractionCreate)) {
	registryMu.Lock()
	defer registryMu.Unlock()
	commands = append(commands, cmd)
	switch c := cmd.(type) {
	case discord.SlashCommandCreate:
		commandHandlers[c.CommandName()] = handler
	case discord.UserCommandCreate:
		commandHandlers[c.CommandName()] = handler
	case discord.MessageCommandCreate:
		commandHandlers[c.CommandName()] = handler
	}
}

func RegisterAutocompleteHandler(cmdName string, handler func(event *events.AutocompleteInteractionCreate)) {
	registryMu.Lock()
	defer registryMu.Unlock()
	autocompleteHandlers[cmdName] = handler
}

func RegisterVoiceStateUpdateHandler(handler func(event *events.GuildVoiceStateUpdate)) {
	registryMu.Lock()
	defer registryMu.Unlock()
	voiceStateUpdateHandlers = append(voiceStateUpdateHandlers, handler)
}

func OnClientReady(cb func(client *bot.Client)) {
	registryMu.Lock()
	defer registryMu.Unlock()
	onClientReadyCallbacks = append(onClientReadyCallbacks, cb)
}

// Commands returns a copy of every registered command definition.
func Commands() []discord.ApplicationCommandCreate {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return append([]discord.ApplicationCommandCreate(nil), commands...)
}

// --- Command Syncing Logic ---

// calculateCommandHash generates a SHA256 hash of the commands slice
func calculateCommandHash(cmds []discord.ApplicationCommandCreate) string {
	data, err := json.Marshal(cmds)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// shouldRegister reports whether the stored hash and mode differ from the
// current command set.
func shouldRegister(ctx context.Context, currentHash, currentMode string, force bool) bool {
	if force || currentHash == "" {
		return true
	}
	lastHash, _ := GetBotConfig(ctx, "last_cmd_hash")
	lastMode, _ := GetBotConfig(ctx, "last_reg_mode")
	return currentHash != lastHash || currentMode != lastMode
}

// RegisterCommands syncs commands globally, or to guildIDStr when set, and
// clears leftovers from the other mode.
func RegisterCommands(ctx context.Context, client *bot.Client, guildIDStr string, forceScan bool) error {
	cmds := Commands()
	lastGuildID, _ := GetBotConfig(ctx, "last_guild_id")
	lastMode, _ := GetBotConfig(ctx, "last_reg_mode")

	currentMode := "guild"
	if guildIDStr == "" {
		currentMode = "global"
	}
	LogLoader(MsgLoaderSyncCommands, strings.ToUpper(currentMode))

	currentHash := calculateCommandHash(cmds)
	register := shouldRegister(ctx, currentHash, currentMode, forceScan)
	if !register {
		LogLoader(MsgLoaderUpToDate, currentHash[:8])
	}

	if currentMode == "global" {
		if register {
			LogLoader(MsgLoaderProdStarting)
			created, err := client.Rest.SetGlobalCommands(client.ApplicationID, cmds)
			if err != nil {
				return fmt.Errorf(MsgLoaderProdFail, err)
			}
			for _, cmd := range created {
				LogLoader(MsgLoaderProdRegistered, cmd.Name())
			}
		}
		if forceScan {
			clearGhostGuilds(client, 0)
		}
		if lastGuildID != "" {
			clearGuildCommands(client, lastGuildID)
		}
	} else {
		guildID, err := snowflake.Parse(guildIDStr)
		if err != nil {
			return fmt.Errorf("%s: %w", MsgConfigInvalidGuild, err)
		}

		if register {
			LogLoader(MsgLoaderDevStarting, guildIDStr)
			created, err := client.Rest.SetGuildCommands(client.ApplicationID, guildID, cmds)
			if err != nil {
				LogWarn(MsgLoaderDevFail, err)
			} else {
				for _, cmd := range created {
					LogLoader(MsgLoaderDevRegistered, cmd.Name())
				}
			}
		}

		if lastMode != currentMode || forceScan {
			if existing, err := client.Rest.GetGlobalCommands(client.ApplicationID, false); err == nil && len(existing) > 0 {
				LogLoader(MsgLoaderDevGlobalClear)
				if _, err := client.Rest.SetGlobalCommands(client.ApplicationID, []discord.ApplicationCommandCreate{}); err != nil {
					LogWarn(MsgLoaderDevGlobalClearFail, err)
				}
			}
		}
		if lastGuildID != "" && lastGuildID != guildIDStr {
			clearGuildCommands(client, lastGuildID)
		}
		if forceScan {
			clearGhostGuilds(client, guildID)
		}
	}

	_ = SetBotConfig(ctx, "last_reg_mode", currentMode)
	_ = SetBotConfig(ctx, "last_guild_id", guildIDStr)
	if currentHash != "" {
		_ = SetBotConfig(ctx, "last_cmd_hash", currentHash)
	}
	return nil
}

func clearGuildCommands(client *bot.Client, guildIDStr string) {
	id, err := snowflake.Parse(guildIDStr)
	if err != nil {
		return
	}
	if existing, err := client.Rest.GetGuildCommands(client.ApplicationID, id, false); err == nil && len(existing) > 0 {
		LogLoader(MsgLoaderCleanup, guildIDStr)
		_, _ = client.Rest.SetGuildCommands(client.ApplicationID, id, []discord.ApplicationCommandCreate{})
	}
}

// clearGhostGuilds removes guild-scoped commands everywhere except keep.
func clearGhostGuilds(client *bot.Client, keep snowflake.ID) {
	LogLoader(MsgLoaderScanStarting)
	guilds, err := client.Rest.GetCurrentUserGuilds("", 0, 0, 100, false)
	if err != nil {
		return
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, 5)
	for _, g := range guilds {
		if g.ID == keep {
			continue
		}
		wg.Add(1)
		go func(guild discord.OAuth2Guild) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if existing, err := client.Rest.GetGuildCommands(client.ApplicationID, guild.ID, false); err == nil && len(existing) > 0 {
				LogLoader(MsgLoaderScanCleared, guild.Name, guild.ID.String())
				_, _ = client.Rest.SetGuildCommands(client.ApplicationID, guild.ID, []discord.ApplicationCommandCreate{})
			}
		}(g)
	}
	wg.Wait()
}

// --- Event Handlers ---

func onReady(event *events.Ready) {
	botUser := event.User
	LogInfo(MsgBotReady, botUser.Username, botUser.ID.String(), os.Getpid(), time.Since(StartupTime).Milliseconds())

	registryMu.RLock()
	callbacks := append(([]func(*bot.Client))(nil), onClientReadyCallbacks...)
	registryMu.RUnlock()
	for _, cb := range callbacks {
		cb(event.Client())
	}
}

func onApplicationCommandInteraction(event *events.ApplicationCommandInteractionCreate) {
	registryMu.RLock()
	h, ok := commandHandlers[event.Data.CommandName()]
	registryMu.RUnlock()
	if ok {
		safeGo(func() { h(event) })
	}
}

func onAutocompleteInteraction(event *events.AutocompleteInteractionCreate) {
	registryMu.RLock()
	h, ok := autocompleteHandlers[event.Data.CommandName]
	registryMu.RUnlock()
	if ok {
		safeGo(func() { h(event) })
	}
}

func onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	registryMu.RLock()
	handlers := append(([]func(*events.GuildVoiceStateUpdate))(nil), voiceStateUpdateHandlers...)
	registryMu.RUnlock()
	for _, h := range handlers {
		safeGo(func() { h(event) })
	}
}
