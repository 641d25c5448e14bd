package home

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/chorus/sys"
)

const (
	statsAnsiReset    = "\u001b[0m"
	statsAnsiPink     = "\u001b[35m"
	statsAnsiPinkBold = "\u001b[35;1m"
)

func statsKey(text string) string {
	return fmt.Sprintf("%s> %s:%s", statsAnsiPink, text, statsAnsiReset)
}

func statsVal(text string) string {
	return fmt.Sprintf("%s%s%s", statsAnsiPinkBold, text, statsAnsiReset)
}

func init() {
	adminPerm := discord.PermissionAdministrator

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "stats",
		Description:              "Display playback and process statistics (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionBool{
				Name:        "ephemeral",
				Description: "Whether the message should be ephemeral (default: true)",
				Required:    false,
			},
		},
	}, handleStats)
}

// statsSnapshot is what /stats reports.
type statsSnapshot struct {
	Uptime     time.Duration
	Gateway    time.Duration
	Goroutines int
	HeapMB     float64
	Sessions   int
	Cached     int
	Library    int
}

func collectStats(s *Services, gateway time.Duration) statsSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	snap := statsSnapshot{
		Uptime:     time.Since(sys.StartupTime),
		Gateway:    gateway,
		Goroutines: runtime.NumGoroutine(),
		HeapMB:     float64(mem.HeapAlloc) / 1024 / 1024,
	}
	if s == nil {
		return snap
	}
	if s.Player != nil {
		snap.Sessions = s.Player.Len()
	}
	if s.Resolver != nil {
		snap.Cached = s.Resolver.Cache().Len()
	}
	if s.Library != nil {
		snap.Library = s.Library.Len()
	}
	return snap
}

func statsText(snap statsSnapshot) string {
	var sb strings.Builder
	sb.WriteString("```ansi\n")
	fmt.Fprintf(&sb, "%s %s\n", statsKey("Uptime"), statsVal(snap.Uptime.Truncate(time.Second).String()))
	fmt.Fprintf(&sb, "%s %s\n", statsKey("Gateway"), statsVal(fmt.Sprintf("%dms", snap.Gateway.Milliseconds())))
	fmt.Fprintf(&sb, "%s %s\n", statsKey("Goroutines"), statsVal(fmt.Sprint(snap.Goroutines)))
	fmt.Fprintf(&sb, "%s %s\n", statsKey("Heap"), statsVal(fmt.Sprintf("%.1f MB", snap.HeapMB)))
	fmt.Fprintf(&sb, "%s %s\n", statsKey("Voice sessions"), statsVal(fmt.Sprint(snap.Sessions)))
	fmt.Fprintf(&sb, "%s %s\n", statsKey("Cached tracks"), statsVal(fmt.Sprint(snap.Cached)))
	fmt.Fprintf(&sb, "%s %s\n", statsKey("Local files"), statsVal(fmt.Sprint(snap.Library)))
	sb.WriteString("```")
	return sb.String()
}

func handleStats(event *events.ApplicationCommandInteractionCreate) {
	ephemeral := true
	if eph, ok := event.SlashCommandInteractionData().OptBool("ephemeral"); ok {
		ephemeral = eph
	}

	snap := collectStats(services.Load(), event.Client().Gateway.Latency())
	err := event.CreateMessage(discord.NewMessageCreate().
		WithIsComponentsV2(true).
		WithEphemeral(ephemeral).
		AddComponents(textContainer(statsText(snap))))
	if err != nil {
		sys.LogDebug("Failed to send stats: %v", err)
	}
}
