// Package discord connects the core to the Discord gateway: it owns the
// session, turns gateway events into resolver, dispatcher and module hook
// calls, and keeps slash commands registered.
package discord

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/botcore/datastore"
	"github.com/keshon/botcore/internal/authority"
	"github.com/keshon/botcore/internal/command"
	"github.com/keshon/botcore/internal/core"
	"github.com/keshon/botcore/internal/events"
	"github.com/keshon/botcore/internal/locale"
	"github.com/keshon/botcore/internal/logging"
	"github.com/keshon/botcore/internal/module"
	"github.com/keshon/botcore/internal/storage"
	"github.com/keshon/botcore/pkg/jobmgr"
	"github.com/rs/zerolog"
)

// Options are the connection settings of the bot.
type Options struct {
	Token                 string
	FullAuthorityOverride string
	GuildBlacklist        []string
	// HelpAuthority replaces the labels of the help command when set.
	HelpAuthority []string

	ErrorReportGuildID   string
	ErrorReportChannelID string

	ErrorMessageTTL time.Duration
	ReconnectDelay  time.Duration
	SlashRetryDelay time.Duration
	SlashCooldown   time.Duration
}

// Deps are the services the bot hands to modules.
type Deps struct {
	SQL    *storage.SQL
	Docs   *datastore.Store
	Locale *locale.Locale
	Events *events.Bus
	Jobs   *jobmgr.Manager
	Report *logging.Reporter
	Logger zerolog.Logger

	// Modules replaces the statically registered modules when set.
	Modules []module.Module
}

// Bot is a Discord bot
type Bot struct {
	opts Options
	deps Deps
	log  zerolog.Logger

	dg         *discordgo.Session
	registry   *command.Registry
	roles      *authority.RoleMaps
	blacklist  *authority.Blacklist
	authority  *authority.Authority
	resolver   *core.Resolver
	dispatcher *core.Dispatcher
	hooks      *core.Hooks
	slash      *SlashSync

	mu           sync.Mutex
	ctx          context.Context
	firstConnect bool
	closing      bool
	known        map[string]bool
	unavailable  map[string]bool
	helpLabels   []string
	presences    map[string]map[string]discordgo.Presence
}

// New creates the session and the modules. Nothing connects until Run.
func New(opts Options, deps Deps) (*Bot, error) {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 10 * time.Second
	}
	if deps.Jobs == nil {
		deps.Jobs = jobmgr.NewManager(nil)
	}
	if deps.Events == nil {
		deps.Events = events.NewBus(0, deps.Logger)
	}

	dg, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsAll
	// reconnects are scheduled by onDisconnect
	dg.ShouldReconnectOnError = false

	log := logging.Component(deps.Logger, "discord")
	b := &Bot{
		opts:         opts,
		deps:         deps,
		log:          log,
		dg:           dg,
		registry:     command.NewRegistry(),
		roles:        authority.NewRoleMaps(),
		blacklist:    authority.NewBlacklist(),
		ctx:          context.Background(),
		firstConnect: true,
		known:        make(map[string]bool),
		unavailable:  make(map[string]bool),
		helpLabels:   append([]string(nil), opts.HelpAuthority...),
		presences:    make(map[string]map[string]discordgo.Presence),
	}
	b.authority = authority.New(opts.FullAuthorityOverride, b.roles)
	b.resolver = core.NewResolver(b.registry, b.authority, b.blacklist, deps.Locale, logging.Component(deps.Logger, "resolver"))
	if opts.ErrorMessageTTL > 0 {
		b.resolver.ErrorMessageTTL = opts.ErrorMessageTTL
	}
	b.dispatcher = core.NewDispatcher(b.blacklist, logging.Component(deps.Logger, "interactions"))
	b.slash = NewSlashSync(dg, deps.Jobs, opts.SlashCooldown, opts.SlashRetryDelay, logging.Component(deps.Logger, "slash"))

	mods := deps.Modules
	if mods == nil {
		mods, err = module.Build(b.Entry())
		if err != nil {
			return nil, err
		}
	}
	b.hooks = core.NewHooks(mods, logging.Component(deps.Logger, "modules"))
	b.resolver.Executed = b.hooks.CommandExecuted

	deps.Events.Subscribe(b.handleEvent)
	b.addHandlers()
	return b, nil
}

// Entry is the capability bundle modules are built with.
func (b *Bot) Entry() module.Entry {
	return module.Entry{
		Session:               b.dg,
		Locale:                b.deps.Locale,
		SQL:                   b.deps.SQL,
		Docs:                  b.deps.Docs,
		Events:                b.deps.Events,
		FullAuthorityOverride: b.opts.FullAuthorityOverride,
		RoleID:                b.roles.RoleID,
		Logger:                b.deps.Logger,
	}
}

func (b *Bot) addHandlers() {
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onDisconnect)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onGuildDelete)
	b.dg.AddHandler(b.onMessageCreate)
	b.dg.AddHandler(b.onMessageUpdate)
	b.dg.AddHandler(b.onMessageDelete)
	b.dg.AddHandler(b.onGuildMemberAdd)
	b.dg.AddHandler(b.onGuildMemberRemove)
	b.dg.AddHandler(b.onMessageReactionAdd)
	b.dg.AddHandler(b.onPresenceUpdate)
	b.dg.AddHandler(b.onInteractionCreate)
}

// Run connects and blocks until ctx is done, then stops background jobs and
// closes the session. Storage is drained by the caller.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	go b.deps.Events.Run(ctx)

	b.log.Info().Msg("Logging in...")
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	<-ctx.Done()
	b.log.Info().Msg("Shutdown signal received. Cleaning up...")

	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.deps.Jobs.StopAll(stopCtx); err != nil {
		b.log.Warn().Err(err).Msg("Background jobs did not stop in time")
	}
	if b.deps.Report != nil {
		b.deps.Report.SetTarget(nil)
	}
	return b.dg.Close()
}

func (b *Bot) context() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.mu.Lock()
	first := b.firstConnect
	b.firstConnect = false
	b.mu.Unlock()

	if !first {
		b.log.Info().Str("user", r.User.Username).Str("id", r.User.ID).Msg("Successfully reconnected")
		return
	}
	b.log.Info().Str("user", r.User.Username).Str("id", r.User.ID).Msg("Logged in")

	b.slash.SetAppID(r.User.ID)
	b.setReportTarget(s)

	var guilds []*discordgo.Guild
	for _, g := range r.Guilds {
		if b.isGuildBlacklisted(g.ID) {
			b.leaveGuild(s, g)
			continue
		}
		if full, err := s.State.Guild(g.ID); err == nil {
			g = full
		}
		guilds = append(guilds, g)
	}

	b.mu.Lock()
	for _, g := range guilds {
		b.known[g.ID] = true
	}
	b.mu.Unlock()

	ctx := b.context()
	for _, g := range guilds {
		b.initGuild(ctx, g)
	}

	b.Reload()
	b.slash.Start("all", b.Guilds(), b.dispatcher.Commands())
	b.log.Info().Int("guilds", len(guilds)).Int("commands", b.registry.Len()).Msg("Discord bot is running")
}

// Reload rebuilds the text command registry and the slash command owners.
func (b *Bot) Reload() {
	b.registry.Clear()
	b.resolver.RegisterBuiltins()

	b.mu.Lock()
	labels := b.helpLabels
	b.mu.Unlock()
	if labels != nil {
		b.registry.SetHelpAuthority(labels)
	}

	b.hooks.RegisterCommands(b.registry)
	b.dispatcher.Bind(b.hooks.Modules())
}

// SetHelpAuthority sets the labels of the help command. They apply at once
// and after every Reload.
func (b *Bot) SetHelpAuthority(labels []string) {
	labels = append([]string{}, labels...)
	b.mu.Lock()
	b.helpLabels = labels
	b.mu.Unlock()
	b.registry.SetHelpAuthority(labels)
}

func (b *Bot) initGuild(ctx context.Context, g *discordgo.Guild) {
	if b.deps.Docs != nil {
		if err := b.deps.Docs.CreateDatabase(g.ID); err != nil {
			b.log.Error().Err(err).Str("guild", g.ID).Msg("Failed to create guild database")
		}
	}
	if err := b.hooks.InitGuild(ctx, g); err != nil {
		b.log.Error().Err(err).Str("guild", g.ID).Msg("Module initialisation failed")
	}
}

// Guilds returns the ids of the guilds the bot serves, sorted.
func (b *Bot) Guilds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.known))
	for id := range b.known {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	b.mu.Lock()
	delete(b.unavailable, g.ID)
	ready := !b.firstConnect
	known := b.known[g.ID]
	b.mu.Unlock()

	// guilds listed in Ready are set up there
	if !ready || known {
		return
	}

	if b.isGuildBlacklisted(g.ID) {
		b.leaveGuild(s, g.Guild)
		return
	}
	b.log.Info().Str("guild", g.ID).Str("name", g.Name).Msg("Bot added to guild")

	b.mu.Lock()
	b.known[g.ID] = true
	b.mu.Unlock()

	b.initGuild(b.context(), g.Guild)
	b.slash.Start(g.ID, []string{g.ID}, b.dispatcher.Commands())
}

func (b *Bot) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if g.Unavailable {
		b.unavailable[g.ID] = true
		b.log.Warn().Str("guild", g.ID).Msg("Guild unavailable")
		return
	}
	delete(b.known, g.ID)
	delete(b.presences, g.ID)
	b.slash.Forget(g.ID)
	b.log.Info().Str("guild", g.ID).Msg("Bot removed from guild")
}

func (b *Bot) guildAvailable(guildID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.unavailable[guildID]
}

func (b *Bot) isGuildBlacklisted(guildID string) bool {
	return slices.Contains(b.opts.GuildBlacklist, guildID)
}

func (b *Bot) leaveGuild(s *discordgo.Session, g *discordgo.Guild) {
	b.log.Info().Str("guild", g.ID).Str("name", g.Name).Msg("Leaving blacklisted guild")
	if err := s.GuildLeave(g.ID); err != nil {
		b.log.Error().Err(err).Str("guild", g.ID).Msg("Failed to leave guild")
	}
}

func (b *Bot) onDisconnect(s *discordgo.Session, _ *discordgo.Disconnect) {
	b.mu.Lock()
	closing := b.closing
	b.mu.Unlock()
	if closing {
		return
	}

	b.log.Info().Dur("delay", b.opts.ReconnectDelay).Msg("Disconnected. Reconnecting...")
	time.AfterFunc(b.opts.ReconnectDelay, func() { b.reconnect(s) })
}

func (b *Bot) reconnect(s *discordgo.Session) {
	b.mu.Lock()
	closing := b.closing
	b.mu.Unlock()
	if closing {
		return
	}

	if err := s.Open(); err != nil && err != discordgo.ErrWSAlreadyOpen {
		b.log.Error().Err(err).Msg("Reconnect failed")
		time.AfterFunc(b.opts.ReconnectDelay, func() { b.reconnect(s) })
	}
}
