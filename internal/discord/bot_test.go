package discord

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/botcore/internal/authority"
	"github.com/keshon/botcore/internal/command"
	"github.com/keshon/botcore/internal/command/commandtest"
	"github.com/keshon/botcore/internal/core"
	"github.com/keshon/botcore/internal/events"
	"github.com/keshon/botcore/internal/locale"
	"github.com/keshon/botcore/internal/module"
	"github.com/keshon/botcore/internal/modules/roles"
	"github.com/keshon/botcore/internal/storage"
	"github.com/keshon/botcore/pkg/jobmgr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingModule struct {
	module.Base
	pinged    []string
	executed  int
	presences [][2]*discordgo.Presence
}

func (m *pingModule) Name() string { return "ping" }

func (m *pingModule) RegisterCommands(r *command.Registry) {
	r.Add("ping", "", "fun", "player", func(ctx *command.Context, _ []string, _ string, _ command.Extension) error {
		m.pinged = append(m.pinged, ctx.Actor.ID)
		_, err := ctx.Send("pong")
		return err
	})
}

func (m *pingModule) SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{{Name: "ping", Description: "Ping"}}
}

func (m *pingModule) IncomingInteraction(i *command.Interaction) error {
	return core.RespondEphemeral(i.Session, i.Event, "pong")
}

func (m *pingModule) OnPresenceUpdate(old, updated *discordgo.Presence) error {
	m.presences = append(m.presences, [2]*discordgo.Presence{old, updated})
	return nil
}

func (m *pingModule) OnCommandExecuted(*command.Context, *command.Command) error {
	m.executed++
	return nil
}

func newBot(t *testing.T, deps Deps) (*Bot, *pingModule) {
	t.Helper()
	loc, err := locale.Parse([]byte(`{}`), nil)
	require.NoError(t, err)

	ping := &pingModule{Base: module.NewBase(module.Entry{})}
	deps.Locale = loc
	deps.Logger = zerolog.Nop()
	deps.Modules = []module.Module{ping}

	b, err := New(Options{Token: "test", GuildBlacklist: []string{"evil"}}, deps)
	require.NoError(t, err)
	b.Reload()
	return b, ping
}

func guildState(t *testing.T) *discordgo.State {
	t.Helper()
	state := discordgo.NewState()
	require.NoError(t, state.GuildAdd(&discordgo.Guild{
		ID:      "g1",
		OwnerID: "owner",
		Roles: []*discordgo.Role{
			{ID: "admins", Permissions: discordgo.PermissionAdministrator},
			{ID: "players"},
		},
	}))
	return state
}

func guildMessage(userID, content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   content,
		Author:    &discordgo.User{ID: userID},
	}
}

func TestActorFromMember(t *testing.T) {
	state := guildState(t)

	owner := ActorFromMember(state, "g1", &discordgo.Member{User: &discordgo.User{ID: "owner"}})
	assert.True(t, owner.Admin)

	admin := ActorFromMember(state, "g1", &discordgo.Member{User: &discordgo.User{ID: "u1"}, Roles: []string{"admins"}})
	assert.True(t, admin.Admin)
	assert.Equal(t, []string{"admins"}, admin.Roles)

	plain := ActorFromMember(state, "g1", &discordgo.Member{User: &discordgo.User{ID: "u2"}, Roles: []string{"players"}})
	assert.False(t, plain.Admin)
	assert.Equal(t, "u2", plain.ID)
	assert.Equal(t, "g1", plain.GuildID)

	resolved := ActorFromMember(nil, "g1", &discordgo.Member{User: &discordgo.User{ID: "u3"}, Permissions: discordgo.PermissionAdministrator})
	assert.True(t, resolved.Admin)

	assert.Equal(t, authority.Actor{GuildID: "g1"}, ActorFromMember(state, "g1", nil))
}

func TestReloadRegistersBuiltinsAndModules(t *testing.T) {
	b, ping := newBot(t, Deps{})

	assert.NotNil(t, b.registry.HelpCommand())
	assert.Len(t, b.registry.ByKey("ping"), 1)
	require.Len(t, b.dispatcher.Commands(), 1)
	assert.Equal(t, "ping", b.dispatcher.Commands()[0].Name)

	b.Reload()
	assert.Len(t, b.registry.ByKey("ping"), 1)
	assert.Empty(t, ping.pinged)
}

func TestHelpAuthoritySurvivesReload(t *testing.T) {
	b, _ := newBot(t, Deps{})
	assert.Equal(t, []string{authority.Everyone}, b.registry.HelpCommand().AuthorityLabels)

	b.SetHelpAuthority([]string{"mod"})
	assert.Equal(t, []string{"mod"}, b.registry.HelpCommand().AuthorityLabels)

	b.Reload()
	assert.Equal(t, []string{"mod"}, b.registry.HelpCommand().AuthorityLabels)
}

func TestHelpAuthorityFromOptions(t *testing.T) {
	loc, err := locale.Parse([]byte(`{}`), nil)
	require.NoError(t, err)

	b, err := New(Options{Token: "test", HelpAuthority: []string{"player"}}, Deps{
		Locale:  loc,
		Logger:  zerolog.Nop(),
		Modules: []module.Module{},
	})
	require.NoError(t, err)
	b.Reload()

	assert.Equal(t, []string{"player"}, b.registry.HelpCommand().AuthorityLabels)
}

func TestRunCommandFollowsRoleMap(t *testing.T) {
	b, ping := newBot(t, Deps{})
	state := guildState(t)
	msgr := &commandtest.Messenger{}
	member := &discordgo.Member{User: &discordgo.User{ID: "u2"}, Roles: []string{"players"}}

	assert.Equal(t, core.OutcomeDenied, b.runCommand(msgr, state, guildMessage("u2", "!ping"), member))
	assert.Empty(t, ping.pinged)

	b.roles.Replace("g1", map[string]string{"player": "players"})
	assert.Equal(t, core.OutcomeExecuted, b.runCommand(msgr, state, guildMessage("u2", "!ping"), member))
	assert.Equal(t, []string{"u2"}, ping.pinged)
	assert.Equal(t, 1, ping.executed)

	member.Roles = nil
	assert.Equal(t, core.OutcomeDenied, b.runCommand(msgr, state, guildMessage("u2", "!ping"), member))
}

func TestRunCommandBlacklistAndOutage(t *testing.T) {
	b, ping := newBot(t, Deps{})
	state := guildState(t)
	msgr := &commandtest.Messenger{}
	owner := &discordgo.Member{User: &discordgo.User{ID: "owner"}}

	b.handleEvent(events.Event{Type: events.BlacklistChanged, UserIDs: []string{"owner"}})
	assert.Equal(t, core.OutcomeIgnored, b.runCommand(msgr, state, guildMessage("owner", "!ping"), owner))
	assert.Empty(t, msgr.Sent())

	b.handleEvent(events.Event{Type: events.BlacklistChanged})
	b.onGuildDelete(nil, &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "g1", Unavailable: true}})
	assert.Equal(t, core.OutcomeUnavailable, b.runCommand(msgr, state, guildMessage("owner", "!ping"), owner))
	assert.Equal(t, []string{core.UnavailableNotice}, msgr.Contents())

	b.mu.Lock()
	delete(b.unavailable, "g1")
	b.mu.Unlock()
	assert.Equal(t, core.OutcomeExecuted, b.runCommand(msgr, state, guildMessage("owner", "!ping"), owner))
	assert.Equal(t, []string{"owner"}, ping.pinged)
}

func TestDispatchSlashCommand(t *testing.T) {
	b, _ := newBot(t, Deps{})
	state := guildState(t)
	resp := &commandtest.Responder{}

	ev := commandtest.SlashCommand("g1", "owner", "ping")
	b.dispatch(resp, state, ev)
	assert.Equal(t, "pong", resp.LastContent())

	ev = commandtest.SlashCommand("g1", "u2", "ping")
	b.dispatch(resp, state, ev)
	assert.Equal(t, core.ForbiddenNotice, resp.LastContent())
}

func TestRolesChangedReloadsRoleMap(t *testing.T) {
	sql := storage.New(storage.Config{
		Driver: storage.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "bot.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, sql.Init(context.Background()))
	t.Cleanup(func() { _ = sql.Close(context.Background()) })

	ctx := context.Background()
	require.NoError(t, roles.Migrate(ctx, sql))
	require.NoError(t, roles.Set(ctx, sql, "g1", "player", "players"))

	b, _ := newBot(t, Deps{SQL: sql})
	_, ok := b.roles.Get("g1")
	assert.False(t, ok)

	b.handleEvent(events.Event{Type: events.RolesChanged, GuildID: "g1"})
	m, ok := b.roles.Get("g1")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"player": "players"}, m)

	require.NoError(t, sql.Close(ctx))
	b.handleEvent(events.Event{Type: events.RolesChanged, GuildID: "g1"})
	m, _ = b.roles.Get("g1")
	assert.Equal(t, "players", m["player"])
}

func TestGuildBlacklist(t *testing.T) {
	b, _ := newBot(t, Deps{})
	assert.True(t, b.isGuildBlacklisted("evil"))
	assert.False(t, b.isGuildBlacklisted("g1"))
}

func presenceUpdate(userID string, status discordgo.Status) *discordgo.PresenceUpdate {
	return &discordgo.PresenceUpdate{
		GuildID:  "g1",
		Presence: discordgo.Presence{User: &discordgo.User{ID: userID}, Status: status},
	}
}

func TestPresenceUpdateCarriesPrevious(t *testing.T) {
	b, ping := newBot(t, Deps{})

	b.onPresenceUpdate(nil, presenceUpdate("u1", discordgo.StatusOnline))
	b.onPresenceUpdate(nil, presenceUpdate("u1", discordgo.StatusIdle))
	b.onGuildMemberRemove(nil, &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}}})
	b.onPresenceUpdate(nil, presenceUpdate("u1", discordgo.StatusDoNotDisturb))

	require.Len(t, ping.presences, 3)
	assert.Nil(t, ping.presences[0][0])
	assert.Equal(t, discordgo.StatusOnline, ping.presences[0][1].Status)

	require.NotNil(t, ping.presences[1][0])
	assert.Equal(t, discordgo.StatusOnline, ping.presences[1][0].Status)
	assert.Equal(t, discordgo.StatusIdle, ping.presences[1][1].Status)

	assert.Nil(t, ping.presences[2][0])
}

func TestTruncateReport(t *testing.T) {
	assert.Equal(t, "short", truncateReport("short", 10))
	assert.Equal(t, "abc...", truncateReport("abcdef", 3))

	// "é" is two bytes; a cut inside it backs off to the rune start
	cut := truncateReport("aé"+strings.Repeat("x", 10), 2)
	assert.Equal(t, "a...", cut)
	assert.True(t, utf8.ValidString(cut))
}

func TestUserMessage(t *testing.T) {
	assert.True(t, userMessage(&discordgo.Message{Author: &discordgo.User{ID: "u"}, Type: discordgo.MessageTypeReply}))
	assert.False(t, userMessage(&discordgo.Message{Author: &discordgo.User{ID: "u", Bot: true}}))
	assert.False(t, userMessage(&discordgo.Message{}))
	assert.False(t, userMessage(&discordgo.Message{Author: &discordgo.User{ID: "u"}, Type: discordgo.MessageTypeGuildMemberJoin}))
}

type fakeOverwriter struct {
	mu       sync.Mutex
	failures int
	calls    []string
	last     map[string][]*discordgo.ApplicationCommand
}

func (f *fakeOverwriter) ApplicationCommandBulkOverwrite(_ string, guildID string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, guildID)
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("rate limited")
	}
	if f.last == nil {
		f.last = make(map[string][]*discordgo.ApplicationCommand)
	}
	f.last[guildID] = cmds
	return cmds, nil
}

func (f *fakeOverwriter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestSlashSyncWritesEveryGuild(t *testing.T) {
	api := &fakeOverwriter{}
	s := NewSlashSync(api, jobmgr.NewManager(nil), 0, time.Minute, zerolog.Nop())
	s.SetAppID("app")
	cmds := []*discordgo.ApplicationCommand{{Name: "ping", Description: "Ping"}}

	require.NoError(t, s.Sync(context.Background(), []string{"g1", "g2"}, cmds))
	assert.Equal(t, []string{"g1", "g2"}, api.Calls())

	// unchanged set is not written again
	require.NoError(t, s.Sync(context.Background(), []string{"g1"}, cmds))
	assert.Len(t, api.Calls(), 2)

	s.Forget("g1")
	require.NoError(t, s.Sync(context.Background(), []string{"g1"}, nil))
	assert.Len(t, api.Calls(), 3)
	assert.NotNil(t, api.last["g1"])
	assert.Empty(t, api.last["g1"])
}

func TestSlashSyncRetriesFailedGuild(t *testing.T) {
	api := &fakeOverwriter{failures: 2}
	jobs := jobmgr.NewManager(nil)
	s := NewSlashSync(api, jobs, 0, 10*time.Millisecond, zerolog.Nop())
	s.SetAppID("app")
	cmds := []*discordgo.ApplicationCommand{{Name: "ping", Description: "Ping"}}

	require.NoError(t, s.Sync(context.Background(), []string{"g1"}, cmds))

	assert.Eventually(t, func() bool {
		return len(api.Calls()) == 3 && !jobs.Running(retryJob("g1"))
	}, time.Second, 5*time.Millisecond)
}

func TestSlashSyncCooldown(t *testing.T) {
	api := &fakeOverwriter{}
	s := NewSlashSync(api, jobmgr.NewManager(nil), 30*time.Millisecond, time.Minute, zerolog.Nop())
	s.SetAppID("app")

	start := time.Now()
	require.NoError(t, s.Sync(context.Background(), []string{"g1", "g2", "g3"}, nil))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Forget("g1")
	assert.Error(t, s.Sync(ctx, []string{"g1", "g2"}, nil))
}

func TestHashCommandsIgnoresOrder(t *testing.T) {
	a := &discordgo.ApplicationCommand{Name: "a", Description: "A"}
	z := &discordgo.ApplicationCommand{Name: "z", Description: "Z", Options: []*discordgo.ApplicationCommandOption{
		{Name: "y", Type: discordgo.ApplicationCommandOptionString},
		{Name: "x", Type: discordgo.ApplicationCommandOptionUser},
	}}

	assert.Equal(t, hashCommands([]*discordgo.ApplicationCommand{a, z}), hashCommands([]*discordgo.ApplicationCommand{z, a}))
	assert.NotEqual(t, hashCommands([]*discordgo.ApplicationCommand{a}), hashCommands([]*discordgo.ApplicationCommand{a, z}))
}
