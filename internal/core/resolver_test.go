package core

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/botcore/internal/authority"
	"github.com/keshon/botcore/internal/command"
	"github.com/keshon/botcore/internal/locale"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	Content string
	Embed   *discordgo.MessageEmbed
	Reply   bool
}

type fakeMessenger struct {
	mu      sync.Mutex
	n       int
	sent    []sent
	deleted []string
}

func (f *fakeMessenger) next(channelID string, s sent) *discordgo.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	f.sent = append(f.sent, s)
	return &discordgo.Message{ID: strconv.Itoa(f.n), ChannelID: channelID}
}

func (f *fakeMessenger) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return f.next(channelID, sent{Content: content}), nil
}

func (f *fakeMessenger) ChannelMessageSendEmbed(channelID string, e *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return f.next(channelID, sent{Embed: e}), nil
}

func (f *fakeMessenger) ChannelMessageSendReply(channelID, content string, _ *discordgo.MessageReference, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return f.next(channelID, sent{Content: content, Reply: true}), nil
}

func (f *fakeMessenger) ChannelMessageDelete(_, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, messageID)
	f.mu.Unlock()
	return nil
}

func (f *fakeMessenger) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func (f *fakeMessenger) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

const testLocale = `{
  "command": {
    "role": {
      "": ["<n>Usage", "<v>!%name% <name> <@role>"],
      "list": ["<n>Usage", "<v>!%name%"]
    }
  }
}`

type harness struct {
	reg    *command.Registry
	roles  *authority.RoleMaps
	black  *authority.Blacklist
	res    *Resolver
	msgr   *fakeMessenger
	called []string
	args   [][]string
	raws   []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	loc, err := locale.Parse([]byte(testLocale), nil)
	require.NoError(t, err)

	h := &harness{
		reg:   command.NewRegistry(),
		roles: authority.NewRoleMaps(),
		black: authority.NewBlacklist(),
		msgr:  &fakeMessenger{},
	}
	h.res = NewResolver(h.reg, authority.New("", h.roles), h.black, loc, zerolog.Nop())
	h.res.RegisterBuiltins()
	return h
}

func (h *harness) record(name string) command.Callback {
	return func(_ *command.Context, args []string, raw string, _ command.Extension) error {
		h.called = append(h.called, name)
		h.args = append(h.args, args)
		h.raws = append(h.raws, raw)
		return nil
	}
}

func (h *harness) ctx(content string, actor authority.Actor) *command.Context {
	if actor.GuildID == "" {
		actor.GuildID = "g1"
	}
	return &command.Context{
		Session:        h.msgr,
		Message:        &discordgo.Message{ID: "m1", ChannelID: "c1", GuildID: actor.GuildID, Content: content},
		Actor:          actor,
		GuildAvailable: true,
	}
}

func (h *harness) handle(content string, actor authority.Actor) Outcome {
	return h.res.Handle(h.ctx(content, actor))
}

var (
	member = authority.Actor{ID: "u1"}
	admin  = authority.Actor{ID: "a1", Admin: true}
)

func TestSubNameAndFallback(t *testing.T) {
	h := newHarness(t)
	h.reg.Add("role", "", "core", authority.Everyone, h.record("role"))
	h.reg.Add("role", "list", "core", authority.Everyone, h.record("role list"))

	assert.Equal(t, OutcomeExecuted, h.handle("! role  list", member))
	assert.Equal(t, OutcomeExecuted, h.handle("!role mod @x", member))
	assert.Equal(t, OutcomeExecuted, h.handle("!role", member))

	assert.Equal(t, []string{"role list", "role", "role"}, h.called)
	assert.Equal(t, []string{"mod", "@x"}, h.args[1])
	assert.Equal(t, "mod @x", h.raws[1])
	assert.Empty(t, h.args[2])
}

func TestSubNameIsExactToken(t *testing.T) {
	h := newHarness(t)
	h.reg.Add("role", "", "core", authority.Everyone, h.record("role"))
	h.reg.Add("role", "sub", "core", authority.Everyone, h.record("role sub"))

	h.handle("!role subscribe now", member)

	require.Equal(t, []string{"role"}, h.called)
	assert.Equal(t, "subscribe now", h.raws[0])
}

func TestNoFallbackFailsSilently(t *testing.T) {
	h := newHarness(t)
	h.reg.Add("blacklist", "add", "core", authority.Everyone, h.record("add"))

	assert.Equal(t, OutcomeIgnored, h.handle("!blacklist purge", member))
	assert.Equal(t, OutcomeIgnored, h.handle("!unknown", member))
	assert.Equal(t, OutcomeIgnored, h.handle("role", member))
	assert.Empty(t, h.msgr.messages())
}

func TestBaseMatchIsCaseInsensitiveAndUsesAliases(t *testing.T) {
	h := newHarness(t)
	h.reg.Register(command.Command{
		BaseNames:       []string{"blacklist", "bl"},
		SubNames:        []string{"add", "a"},
		AuthorityLabels: []string{authority.Everyone},
		Callback:        h.record("bl add"),
	})

	h.handle("!BL A 123", member)
	h.handle("!Blacklist add 456", member)

	assert.Equal(t, []string{"bl add", "bl add"}, h.called)
	assert.Equal(t, "456", h.raws[1])
}

func TestFirstKeyWins(t *testing.T) {
	h := newHarness(t)
	h.reg.Add("x", "", "", authority.Everyone, h.record("first"))
	h.reg.Register(command.Command{
		BaseNames:       []string{"y", "x"},
		AuthorityLabels: []string{authority.Everyone},
		Callback:        h.record("second"),
	})

	h.handle("!x", member)
	assert.Equal(t, []string{"first"}, h.called)
}

func TestBareHelpListsCategories(t *testing.T) {
	h := newHarness(t)
	h.reg.Add("help-me", "", "misc", authority.Everyone, h.record("help-me"))
	h.reg.Add("role", "", "core", "", h.record("role"))

	assert.Equal(t, OutcomeExecuted, h.handle("!help", member))
	assert.Empty(t, h.called)

	msgs := h.msgr.messages()
	require.Len(t, msgs, 1)
	e := msgs[0].Embed
	require.NotNil(t, e)
	assert.Equal(t, ":information_source: Help", e.Title)
	require.Len(t, e.Fields, 1)
	assert.Equal(t, "misc", e.Fields[0].Name)
	assert.Equal(t, "`help`, `help-me`", e.Fields[0].Value)

	assert.Equal(t, OutcomeExecuted, h.handle("!help", admin))
	e = h.msgr.messages()[1].Embed
	require.Len(t, e.Fields, 2)
	assert.Equal(t, "core", e.Fields[1].Name)
	assert.Equal(t, "`role`", e.Fields[1].Value)
}

func TestCategoryHelpBothOrders(t *testing.T) {
	h := newHarness(t)
	h.reg.Add("role", "", "core", authority.Everyone, h.record("role"))
	h.reg.Add("role", "list", "core", authority.Everyone, h.record("role list"))

	assert.Equal(t, OutcomeCategoryHelp, h.handle("!help core", member))
	assert.Equal(t, OutcomeCategoryHelp, h.handle("!core help", member))
	assert.Empty(t, h.called)

	msgs := h.msgr.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, msgs[0].Embed, msgs[1].Embed)
	assert.Equal(t, ":information_source: Category Help", msgs[0].Embed.Title)
	assert.Equal(t, "role, role list", msgs[0].Embed.Fields[0].Value)
}

func TestCategoryHelpNeedsHelpAuthority(t *testing.T) {
	h := newHarness(t)
	h.reg.Add("role", "", "core", authority.Everyone, h.record("role"))
	h.reg.SetHelpAuthority(nil)

	// falls through to the command help of "core", which does not exist
	assert.Equal(t, OutcomeIgnored, h.handle("!help core", member))
	assert.Equal(t, OutcomeCategoryHelp, h.handle("!help core", admin))
}

func TestCategoryHelpWithNothingVisibleSendsNothing(t *testing.T) {
	h := newHarness(t)
	h.reg.Add("role", "", "core", "", h.record("role"))

	assert.Equal(t, OutcomeCategoryHelp, h.handle("!help core", member))
	assert.Empty(t, h.msgr.messages())
}

func TestLeadingAndTrailingHelp(t *testing.T) {
	h := newHarness(t)
	h.reg.Add("role", "", "core", authority.Everyone, h.record("role"))
	h.reg.Add("role", "list", "core", authority.Everyone, h.record("role list"))

	assert.Equal(t, OutcomeHelp, h.handle("!help role list", member))
	assert.Equal(t, OutcomeHelp, h.handle("!role list help", member))
	assert.Equal(t, OutcomeHelp, h.handle("!HELP role", member))
	assert.Empty(t, h.called)

	msgs := h.msgr.messages()
	require.Len(t, msgs, 3)
	e := msgs[0].Embed
	assert.Equal(t, ":information_source: Command Help", e.Title)
	require.Len(t, e.Fields, 1)
	assert.Equal(t, "Usage", e.Fields[0].Name)
	assert.Equal(t, "!role list", e.Fields[0].Value)
	assert.Equal(t, "!role <name> <@role>", msgs[2].Embed.Fields[0].Value)
}

func TestHelpWithUnknownCommandIsSilent(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, OutcomeIgnored, h.handle("!help nothing", member))
	assert.Empty(t, h.msgr.messages())
}

func TestBlacklistedActorGetsNothing(t *testing.T) {
	h := newHarness(t)
	h.black.Replace([]string{member.ID})

	assert.Equal(t, OutcomeIgnored, h.handle("!help", member))
	assert.Empty(t, h.msgr.messages())
}

func TestUnavailableGuild(t *testing.T) {
	h := newHarness(t)
	h.reg.Add("role", "", "core", authority.Everyone, h.record("role"))

	ctx := h.ctx("!role", member)
	ctx.GuildAvailable = false
	assert.Equal(t, OutcomeUnavailable, h.res.Handle(ctx))

	msgs := h.msgr.messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Reply)
	assert.Equal(t, UnavailableNotice, msgs[0].Content)
	assert.Empty(t, h.called)

	// unknown commands stay silent during an outage
	ctx = h.ctx("!nothing", member)
	ctx.GuildAvailable = false
	assert.Equal(t, OutcomeIgnored, h.res.Handle(ctx))
}

func TestDeniedAdministratorOnly(t *testing.T) {
	h := newHarness(t)
	h.reg.Register(command.Command{BaseNames: []string{"role"}, SubNames: []string{""}, Callback: h.record("role")})

	assert.Equal(t, OutcomeDenied, h.handle("!role mod @x", member))
	assert.Empty(t, h.called)

	msgs := h.msgr.messages()
	require.Len(t, msgs, 1)
	e := msgs[0].Embed
	assert.Equal(t, ":octopus: Access Denied", e.Title)
	assert.Equal(t, 6824314, e.Color)
	assert.Equal(t, "Your clearance level is too low to call `!role`.\nYou need to be an administrator.", e.Description)
}

func TestDeniedListsRoles(t *testing.T) {
	h := newHarness(t)
	h.reg.Add("role", "list", "core", "", h.record("role list"))
	h.reg.Register(command.Command{
		BaseNames:       []string{"warn"},
		AuthorityLabels: []string{"mod", "helper"},
		Callback:        h.record("warn"),
	})
	h.roles.Replace("g1", map[string]string{"mod": "r1"})

	assert.Equal(t, OutcomeDenied, h.handle("!warn @x", member))
	e := h.msgr.messages()[0].Embed
	assert.Equal(t, "Your clearance level is too low to call `!warn`.\nYou need one of the following roles: <@&r1>, <@&null>", e.Description)

	h.handle("!role list", member)
	e = h.msgr.messages()[1].Embed
	assert.Contains(t, e.Description, "`!role list`")
}

func TestRoleGrantFlipsAccess(t *testing.T) {
	h := newHarness(t)
	h.reg.Add("warn", "", "mod", "mod", h.record("warn"))
	h.roles.Replace("g1", map[string]string{"mod": "r1"})

	assert.Equal(t, OutcomeDenied, h.handle("!warn", member))

	granted := member
	granted.Roles = []string{"r1"}
	assert.Equal(t, OutcomeExecuted, h.handle("!warn", granted))

	assert.Equal(t, OutcomeDenied, h.handle("!warn", member))
}

func TestUserErrorEmbedIsDeletedAfterTTL(t *testing.T) {
	h := newHarness(t)
	h.res.ErrorMessageTTL = 20 * time.Millisecond
	h.reg.Add("role", "", "core", authority.Everyone, func(*command.Context, []string, string, command.Extension) error {
		return command.Fail("bad args")
	})

	assert.Equal(t, OutcomeUserError, h.handle("!role", member))

	msgs := h.msgr.messages()
	require.Len(t, msgs, 1)
	e := msgs[0].Embed
	assert.Equal(t, ":warning: Command Error", e.Title)
	assert.Equal(t, 16763981, e.Color)
	assert.Equal(t, "bad args", e.Description)

	assert.Eventually(t, func() bool {
		return len(h.msgr.deletedIDs()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1"}, h.msgr.deletedIDs())
}

func TestInternalErrorIsOnlyLogged(t *testing.T) {
	h := newHarness(t)
	h.reg.Add("role", "", "core", authority.Everyone, func(*command.Context, []string, string, command.Extension) error {
		return errors.New("sql offline")
	})
	h.reg.Add("boom", "", "core", authority.Everyone, func(*command.Context, []string, string, command.Extension) error {
		panic("nil map")
	})

	assert.Equal(t, OutcomeFailed, h.handle("!role", member))
	assert.Equal(t, OutcomeFailed, h.handle("!boom", member))
	assert.Empty(t, h.msgr.messages())
}

func TestExecutedHook(t *testing.T) {
	h := newHarness(t)
	h.reg.Add("role", "", "core", authority.Everyone, h.record("role"))

	var got []string
	h.res.Executed = func(_ *command.Context, c *command.Command) {
		got = append(got, c.DisplayName())
	}

	h.handle("!role", member)
	h.handle("!role help", member)
	assert.Equal(t, []string{"role"}, got)
}

func TestParseKeepsTrailingHelpInRaw(t *testing.T) {
	h := newHarness(t)
	h.reg.Add("role", "", "core", authority.Everyone, h.record("role"))

	p, ok := h.res.Parse("!role   help me", func(*command.Command) bool { return true })
	require.True(t, ok)
	assert.True(t, p.Help)
	assert.Equal(t, "help me", p.Raw)
	assert.Equal(t, "role", p.Command.Base())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "denied", OutcomeDenied.String())
	assert.Equal(t, "outcome(42)", Outcome(42).String())
}
