package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/botcore/internal/authority"
	"github.com/keshon/botcore/internal/command"
	"github.com/keshon/botcore/internal/module"
	"github.com/rs/zerolog"
)

const (
	BlacklistedNotice = "You're not allowed to use this command."
	UnsupportedNotice = "This interaction is unsupported."
	ForbiddenNotice   = "You do not have permission to use this command."
)

// Dispatcher routes slash command interactions to the module declaring the
// command.
type Dispatcher struct {
	Blacklist *authority.Blacklist
	Log       zerolog.Logger

	mu     sync.RWMutex
	owners map[string]module.Module
	decls  map[string]*discordgo.ApplicationCommand
}

func NewDispatcher(blacklist *authority.Blacklist, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Blacklist: blacklist,
		Log:       log,
		owners:    make(map[string]module.Module),
		decls:     make(map[string]*discordgo.ApplicationCommand),
	}
}

// Bind records which module owns each declared slash command. A later
// module declaring the same name takes it over.
func (d *Dispatcher) Bind(mods []module.Module) {
	owners := make(map[string]module.Module)
	decls := make(map[string]*discordgo.ApplicationCommand)
	for _, m := range mods {
		for _, c := range m.SlashCommands() {
			if prev, ok := owners[c.Name]; ok {
				d.Log.Warn().Str("command", c.Name).Str("old", prev.Name()).Str("new", m.Name()).Msg("Slash command declared twice")
			}
			owners[c.Name] = m
			decls[c.Name] = c
		}
	}

	d.mu.Lock()
	d.owners = owners
	d.decls = decls
	d.mu.Unlock()
}

// Commands returns every bound slash command declaration sorted by name.
func (d *Dispatcher) Commands() []*discordgo.ApplicationCommand {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*discordgo.ApplicationCommand, 0, len(d.decls))
	for _, c := range d.decls {
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func (d *Dispatcher) owner(name string) module.Module {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.owners[name]
}

// Dispatch handles one interaction. Non command interactions and those
// outside a guild are ignored.
func (d *Dispatcher) Dispatch(s command.InteractionResponder, i *discordgo.InteractionCreate, actor authority.Actor) (err error) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return nil
	}
	// commands are only served in guilds
	if i.GuildID == "" {
		return nil
	}
	name := i.ApplicationCommandData().Name

	if d.Blacklist != nil && d.Blacklist.Contains(actor.ID) {
		d.Log.Info().Str("user", actor.ID).Str("command", name).Msg("Blacklisted user tried a slash command")
		return RespondEphemeral(s, i, BlacklistedNotice)
	}

	if i.Member == nil || i.Member.User == nil {
		return Respond(s, i, UnsupportedNotice)
	}

	d.Log.Info().Str("guild", i.GuildID).Str("user", actor.ID).Str("command", name).Msg("Slash command used")

	m := d.owner(name)
	if m == nil {
		d.Log.Error().Str("command", name).Msg("Command not registered as module")
		return nil
	}

	if !m.InteractionPermitted(actor, name) {
		return RespondEphemeral(s, i, ForbiddenNotice)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("module %s panicked on /%s: %v", m.Name(), name, r)
		}
		if err != nil {
			d.Log.Error().Err(err).Str("module", m.Name()).Str("command", name).Msg("Interaction failed")
		}
	}()
	return m.IncomingInteraction(&command.Interaction{Session: s, Event: i, Actor: actor})
}
