// Package roles maps authority labels to guild roles. Every change is
// announced on the event bus so the core reloads the guild's role map.
package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/botcore/internal/command"
	"github.com/keshon/botcore/internal/core"
	"github.com/keshon/botcore/internal/events"
	"github.com/keshon/botcore/internal/module"
	"github.com/keshon/botcore/internal/storage"
	"gorm.io/gorm"
)

const Name = "roles"

// Role is one label -> role mapping of a guild.
type Role struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	GuildID string `gorm:"size:64;not null;index"`
	Name    string `gorm:"size:128;not null"`
	RoleID  string `gorm:"size:64;not null"`
}

func (Role) TableName() string { return "roles_roles" }

func init() {
	module.Register(Name, func(e module.Entry) (module.Module, error) {
		return New(e), nil
	})
}

type Module struct {
	module.Base

	// RoleExists reports whether the role is present on the guild.
	RoleExists func(guildID, roleID string) bool
}

func New(e module.Entry) *Module {
	m := &Module{Base: module.NewBase(e)}
	m.RoleExists = m.sessionRoleExists
	return m
}

func (m *Module) Name() string { return Name }

// Migrate creates the roles table.
func Migrate(ctx context.Context, sql *storage.SQL) error {
	return sql.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.AutoMigrate(&Role{})
	})
}

// Load returns the label -> role id mapping of a guild.
func Load(ctx context.Context, sql *storage.SQL, guildID string) (map[string]string, error) {
	var rows []Role
	err := sql.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Where("guild_id = ?", guildID).Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Name] = r.RoleID
	}
	return out, nil
}

// Set maps name to roleID in the guild, replacing an earlier mapping.
func Set(ctx context.Context, sql *storage.SQL, guildID, name, roleID string) error {
	return sql.Transaction(ctx, func(tx *gorm.DB) error {
		var existing Role
		err := tx.Where("guild_id = ? AND name = ?", guildID, name).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&Role{GuildID: guildID, Name: name, RoleID: roleID}).Error
		case err != nil:
			return err
		}
		return tx.Model(&existing).Update("role_id", roleID).Error
	})
}

func (m *Module) Init(ctx context.Context, guild *discordgo.Guild) error {
	if err := Migrate(ctx, m.Entry.SQL); err != nil {
		return fmt.Errorf("ensure roles schema: %w", err)
	}
	m.publish(guild.ID)
	return nil
}

func (m *Module) publish(guildID string) {
	if m.Entry.Events != nil {
		m.Entry.Events.Publish(events.Event{Type: events.RolesChanged, GuildID: guildID})
	}
}

func (m *Module) RegisterCommands(r *command.Registry) {
	r.Add("role", "", "core", "", m.role)
}

func (m *Module) text(category, key string) string {
	return m.Entry.Locale.Category(category, key)
}

// role handles "!role <name> <@role>".
func (m *Module) role(ctx *command.Context, args []string, _ string, _ command.Extension) error {
	if len(args) < 1 {
		return command.Fail(m.text("roles", "err_name_not_provided"))
	}
	if len(args) < 2 {
		return command.Fail(m.text("", "err_role_mention_not_provided"))
	}
	roleID, ok := command.SnowflakeFromMention(args[1])
	if !ok {
		return command.Fail(m.text("", "err_role_mention_not_correct"))
	}

	if !m.RoleExists(ctx.GuildID(), roleID) {
		_, err := ctx.Send(m.text("", "err_role_not_on_server"))
		return err
	}

	if err := Set(context.Background(), m.Entry.SQL, ctx.GuildID(), args[0], roleID); err != nil {
		return fmt.Errorf("set role %s: %w", args[0], err)
	}
	m.publish(ctx.GuildID())

	_, err := ctx.Send(m.text("roles", "role_add_success"))
	return err
}

func (m *Module) SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{{
		Name:        "role",
		Description: "Map a name used by command permissions to a server role",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "name",
				Description: "Permission name",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionRole,
				Name:        "role",
				Description: "Server role",
				Required:    true,
			},
		},
	}}
}

func (m *Module) IncomingInteraction(i *command.Interaction) error {
	name := i.Option("name")
	roleID := i.Option("role")
	if name == "" || roleID == "" {
		return core.RespondEphemeral(i.Session, i.Event, m.text("roles", "err_name_not_provided"))
	}

	if err := Set(context.Background(), m.Entry.SQL, i.GuildID(), name, roleID); err != nil {
		if errors.Is(err, storage.ErrOffline) {
			return core.RespondEphemeral(i.Session, i.Event, "Storage is offline, try again later.")
		}
		return err
	}
	m.publish(i.GuildID())

	return core.RespondEphemeral(i.Session, i.Event, m.text("roles", "role_add_success"))
}

func (m *Module) sessionRoleExists(guildID, roleID string) bool {
	s := m.Entry.Session
	if s == nil {
		return true
	}
	if r, err := s.State.Role(guildID, roleID); err == nil && r != nil {
		return true
	}
	roles, err := s.GuildRoles(guildID)
	if err != nil {
		return false
	}
	for _, r := range roles {
		if r.ID == roleID {
			return true
		}
	}
	return false
}
