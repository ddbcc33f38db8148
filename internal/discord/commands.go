package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/botcore/pkg/jobmgr"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// CommandOverwriter is the part of *discordgo.Session slash sync needs.
type CommandOverwriter interface {
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// SlashSync replaces the slash commands of guilds. Guilds are written one
// at a time with a cooldown in between; a failed guild is retried in the
// background until it succeeds or the retry job is stopped.
type SlashSync struct {
	API        CommandOverwriter
	Jobs       *jobmgr.Manager
	Limiter    *rate.Limiter
	RetryDelay time.Duration
	Log        zerolog.Logger

	mu     sync.Mutex
	appID  string
	synced map[string]string
}

func NewSlashSync(api CommandOverwriter, jobs *jobmgr.Manager, cooldown, retry time.Duration, log zerolog.Logger) *SlashSync {
	if retry <= 0 {
		retry = time.Minute
	}
	limit := rate.Inf
	if cooldown > 0 {
		limit = rate.Every(cooldown)
	}
	return &SlashSync{
		API:        api,
		Jobs:       jobs,
		Limiter:    rate.NewLimiter(limit, 1),
		RetryDelay: retry,
		Log:        log,
		synced:     make(map[string]string),
	}
}

// SetAppID installs the application id once the session is ready.
func (s *SlashSync) SetAppID(id string) {
	s.mu.Lock()
	s.appID = id
	s.mu.Unlock()
}

func (s *SlashSync) AppID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appID
}

// Forget drops what is known about a guild so the next sync writes it.
func (s *SlashSync) Forget(guildID string) {
	s.mu.Lock()
	delete(s.synced, guildID)
	s.mu.Unlock()
	_ = s.Jobs.Stop(retryJob(guildID))
}

func syncJob(scope string) string { return "slash-sync:" + scope }
func retryJob(guildID string) string { return "slash-retry:" + guildID }

// Start runs Sync as a background job named after scope, replacing a pass
// of the same scope that is still running.
func (s *SlashSync) Start(scope string, guildIDs []string, cmds []*discordgo.ApplicationCommand) {
	name := syncJob(scope)
	_ = s.Jobs.Stop(name)
	err := s.Jobs.StartAsync(name, func(ctx context.Context) error {
		return s.Sync(ctx, guildIDs, cmds)
	})
	if err != nil {
		s.Log.Error().Err(err).Str("job", name).Msg("Failed to start slash command sync")
	}
}

// Sync writes cmds to every guild in order. It only returns early when ctx
// is done.
func (s *SlashSync) Sync(ctx context.Context, guildIDs []string, cmds []*discordgo.ApplicationCommand) error {
	for _, guildID := range guildIDs {
		if err := s.Limiter.Wait(ctx); err != nil {
			return err
		}
		if err := s.overwrite(guildID, cmds); err != nil {
			s.Log.Error().Err(err).Str("guild", guildID).Dur("retry_in", s.RetryDelay).Msg("Failed to register slash commands")
			s.retry(guildID, cmds)
			continue
		}
		// a pending retry would write an older command set
		_ = s.Jobs.Stop(retryJob(guildID))
	}
	return nil
}

func (s *SlashSync) overwrite(guildID string, cmds []*discordgo.ApplicationCommand) error {
	appID := s.AppID()
	if appID == "" {
		return fmt.Errorf("application id unknown")
	}

	hash := hashCommands(cmds)
	s.mu.Lock()
	current := s.synced[guildID] == hash
	s.mu.Unlock()
	if current {
		return nil
	}

	if cmds == nil {
		cmds = []*discordgo.ApplicationCommand{}
	}
	if _, err := s.API.ApplicationCommandBulkOverwrite(appID, guildID, cmds); err != nil {
		return fmt.Errorf("overwrite commands of guild %s: %w", guildID, err)
	}

	s.mu.Lock()
	s.synced[guildID] = hash
	s.mu.Unlock()
	s.Log.Info().Str("guild", guildID).Int("commands", len(cmds)).Msg("Registered slash commands")
	return nil
}

// retry keeps trying a single guild every RetryDelay. A newer retry of the
// same guild replaces the pending one.
func (s *SlashSync) retry(guildID string, cmds []*discordgo.ApplicationCommand) {
	name := retryJob(guildID)
	_ = s.Jobs.Stop(name)
	err := s.Jobs.StartAsync(name, func(ctx context.Context) error {
		t := time.NewTicker(s.RetryDelay)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			err := s.overwrite(guildID, cmds)
			if err == nil {
				return nil
			}
			s.Log.Warn().Err(err).Str("guild", guildID).Msg("Slash command retry failed")
		}
	})
	if err != nil {
		s.Log.Error().Err(err).Str("job", name).Msg("Failed to schedule slash command retry")
	}
}
