package discord

import (
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

// maxReportLength keeps a report within one Discord message.
const maxReportLength = 1900

// setReportTarget forwards error level logs to the configured channel.
func (b *Bot) setReportTarget(s *discordgo.Session) {
	if b.deps.Report == nil || b.opts.ErrorReportChannelID == "" {
		return
	}
	if b.opts.ErrorReportGuildID != "" {
		if _, err := s.State.Guild(b.opts.ErrorReportGuildID); err != nil {
			b.log.Warn().Str("guild", b.opts.ErrorReportGuildID).Msg("Error report guild not available, reporting disabled")
			return
		}
	}

	channelID := b.opts.ErrorReportChannelID
	b.deps.Report.SetTarget(func(text string) {
		text = truncateReport(text, maxReportLength)
		// a failed report is dropped; logging it would report again
		_, _ = s.ChannelMessageSend(channelID, text)
	})
	b.log.Info().Str("channel", channelID).Msg("Error reporting enabled")
}

// truncateReport cuts text to at most n bytes on a rune boundary and marks
// the cut with "...".
func truncateReport(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n] + "..."
}
