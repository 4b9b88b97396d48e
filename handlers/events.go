package handlers

import (
	"log"

	"github.com/bwmarrin/discordgo"
)

// ReactionAdd - Forward reaction events on moderation messages to the
// request manager
func (h *Handlers) ReactionAdd(s *discordgo.Session, e *discordgo.MessageReactionAdd) {
	// Ignore self and DM reactions
	if e.GuildID == "" || e.UserID == s.State.User.ID {
		return
	}

	opts, err := h.manager.Options(e.GuildID)
	if err != nil {
		log.Printf("[Handlers] failed to get request options: %v", err)
		return
	}
	// Only the configured request channel carries moderation messages
	if opts.Channel == "" || e.ChannelID != opts.Channel {
		return
	}

	// Only moderators settle requests
	if !hasManageRoles(s, e.UserID, e.ChannelID) {
		return
	}

	isBot := false
	if u, err := s.User(e.UserID); err == nil {
		isBot = u.Bot
	}

	err = h.manager.HandleReaction(e.GuildID, e.MessageID, e.Emoji.APIName(), e.UserID, isBot)
	if err != nil {
		log.Printf("[Handlers] failed to handle reaction on %v: %v", e.MessageID, err)
	}
}

// GuildDelete - Drop the guild document when the bot is removed
func (h *Handlers) GuildDelete(s *discordgo.Session, e *discordgo.GuildDelete) {
	if e.Unavailable {
		// Outage, not a removal
		return
	}
	log.Printf("[Handlers] removed from guild %v", e.ID)
	if err := h.manager.PurgeGuild(e.ID); err != nil {
		log.Printf("[Handlers] failed to purge guild %v: %v", e.ID, err)
	}
}
