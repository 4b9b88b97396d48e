package handlers

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-requests/config"
	"github.com/cufee/botto-requests/requests"
)

// Notifier - requests.Notifier over a discord session
type Notifier struct {
	ses *discordgo.Session
}

func NewNotifier(ses *discordgo.Session) *Notifier {
	return &Notifier{ses: ses}
}

// PostRequest - Send the moderation embed and attach the approve/deny
// reactions
func (n *Notifier) PostRequest(channelID string, card requests.Card) (string, error) {
	msg, err := n.ses.ChannelMessageSendEmbed(channelID, cardEmbed(card))
	if err != nil {
		return "", err
	}
	if card.Reactions {
		n.ses.MessageReactionAdd(channelID, msg.ID, config.ApproveReaction)
		n.ses.MessageReactionAdd(channelID, msg.ID, config.DenyReaction)
	}
	return msg.ID, nil
}

// UpdateRequest - Replace the moderation embed, clearing reactions once
// the request settles
func (n *Notifier) UpdateRequest(channelID, messageID string, card requests.Card) error {
	_, err := n.ses.ChannelMessageEditEmbed(channelID, messageID, cardEmbed(card))
	if err != nil {
		return err
	}
	if !card.Reactions {
		n.ses.MessageReactionsRemoveAll(channelID, messageID)
	}
	return nil
}

// SendDM - Message a user directly, fails when their DMs are closed
func (n *Notifier) SendDM(userID, content string) error {
	dmChan, err := n.ses.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = n.ses.ChannelMessageSend(dmChan.ID, content)
	return err
}

// GrantRole - Give a role to a guild member
func (n *Notifier) GrantRole(guildID, userID, roleID string) error {
	return n.ses.GuildMemberRoleAdd(guildID, userID, roleID)
}

func cardEmbed(card requests.Card) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       card.Title,
		Description: card.Description,
		Color:       card.Color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Status", Value: card.Status},
		},
	}
	if card.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: card.Footer}
	}
	if card.AuthorLine != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{
			Name:    card.AuthorLine,
			IconURL: card.AuthorIcon,
		}
	}
	if !card.Timestamp.IsZero() {
		embed.Timestamp = card.Timestamp.Format(time.RFC3339)
	}
	return embed
}
