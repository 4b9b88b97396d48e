package handlers

import (
	"log"
	"regexp"
	"strconv"
	"time"

	"github.com/Necroforger/dgrouter/exrouter"
	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-requests/config"
)

var mentionRe = regexp.MustCompile(`[<@&#!>]`)

// reply - Success/failure reply, deleted after delay when delay > 0
func reply(ctx *exrouter.Context, tick, text string, delay time.Duration) {
	msg, err := ctx.Reply(tick + " " + text)
	if err != nil {
		log.Printf("[Handlers] failed to reply: %v", err)
		return
	}
	if delay > 0 {
		time.AfterFunc(delay, func() {
			ctx.Ses.ChannelMessageDelete(ctx.Msg.ChannelID, msg.ID)
		})
	}
}

func cmdSuccess(ctx *exrouter.Context, text string) {
	reply(ctx, config.GreenTick, text, 0)
}

func cmdFail(ctx *exrouter.Context, text string) {
	reply(ctx, config.RedTick, text, 0)
}

// cmdSuccessDel / cmdFailDel - Variants for hidden join commands, the
// reply cleans itself up
func cmdSuccessDel(ctx *exrouter.Context, text string, delay time.Duration) {
	reply(ctx, config.GreenTick, text, delay)
}

func cmdFailDel(ctx *exrouter.Context, text string, delay time.Duration) {
	reply(ctx, config.RedTick, text, delay)
}

// deleteAfter - Remove a message after a delay, used by join hiding
func deleteAfter(ses *discordgo.Session, channelID, messageID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		ses.ChannelMessageDelete(channelID, messageID)
	})
}

// parseMention - Strip mention decorations, returns the bare snowflake
// or "" when the argument is not an ID/mention
func parseMention(arg string) string {
	id := mentionRe.ReplaceAllString(arg, "")
	if id == "" {
		return ""
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return ""
	}
	return id
}

// findRole - Resolve a role argument against the guild's roles
func findRole(ses *discordgo.Session, guildID, arg string) (*discordgo.Role, error) {
	roleID := parseMention(arg)
	if roleID == "" {
		return nil, nil
	}
	guildRoles, err := ses.GuildRoles(guildID)
	if err != nil {
		return nil, err
	}
	for _, r := range guildRoles {
		if r.ID == roleID {
			return r, nil
		}
	}
	return nil, nil
}

// hasManageRoles - Moderator gate used by role management commands and
// request reactions
func hasManageRoles(ses *discordgo.Session, userID, channelID string) bool {
	perms, err := ses.UserChannelPermissions(userID, channelID)
	if err != nil {
		log.Printf("[Handlers] failed to check perms for %v: %v", userID, err)
		return false
	}
	return perms&discordgo.PermissionManageRoles == discordgo.PermissionManageRoles
}

// memberHasRole - Whether the member already carries the role
func memberHasRole(member *discordgo.Member, roleID string) bool {
	for _, r := range member.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

func userTag(u *discordgo.User) string {
	return u.Username + "#" + u.Discriminator
}
