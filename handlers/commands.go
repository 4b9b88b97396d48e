package handlers

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/Necroforger/dgrouter/exrouter"
	"github.com/bwmarrin/discordgo"
	"github.com/cufee/botto-requests/config"
	"github.com/cufee/botto-requests/database"
	"github.com/cufee/botto-requests/requests"
	"github.com/cufee/botto-requests/roles"
)

// Handlers - Command and event glue between discord and the core
type Handlers struct {
	registry *roles.Registry
	manager  *requests.Manager
}

func New(registry *roles.Registry, manager *requests.Manager) *Handlers {
	return &Handlers{registry: registry, manager: manager}
}

// Register - Wire all commands onto the router
func (h *Handlers) Register(router *exrouter.Route) {
	router.On("join", h.Join).Desc("Joins or requests a requestable role")
	router.On("leave", h.Leave).Desc("Leaves or cancels a request for a requestable role")
	router.On("role", h.Role).Desc("Adds, modifies, or removes a requestable role")
	router.On("list", h.List).Desc("Lists all requestable roles")
	router.On("requests", h.Requests).Desc("Manages settings for restricted role requests")
}

// Join - Join an open role or submit a request for a restricted one
func (h *Handlers) Join(ctx *exrouter.Context) {
	gid := ctx.Msg.GuildID
	if gid == "" {
		return
	}

	role, err := findRole(ctx.Ses, gid, ctx.Args.Get(1))
	if err != nil {
		cmdFail(ctx, "I was not able to get a list of roles on this server.")
		return
	}
	if role == nil {
		cmdFail(ctx, "Make sure the role you want to join is a mention or ID and is the first argument.")
		return
	}

	kind, requestable, err := h.registry.Classify(gid, role.ID)
	if err != nil {
		log.Printf("[Handlers] classify failed: %v", err)
		cmdFail(ctx, "Something went wrong, please try again later.")
		return
	}
	if !requestable {
		cmdFail(ctx, fmt.Sprintf("%q is not a requestable role.", role.Name))
		return
	}

	member, err := ctx.Ses.GuildMember(gid, ctx.Msg.Author.ID)
	if err != nil {
		log.Printf("[Handlers] failed to get member %v: %v", ctx.Msg.Author.ID, err)
		cmdFail(ctx, "Something went wrong, please try again later.")
		return
	}
	if memberHasRole(member, role.ID) {
		cmdFail(ctx, fmt.Sprintf("You already have the role %q.", role.Name))
		return
	}

	if kind == database.RoleOpen {
		if err := ctx.Ses.GuildMemberRoleAdd(gid, ctx.Msg.Author.ID, role.ID); err != nil {
			log.Printf("[Handlers] failed to add role %v: %v", role.ID, err)
			cmdFail(ctx, fmt.Sprintf("Failed to give you the role %q. Please report this issue.", role.Name))
			return
		}
		cmdSuccess(ctx, fmt.Sprintf("You have joined the role %q.", role.Name))
		return
	}

	// Restricted role, goes through the request workflow
	opts, err := h.manager.Options(gid)
	if err != nil {
		log.Printf("[Handlers] failed to get request options: %v", err)
		cmdFail(ctx, "Something went wrong, please try again later.")
		return
	}
	var replyDelay time.Duration
	if opts.HideJoins {
		deleteAfter(ctx.Ses, ctx.Msg.ChannelID, ctx.Msg.ID, config.HideJoinsCommandDelay)
		replyDelay = config.HideJoinsReplyDelay
	}

	user := requests.Requester{
		ID:        ctx.Msg.Author.ID,
		Tag:       userTag(ctx.Msg.Author),
		AvatarURL: ctx.Msg.Author.AvatarURL(""),
	}
	err = h.manager.CreateRequest(gid, user, role.ID)
	switch {
	case err == nil:
		cmdSuccessDel(ctx, fmt.Sprintf("Your request for %q has been submitted.", role.Name), replyDelay)
	case errors.Is(err, requests.ErrRequestsDisabled):
		cmdFailDel(ctx, "Restricted role requests are currently disabled for this guild.", replyDelay)
	case errors.Is(err, requests.ErrAlreadyPending):
		cmdFailDel(ctx, fmt.Sprintf("You already have a request pending for the role %q.", role.Name), replyDelay)
	case errors.Is(err, requests.ErrRateLimited):
		cmdFailDel(ctx, "You have too many recent requests. Please try again later.", replyDelay)
	default:
		log.Printf("[Handlers] failed to create request: %v", err)
		cmdFailDel(ctx, "Something went wrong while submitting your request.", replyDelay)
	}
}

// Leave - Leave a role or cancel a pending request for it
func (h *Handlers) Leave(ctx *exrouter.Context) {
	gid := ctx.Msg.GuildID
	if gid == "" {
		return
	}

	role, err := findRole(ctx.Ses, gid, ctx.Args.Get(1))
	if err != nil {
		cmdFail(ctx, "I was not able to get a list of roles on this server.")
		return
	}
	if role == nil {
		cmdFail(ctx, "Make sure the role you want to leave is a mention or ID and is the first argument.")
		return
	}

	kind, requestable, err := h.registry.Classify(gid, role.ID)
	if err != nil {
		log.Printf("[Handlers] classify failed: %v", err)
		cmdFail(ctx, "Something went wrong, please try again later.")
		return
	}
	if !requestable {
		cmdFail(ctx, fmt.Sprintf("%q is not a requestable role.", role.Name))
		return
	}

	member, err := ctx.Ses.GuildMember(gid, ctx.Msg.Author.ID)
	if err != nil {
		log.Printf("[Handlers] failed to get member %v: %v", ctx.Msg.Author.ID, err)
		cmdFail(ctx, "Something went wrong, please try again later.")
		return
	}

	if memberHasRole(member, role.ID) {
		if err := ctx.Ses.GuildMemberRoleRemove(gid, ctx.Msg.Author.ID, role.ID); err != nil {
			log.Printf("[Handlers] failed to remove role %v: %v", role.ID, err)
			cmdFail(ctx, fmt.Sprintf("Failed to remove the role %q. Please report this issue.", role.Name))
			return
		}
		cmdSuccess(ctx, fmt.Sprintf("You left the role %q.", role.Name))
		return
	}

	if kind == database.RoleRestricted {
		err := h.manager.CancelRequest(gid, ctx.Msg.Author.ID, role.ID)
		switch {
		case err == nil:
			cmdSuccess(ctx, fmt.Sprintf("Your request for %q has been cancelled.", role.Name))
		case errors.Is(err, requests.ErrNoPendingRequest):
			cmdFail(ctx, fmt.Sprintf("You do not have a request pending for the role %q.", role.Name))
		default:
			log.Printf("[Handlers] failed to cancel request: %v", err)
			cmdFail(ctx, "Something went wrong while cancelling your request.")
		}
		return
	}

	cmdFail(ctx, fmt.Sprintf("You do not have the role %q.", role.Name))
}

// Role command options
const (
	optInfo       = ""
	optOpen       = "open"
	optRestricted = "restricted"
	optRemove     = "remove"
	optAdd        = "add"
)

// resolveRoleOption - Aliases accepted by the role command
func resolveRoleOption(arg string) (string, bool) {
	switch strings.ToLower(arg) {
	case "":
		return optInfo, true
	case "open", "o":
		return optOpen, true
	case "restricted", "limited", "limit", "l":
		return optRestricted, true
	case "remove", "rem", "delete", "del", "d", "r":
		return optRemove, true
	case "add", "a":
		return optAdd, true
	}
	return "", false
}

func kindTitle(kind database.RoleKind) string {
	if kind == database.RoleRestricted {
		return "Restricted"
	}
	return "Open"
}

// Role - Show role info or manage the requestable-role list
func (h *Handlers) Role(ctx *exrouter.Context) {
	gid := ctx.Msg.GuildID
	if gid == "" {
		return
	}
	if !hasManageRoles(ctx.Ses, ctx.Msg.Author.ID, ctx.Msg.ChannelID) {
		cmdFail(ctx, "You need the Manage Roles permission to use this command.")
		return
	}

	role, err := findRole(ctx.Ses, gid, ctx.Args.Get(1))
	if err != nil {
		cmdFail(ctx, "I was not able to get a list of roles on this server.")
		return
	}
	if role == nil {
		cmdFail(ctx, "Make sure the role is a mention or ID and is the first argument.")
		return
	}

	option, validOption := resolveRoleOption(ctx.Args.Get(2))
	if !validOption {
		cmdFail(ctx, fmt.Sprintf("%q is not a valid option.", ctx.Args.Get(2)))
		return
	}

	kind, requestable, err := h.registry.Classify(gid, role.ID)
	if err != nil {
		log.Printf("[Handlers] classify failed: %v", err)
		cmdFail(ctx, "Something went wrong, please try again later.")
		return
	}

	switch option {
	case optInfo:
		requestableStr := "No"
		if requestable {
			requestableStr = "Yes, " + kindTitle(kind)
		}
		embed := &discordgo.MessageEmbed{
			Title: "Role Info",
			Description: fmt.Sprintf("<@&%v> (`%v`)\n**Requestable:** %v",
				role.ID, role.ID, requestableStr),
			Color: role.Color,
		}
		ctx.Ses.ChannelMessageSendEmbed(ctx.Msg.ChannelID, embed)

	case optRemove:
		err := h.registry.Remove(gid, role.ID)
		if errors.Is(err, roles.ErrNotRequestable) {
			cmdFail(ctx, fmt.Sprintf("%q is not a requestable role.", role.Name))
			return
		}
		if err != nil {
			log.Printf("[Handlers] failed to remove role: %v", err)
			cmdFail(ctx, "Failed to update the requestable roles.")
			return
		}
		cmdSuccess(ctx, fmt.Sprintf("%q has been removed as a requestable role.", role.Name))

	case optAdd:
		h.addRole(ctx, role, database.RoleOpen)

	case optOpen, optRestricted:
		want := database.RoleOpen
		if option == optRestricted {
			want = database.RoleRestricted
		}
		if !requestable {
			h.addRole(ctx, role, want)
			return
		}
		err := h.registry.SetKind(gid, role.ID, want)
		if errors.Is(err, roles.ErrAlreadySet) {
			cmdFail(ctx, fmt.Sprintf("%q is already a %v requestable role.", role.Name, string(want)))
			return
		}
		if err != nil {
			log.Printf("[Handlers] failed to set role kind: %v", err)
			cmdFail(ctx, "Failed to update the requestable roles.")
			return
		}
		cmdSuccess(ctx, fmt.Sprintf("%q is now a %v requestable role.", role.Name, string(want)))
	}
}

func (h *Handlers) addRole(ctx *exrouter.Context, role *discordgo.Role, kind database.RoleKind) {
	info := roles.RoleInfo{ID: role.ID, Name: role.Name, Managed: role.Managed}
	err := h.registry.Add(ctx.Msg.GuildID, info, kind)
	switch {
	case errors.Is(err, roles.ErrAlreadyRequestable):
		cmdFail(ctx, fmt.Sprintf("%q is already a requestable role.", role.Name))
	case errors.Is(err, roles.ErrInvalidRole):
		cmdFail(ctx, fmt.Sprintf("%q is not a valid role.", role.Name))
	case err != nil:
		log.Printf("[Handlers] failed to add role: %v", err)
		cmdFail(ctx, "Failed to update the requestable roles.")
	default:
		cmdSuccess(ctx, fmt.Sprintf("%q has been added as a requestable %v role.", role.Name, string(kind)))
	}
}

// List - Requestable roles, highest role first
func (h *Handlers) List(ctx *exrouter.Context) {
	gid := ctx.Msg.GuildID
	if gid == "" {
		return
	}

	guildRoles, err := ctx.Ses.GuildRoles(gid)
	if err != nil {
		cmdFail(ctx, "I was not able to get a list of roles on this server.")
		return
	}
	sort.Slice(guildRoles, func(i, j int) bool {
		return guildRoles[i].Position < guildRoles[j].Position
	})
	hierarchy := make([]roles.RoleInfo, 0, len(guildRoles))
	for _, r := range guildRoles {
		hierarchy = append(hierarchy, roles.RoleInfo{ID: r.ID, Name: r.Name, Managed: r.Managed})
	}

	listed, err := h.registry.ListRequestable(gid, hierarchy)
	if err != nil {
		log.Printf("[Handlers] failed to list roles: %v", err)
		cmdFail(ctx, "Something went wrong, please try again later.")
		return
	}
	if len(listed) == 0 {
		cmdFail(ctx, "This server does not have any requestable roles.")
		return
	}

	lines := make([]string, 0, len(listed))
	for _, r := range listed {
		lines = append(lines, fmt.Sprintf("<@&%v> (`%v`) **%v**", r.ID, r.ID, kindTitle(r.Kind)))
	}
	embed := &discordgo.MessageEmbed{
		Title:       "Requestable Roles",
		Description: strings.Join(lines, "\n"),
	}
	ctx.Ses.ChannelMessageSendEmbed(ctx.Msg.ChannelID, embed)
}

// parseToggle - Optional boolean argument, explicit reports whether the
// user supplied one
func parseToggle(arg string) (value, explicit, ok bool) {
	switch strings.ToLower(arg) {
	case "":
		return false, false, true
	case "on", "true", "yes", "enable", "enabled", "1":
		return true, true, true
	case "off", "false", "no", "disable", "disabled", "0":
		return false, true, true
	}
	return false, false, false
}

// Requests - Settings for the restricted-role request workflow
func (h *Handlers) Requests(ctx *exrouter.Context) {
	gid := ctx.Msg.GuildID
	if gid == "" {
		return
	}
	if !hasManageRoles(ctx.Ses, ctx.Msg.Author.ID, ctx.Msg.ChannelID) {
		cmdFail(ctx, "You need the Manage Roles permission to use this command.")
		return
	}

	sub := strings.ToLower(ctx.Args.Get(1))
	switch sub {
	case "":
		h.requestsInfo(ctx)
	case "channel":
		h.requestsChannel(ctx)
	case "disable":
		h.requestsDisable(ctx)
	case "hidejoins", "hidejoin":
		h.requestsToggle(ctx, "hidejoins", "Join command hiding")
	case "ratelimit", "ratelimiting", "ratelimited":
		h.requestsToggle(ctx, "ratelimit", "Join command ratelimiting")
	default:
		cmdFail(ctx, fmt.Sprintf("%q is not a valid subcommand.", sub))
	}
}

func (h *Handlers) requestsInfo(ctx *exrouter.Context) {
	opts, err := h.manager.Options(ctx.Msg.GuildID)
	if err != nil {
		log.Printf("[Handlers] failed to get request options: %v", err)
		cmdFail(ctx, "Something went wrong, please try again later.")
		return
	}

	embed := &discordgo.MessageEmbed{Title: "Restricted Role Request Options"}
	if opts.Channel == "" {
		embed.Description = "Requests are currently disabled for this guild."
		ctx.Ses.ChannelMessageSendEmbed(ctx.Msg.ChannelID, embed)
		return
	}

	onOff := func(v bool) string {
		if v {
			return "Enabled"
		}
		return "Disabled"
	}
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Posting Channel", Value: fmt.Sprintf("<#%v>", opts.Channel), Inline: true},
		{Name: "Join Command Hiding", Value: onOff(opts.HideJoins), Inline: true},
		{Name: "Join Command Ratelimiting", Value: onOff(opts.RateLimitEnabled), Inline: true},
	}
	ctx.Ses.ChannelMessageSendEmbed(ctx.Msg.ChannelID, embed)
}

func (h *Handlers) requestsChannel(ctx *exrouter.Context) {
	gid := ctx.Msg.GuildID
	arg := ctx.Args.Get(2)
	if arg == "" {
		opts, err := h.manager.Options(gid)
		if err != nil {
			log.Printf("[Handlers] failed to get request options: %v", err)
			cmdFail(ctx, "Something went wrong, please try again later.")
			return
		}
		if opts.Channel == "" {
			ctx.Reply("Requests are currently disabled for this guild.")
			return
		}
		ctx.Reply(fmt.Sprintf("The requests channel is currently <#%v>.", opts.Channel))
		return
	}

	chanID := parseMention(arg)
	if chanID == "" {
		cmdFail(ctx, "Make sure the channel is a mention or ID.")
		return
	}
	channel, err := ctx.Ses.Channel(chanID)
	if err != nil || channel.GuildID != gid {
		cmdFail(ctx, "I was not able to find that channel on this server.")
		return
	}

	err = h.manager.SetChannel(gid, channel.ID)
	if errors.Is(err, requests.ErrAlreadySet) {
		cmdFail(ctx, fmt.Sprintf("The requests channel is already <#%v>.", channel.ID))
		return
	}
	if err != nil {
		log.Printf("[Handlers] failed to set request channel: %v", err)
		cmdFail(ctx, "Failed to update guild settings. Please try again later.")
		return
	}
	cmdSuccess(ctx, fmt.Sprintf("The requests channel is now <#%v>.", channel.ID))
}

func (h *Handlers) requestsDisable(ctx *exrouter.Context) {
	err := h.manager.DisableRequests(ctx.Msg.GuildID)
	if errors.Is(err, requests.ErrAlreadySet) {
		cmdFail(ctx, "Requests are already disabled for this guild.")
		return
	}
	if err != nil {
		log.Printf("[Handlers] failed to disable requests: %v", err)
		cmdFail(ctx, "Failed to update guild settings. Please try again later.")
		return
	}
	cmdSuccess(ctx, "Requests are now disabled for this guild.")
}

func (h *Handlers) requestsToggle(ctx *exrouter.Context, setting, label string) {
	gid := ctx.Msg.GuildID

	value, explicit, ok := parseToggle(ctx.Args.Get(2))
	if !ok {
		cmdFail(ctx, fmt.Sprintf("%q is not a valid setting.", ctx.Args.Get(2)))
		return
	}

	opts, err := h.manager.Options(gid)
	if err != nil {
		log.Printf("[Handlers] failed to get request options: %v", err)
		cmdFail(ctx, "Something went wrong, please try again later.")
		return
	}

	if !explicit {
		// No argument flips the current value
		switch setting {
		case "hidejoins":
			value = !opts.HideJoins
		case "ratelimit":
			value = !opts.RateLimitEnabled
		}
	}

	human := "disabled"
	if value {
		human = "enabled"
	}

	switch setting {
	case "hidejoins":
		err = h.manager.SetHideJoins(gid, value)
	case "ratelimit":
		err = h.manager.SetRateLimit(gid, value)
	}
	if errors.Is(err, requests.ErrAlreadySet) {
		cmdFail(ctx, fmt.Sprintf("%v is already **%v**.", label, human))
		return
	}
	if err != nil {
		log.Printf("[Handlers] failed to toggle %v: %v", setting, err)
		cmdFail(ctx, "Failed to update guild settings. Please try again later.")
		return
	}
	cmdSuccess(ctx, fmt.Sprintf("%v is now **%v**.", label, human))
}
