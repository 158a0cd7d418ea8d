package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"riskbot/internal/audit"
	"riskbot/internal/authz"
	"riskbot/internal/gateway"
	"riskbot/internal/models"
	"riskbot/internal/purge"
	"riskbot/internal/storage"
)

// reportNoticeLifetime is how long the /admin confirmation stays in the group
const reportNoticeLifetime = 30 * time.Second

// historyLimit caps the moderation history shown by /seerisk
const historyLimit = 10

const privateStartMessage = `Hello! I'm a bot designed to help manage groups and add a bit of fun. Here are the main commands to get you started:

- /help: Shows a full menu of all my available commands.
- /command: When used in a group, this lists all commands available in that specific group.
- /risk: Feeling lucky? Use this command in our private chat to risk posting some media to a group.`

const helpMenuText = "Welcome to the help menu! Please choose a category:"

const generalHelpText = `<b>General Commands</b>
- /help: Shows this help menu.
- /command: Lists all available commands in the current group.
- /admin: Request help from admins in a group.
- /risk: Take a risk and let fate decide if your media gets posted. (Private chat only)
- /purge: Marks all your risked media as purged, deleting any that were posted, subject to group conditions. (Private chat only)
- /cancel: Cancels an ongoing operation like /risk or /post.`

const adminHelpText = `<b>Administrator Commands</b>

<u>Content &amp; User Management</u>
- /allban &lt;user&gt;: Bans a user from all groups the bot is in.
- /post: Create a post with media and a caption to send to a group where you are an admin. (Private chat only)
- /disable &lt;command&gt;: Disables a command in the current group.
- /enable &lt;command&gt;: Re-enables a disabled command.
- /link: Generates a single-use invite link for the group.

<u>Risk &amp; History</u>
- /seerisk &lt;user_id or @username&gt;: View the risk history of a specific user.
- /purge &lt;user_id or @username&gt;: Purges all risks for a specific user, bypassing any conditions.
- /random: Posts a random, non-purged risk from any user to the current group.

<u>Purge Conditions</u>
- /addcondition &lt;condition&gt;: Adds a condition that users must meet to use /purge.
- /listconditions: Lists all current purge conditions with their IDs.
- /removecondition &lt;id&gt;: Removes a purge condition by its ID.`

// handleStart shows the welcome message
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	if message.Chat.IsPrivate() {
		b.reply(ctx, message.Chat.ID, privateStartMessage)
		return
	}
	b.reply(ctx, message.Chat.ID, fmt.Sprintf("Hey %s! Please message me in private to get started.", userMention(message.From)))
	if _, err := b.gw.SendText(ctx, message.From.ID, privateStartMessage); err != nil {
		b.logger.Warn("Failed to send private start message",
			zap.Int64("user_id", message.From.ID),
			zap.Int64("group_id", message.Chat.ID),
		)
	}
}

func (b *Bot) helpMenu(ctx context.Context, userID int64) [][]gateway.Button {
	keyboard := [][]gateway.Button{gateway.Row(gateway.Button{Text: "General Commands", Data: "help:general"})}
	if b.auth.IsAuthorized(ctx, userID, authz.ScopeAnyGroup) {
		keyboard = append(keyboard, gateway.Row(gateway.Button{Text: "Admin Commands", Data: "help:admin"}))
	}
	return keyboard
}

// handleHelp shows the interactive help menu
func (b *Bot) handleHelp(ctx context.Context, message *tgbotapi.Message) {
	if !message.Chat.IsPrivate() {
		b.reply(ctx, message.Chat.ID, "Please use the /help command in a private chat with me for a better experience.")
		return
	}
	b.reply(ctx, message.Chat.ID, helpMenuText, b.helpMenu(ctx, message.From.ID)...)
}

// handleCommandList lists the commands available in a group
func (b *Bot) handleCommandList(ctx context.Context, message *tgbotapi.Message) {
	chat := message.Chat
	if !isGroup(chat) {
		b.reply(ctx, chat.ID, "Please use this command in a group to see the available commands for that group.")
		return
	}

	disabledList, err := b.db.DisabledCommands(ctx, chat.ID)
	if err != nil {
		b.logger.Error("Failed to load disabled commands", zap.Int64("group_id", chat.ID), zap.Error(err))
	}
	disabled := make(map[string]bool, len(disabledList))
	for _, c := range disabledList {
		disabled[c] = true
	}
	isAdmin := b.auth.IsAuthorized(ctx, message.From.ID, authz.ScopeGroup(chat.ID))

	names := make([]string, 0, len(commandTable))
	for name := range commandTable {
		names = append(names, name)
	}
	sort.Strings(names)

	var everyone, admins []string
	for _, name := range names {
		if name == "start" || name == "help" {
			continue
		}
		display := "/" + name
		if disabled[name] {
			display += " (disabled)"
		}
		switch {
		case commandTable[name].adminOnly:
			if isAdmin {
				admins = append(admins, display)
			}
		case !disabled[name] || isAdmin:
			everyone = append(everyone, display)
		}
	}

	text := "<b>Commands for everyone:</b>\n" + joinOrNone(everyone)
	if isAdmin {
		text += "\n\n<b>Commands for admins only:</b>\n" + joinOrNone(admins)
	}
	b.reply(ctx, chat.ID, text)
}

func joinOrNone(lines []string) string {
	if len(lines) == 0 {
		return "None"
	}
	return strings.Join(lines, "\n")
}

// handleCancel ends the caller's conversation or pending purge confirmation
func (b *Bot) handleCancel(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	text := "Operation cancelled."

	if state := b.getState(userID); state != nil && state.Step != stepDone {
		switch state.Command {
		case "risk":
			text = "The risk has been cancelled."
		case "post":
			text = "The post creation process has been cancelled."
		}
		b.clearState(userID)
	} else if b.purge.Cancel(ctx, userID) {
		return
	}
	b.reply(ctx, message.Chat.ID, text)
}

// handlePurge starts a purge request. Only available in private chat.
func (b *Bot) handlePurge(ctx context.Context, message *tgbotapi.Message, cmd command) {
	if !message.Chat.IsPrivate() {
		b.reply(ctx, message.Chat.ID, "The /purge command is only available in private chat.")
		b.reply(ctx, message.From.ID, "Please use the /purge command here to start the process.")
		return
	}

	target := ""
	if len(cmd.Args) > 0 {
		target = cmd.Args[0]
	}
	if err := b.purge.Start(ctx, message.From.ID, target); err != nil {
		b.logger.Error("Failed to start purge",
			zap.Int64("user_id", message.From.ID),
			zap.String("target", target),
			zap.Error(err),
		)
	}
}

// handleAdminReport forwards the replied-to message to the group's admins
func (b *Bot) handleAdminReport(ctx context.Context, message *tgbotapi.Message, cmd command) {
	chat := message.Chat
	if !isGroup(chat) {
		b.reply(ctx, chat.ID, "This command can only be used in group chats.")
		return
	}
	reported := message.ReplyToMessage
	if reported == nil || reported.From == nil {
		b.reply(ctx, chat.ID, "Please use this command as a reply to the message you want to report.")
		return
	}

	reason := cmd.Rest
	if reason == "" {
		reason = "No reason provided."
	}
	link := fmt.Sprintf("https://t.me/c/%s/%d",
		strings.TrimPrefix(strconv.FormatInt(chat.ID, 10), "-100"), reported.MessageID)
	report := fmt.Sprintf("🚨 <b>Admin Report</b> 🚨\n\n"+
		"<b>Group:</b> %s\n"+
		"<b>Reported by:</b> %s\n"+
		"<b>Reported user:</b> %s\n"+
		"<b>Reason:</b> %s\n\n"+
		"<a href='%s'>Go to message</a>",
		html.EscapeString(chat.Title), userMention(message.From), userMention(reported.From),
		html.EscapeString(reason), link)

	notified := 0
	for _, adminID := range b.auth.GroupAdmins(ctx, chat.ID) {
		if err := b.gw.ForwardMessage(ctx, adminID, chat.ID, reported.MessageID); err != nil {
			b.logger.Warn("Failed to forward report to admin",
				zap.Int64("admin_id", adminID),
				zap.Int64("group_id", chat.ID),
				zap.Error(err),
			)
			continue
		}
		if _, err := b.gw.SendText(ctx, adminID, report); err != nil {
			b.logger.Warn("Failed to notify admin", zap.Int64("admin_id", adminID), zap.Error(err))
			continue
		}
		notified++
	}

	if notified == 0 {
		b.reply(ctx, chat.ID, "Could not notify any admins. Please ensure the bot has the correct permissions.")
		return
	}
	if id := b.reply(ctx, chat.ID, "The admins have been notified."); id != 0 {
		b.sched.DeleteAfter(chat.ID, id, reportNoticeLifetime)
	}
}

// handleLink sends the caller a single-use invite link for the group
func (b *Bot) handleLink(ctx context.Context, message *tgbotapi.Message) {
	chat := message.Chat
	if !isGroup(chat) {
		b.reply(ctx, chat.ID, "This command is used to generate an invite link for a group. Please run this command inside the group you want the link for.")
		return
	}

	link, err := b.gw.CreateInviteLink(ctx, chat.ID)
	if err != nil {
		b.logger.Error("Failed to create invite link", zap.Int64("group_id", chat.ID), zap.Error(err))
		b.reply(ctx, chat.ID, "I was unable to create an invite link. Please ensure I have the 'Invite Users via Link' permission in this group.")
		return
	}

	text := fmt.Sprintf("Here is your single-use invite link for the group '%s':\n%s", html.EscapeString(chat.Title), link)
	if _, err := b.gw.SendText(ctx, message.From.ID, text); err != nil {
		b.logger.Error("Failed to send invite link privately", zap.Int64("user_id", message.From.ID), zap.Error(err))
		b.reply(ctx, chat.ID, "I couldn't send you a private message. Please make sure you have started a chat with me privately first.")
		return
	}
	b.reply(ctx, chat.ID, "I have sent you a single-use invite link in a private message.")
}

// riskStatus renders the status line of a risk
func riskStatus(r models.Risk) string {
	if r.Purged {
		return "<b>Status: Purged</b>"
	}
	outcome := "Passed"
	if r.Outcome == models.OutcomePosted {
		outcome = "Failed"
	}
	posted := "Not Posted"
	if r.IsPublished() {
		posted = "Posted"
	}
	return fmt.Sprintf("Risk: %s, Status: %s", outcome, posted)
}

// riskButtons returns the admin actions available for a risk
func riskButtons(r models.Risk) [][]gateway.Button {
	if r.Purged {
		return nil
	}
	var keyboard [][]gateway.Button
	if r.Outcome == models.OutcomePosted && !r.IsPublished() {
		keyboard = append(keyboard, gateway.Row(gateway.Button{
			Text: "Post Now",
			Data: fmt.Sprintf("postrisk:%d:%s", r.UserID, r.ID),
		}))
	}
	keyboard = append(keyboard, gateway.Row(gateway.Button{
		Text: "Post with Taunt",
		Data: fmt.Sprintf("posttaunt:%d:%s", r.UserID, r.ID),
	}))
	return keyboard
}

// handleSeeRisk lists a user's risks with their media
func (b *Bot) handleSeeRisk(ctx context.Context, message *tgbotapi.Message, cmd command) {
	chatID := message.Chat.ID
	if len(cmd.Args) == 0 {
		b.reply(ctx, chatID, "Usage: /seerisk &lt;user_id or @username&gt;")
		return
	}

	userID, problem, err := b.resolveUserArg(ctx, cmd.Args[0])
	if err != nil {
		b.logger.Error("Failed to resolve user", zap.String("arg", cmd.Args[0]), zap.Error(err))
		b.reply(ctx, chatID, "Could not load risk data right now. Please try again later.")
		return
	}
	if problem != "" {
		b.reply(ctx, chatID, problem)
		return
	}

	risks, err := b.db.UserRisks(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to load user risks", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(ctx, chatID, "Could not load risk data right now. Please try again later.")
		return
	}
	if len(risks) == 0 {
		b.reply(ctx, chatID, fmt.Sprintf("No risk data found for user ID %d.", userID))
		return
	}

	b.reply(ctx, chatID, fmt.Sprintf("Found %d risk(s) for user ID %d:", len(risks), userID))
	for _, r := range risks {
		ts := r.CreatedAt().Format("2006-01-02 15:04:05")
		caption := fmt.Sprintf("Risk taken on: %s\nTarget Group: %s\n%s",
			ts, html.EscapeString(b.gw.ResolveChatTitle(ctx, r.GroupID)), riskStatus(r))
		if _, err := b.gw.SendMedia(ctx, chatID, r.Media, caption, riskButtons(r)...); err != nil {
			b.reply(ctx, chatID, fmt.Sprintf("Could not retrieve media for a risk from %s. It might be too old or deleted.", ts))
		}
	}

	b.sendHistory(ctx, chatID, userID)
}

// sendHistory appends recorded moderation actions against userID when
// the journal can be queried
func (b *Bot) sendHistory(ctx context.Context, chatID, userID int64) {
	historian, ok := b.journal.(audit.Historian)
	if !ok {
		return
	}
	events, err := historian.TargetHistory(ctx, userID, historyLimit)
	if err != nil {
		b.logger.Warn("Failed to load moderation history", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString("<b>Moderation history</b>\n")
	for _, e := range events {
		fmt.Fprintf(&sb, "- %s %s by <code>%d</code>: ", e.Time.Format("2006-01-02 15:04"), e.Kind, e.ActorID)
		if e.Kind == audit.KindAllBan {
			fmt.Fprintf(&sb, "banned in %d group(s), %d failed\n", e.Deleted, e.Failed)
			continue
		}
		fmt.Fprintf(&sb, "%d purged, %d deleted, %d failed\n", e.Purged, e.Deleted, e.Failed)
	}
	b.reply(ctx, chatID, sb.String())
}

// handleRandom posts a random non-purged risk to the current group
func (b *Bot) handleRandom(ctx context.Context, message *tgbotapi.Message) {
	chat := message.Chat
	if !isGroup(chat) {
		b.reply(ctx, chat.ID, "This command can only be used in a group chat.")
		return
	}

	all, err := b.db.ListRisks(ctx)
	if err != nil {
		b.logger.Error("Failed to list risks", zap.Error(err))
		b.reply(ctx, chat.ID, "Sorry, I couldn't post the chosen random risk.")
		return
	}

	users := make([]int64, 0, len(all))
	for id := range all {
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	var valid []models.Risk
	for _, id := range users {
		for _, r := range all[id] {
			if r.FileID != "" && !r.Purged {
				valid = append(valid, r)
			}
		}
	}
	if len(valid) == 0 {
		b.reply(ctx, chat.ID, "There are no available risks to choose from.")
		return
	}

	chosen := valid[b.pick(len(valid))]
	caption := fmt.Sprintf("A random risk from %s has been chosen! Let's see what it is... 👀",
		b.gw.ResolveDisplayName(ctx, chosen.UserID))
	if _, err := b.gw.SendMedia(ctx, chat.ID, chosen.Media, caption); err != nil {
		b.logger.Error("Failed to post random risk", zap.String("risk_id", chosen.ID), zap.Error(err))
		b.reply(ctx, chat.ID, "Sorry, I couldn't post the chosen random risk.")
		return
	}
	b.logger.Info("Random risk posted",
		zap.Int64("admin_id", message.From.ID),
		zap.String("risk_id", chosen.ID),
		zap.Int64("group_id", chat.ID),
	)
}

// handleAddCondition registers a purge condition for the group
func (b *Bot) handleAddCondition(ctx context.Context, message *tgbotapi.Message, cmd command) {
	chat := message.Chat
	if !isGroup(chat) {
		b.reply(ctx, chat.ID, "This command can only be used in a group chat.")
		return
	}
	if cmd.Rest == "" {
		b.reply(ctx, chat.ID, "Usage: /addcondition &lt;text of the condition&gt;")
		return
	}

	cond, err := b.db.AddCondition(ctx, chat.ID, cmd.Rest)
	if err != nil {
		b.logger.Error("Failed to add condition", zap.Int64("group_id", chat.ID), zap.Error(err))
		b.reply(ctx, chat.ID, "Could not save the condition. Please try again later.")
		return
	}
	b.reply(ctx, chat.ID, fmt.Sprintf("✅ Condition added with ID: <code>%s</code> for this group.", cond.ID))
}

// handleListConditions shows the group's purge conditions
func (b *Bot) handleListConditions(ctx context.Context, message *tgbotapi.Message) {
	chat := message.Chat
	if !isGroup(chat) {
		b.reply(ctx, chat.ID, "This command can only be used in a group chat.")
		return
	}

	conds, err := b.db.GroupConditions(ctx, chat.ID)
	if err != nil {
		b.logger.Error("Failed to load conditions", zap.Int64("group_id", chat.ID), zap.Error(err))
	}
	if len(conds) == 0 {
		b.reply(ctx, chat.ID, "No conditions have been set for this group.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📜 <b>Current Conditions for this Group</b>\n\n")
	for _, c := range conds {
		fmt.Fprintf(&sb, "- <b>ID: %s</b>\n  <i>%s</i>\n\n", html.EscapeString(c.ID), html.EscapeString(c.Text))
	}
	b.reply(ctx, chat.ID, sb.String())
}

// handleRemoveCondition deletes a purge condition by id
func (b *Bot) handleRemoveCondition(ctx context.Context, message *tgbotapi.Message, cmd command) {
	chat := message.Chat
	if !isGroup(chat) {
		b.reply(ctx, chat.ID, "This command can only be used in a group chat.")
		return
	}
	if len(cmd.Args) == 0 {
		b.reply(ctx, chat.ID, "Usage: /removecondition &lt;condition_id&gt;")
		return
	}

	id := cmd.Args[0]
	removed, err := b.db.RemoveCondition(ctx, chat.ID, id)
	if err != nil {
		b.logger.Error("Failed to remove condition", zap.Int64("group_id", chat.ID), zap.Error(err))
	}
	if !removed {
		b.reply(ctx, chat.ID, fmt.Sprintf("❌ Could not find a condition with ID <code>%s</code> in this group.", html.EscapeString(id)))
		return
	}
	b.reply(ctx, chat.ID, fmt.Sprintf("✅ Condition with ID <code>%s</code> has been removed from this group.", html.EscapeString(id)))
}

// commandArg normalizes the argument of /disable and /enable
func commandArg(arg string) string {
	return strings.ToLower(strings.TrimLeft(arg, "#/.!"))
}

// handleDisable turns a command off in the group
func (b *Bot) handleDisable(ctx context.Context, message *tgbotapi.Message, cmd command) {
	chat := message.Chat
	if !isGroup(chat) {
		b.reply(ctx, chat.ID, "This command can only be used in group chats.")
		return
	}
	if len(cmd.Args) == 0 {
		b.reply(ctx, chat.ID, "Usage: /disable &lt;command&gt;")
		return
	}

	name := commandArg(cmd.Args[0])
	if _, ok := commandTable[name]; !ok {
		b.reply(ctx, chat.ID, fmt.Sprintf("No such command: /%s", html.EscapeString(name)))
		return
	}
	if name == "disable" || name == "enable" {
		b.reply(ctx, chat.ID, fmt.Sprintf("Command /%s cannot be disabled.", name))
		return
	}

	changed, err := b.db.DisableCommand(ctx, chat.ID, name)
	if err != nil {
		b.logger.Error("Failed to disable command", zap.String("command", name), zap.Error(err))
		b.reply(ctx, chat.ID, "Could not save the setting. Please try again later.")
		return
	}
	if !changed {
		b.reply(ctx, chat.ID, fmt.Sprintf("Command /%s is already disabled.", name))
		return
	}
	b.reply(ctx, chat.ID, fmt.Sprintf("Command /%s has been disabled in this group. Admins can re-enable it with /enable %s.", name, name))
}

// handleEnable turns a disabled command back on
func (b *Bot) handleEnable(ctx context.Context, message *tgbotapi.Message, cmd command) {
	chat := message.Chat
	if !isGroup(chat) {
		b.reply(ctx, chat.ID, "This command can only be used in group chats.")
		return
	}
	if len(cmd.Args) == 0 {
		b.reply(ctx, chat.ID, "Usage: /enable &lt;command&gt;")
		return
	}

	name := commandArg(cmd.Args[0])
	changed, err := b.db.EnableCommand(ctx, chat.ID, name)
	if err != nil {
		b.logger.Error("Failed to enable command", zap.String("command", name), zap.Error(err))
		b.reply(ctx, chat.ID, "Could not save the setting. Please try again later.")
		return
	}
	if !changed {
		b.reply(ctx, chat.ID, fmt.Sprintf("Command /%s is not currently disabled.", html.EscapeString(name)))
		return
	}
	b.reply(ctx, chat.ID, fmt.Sprintf("Command /%s has been enabled in this group.", name))
}

// allBanTarget works out who /allban is aimed at
func (b *Bot) allBanTarget(ctx context.Context, message *tgbotapi.Message, cmd command) (id int64, label, problem string) {
	if reply := message.ReplyToMessage; reply != nil && reply.From != nil {
		return reply.From.ID, userMention(reply.From), ""
	}
	if len(cmd.Args) == 0 {
		return 0, "", "Usage: /allban &lt;user_id or @username&gt; or reply to a user's message."
	}

	arg := cmd.Args[0]
	if name, ok := strings.CutPrefix(arg, "@"); ok {
		id, err := b.db.FindUserByUsername(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			return 0, "", fmt.Sprintf("Could not find a user ID for %s. This can happen if I haven't interacted with them before. Please use their user ID or reply to one of their messages.", html.EscapeString(arg))
		}
		if err != nil {
			b.logger.Error("Failed to resolve username", zap.String("username", name), zap.Error(err))
			return 0, "", "Could not identify the target user."
		}
		return id, "user @" + html.EscapeString(strings.ToLower(name)), ""
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", "Invalid argument. Please provide a user ID, a @username, or reply to a user's message."
	}
	return id, b.gw.ResolveDisplayName(ctx, id), ""
}

// handleAllBan bans a user from every known group that allows it
func (b *Bot) handleAllBan(ctx context.Context, message *tgbotapi.Message, cmd command) {
	chatID := message.Chat.ID
	actor := message.From.ID

	targetID, label, problem := b.allBanTarget(ctx, message, cmd)
	if problem != "" {
		b.reply(ctx, chatID, problem)
		return
	}
	if b.auth.IsOwner(targetID) {
		b.reply(ctx, chatID, "You cannot ban the owner.")
		return
	}
	if targetID == actor {
		b.reply(ctx, chatID, "You cannot ban yourself.")
		return
	}

	groups, err := b.db.ListGroups(ctx)
	if err != nil {
		b.logger.Error("Failed to list groups", zap.Error(err))
		b.reply(ctx, chatID, "Could not load the list of groups. Please try again later.")
		return
	}

	b.reply(ctx, chatID, fmt.Sprintf("Processing all-ban for %s. This may take a moment...", label))

	var banned, failed []string
	for _, g := range groups {
		disabled, err := storage.IsCommandDisabled(ctx, b.db, g.ID, "allban")
		if err != nil {
			b.logger.Error("Failed to load disabled commands", zap.Int64("group_id", g.ID), zap.Error(err))
		}
		if disabled {
			continue
		}

		title := g.Title
		if title == "" {
			title = b.gw.ResolveChatTitle(ctx, g.ID)
		}
		if err := b.gw.BanMember(ctx, g.ID, targetID); err != nil {
			b.logger.Warn("All-ban failed in group",
				zap.Int64("group_id", g.ID),
				zap.Int64("target_id", targetID),
				zap.Error(err),
			)
			failed = append(failed, fmt.Sprintf("%s (Reason: %s)", html.EscapeString(title), html.EscapeString(err.Error())))
			continue
		}
		banned = append(banned, html.EscapeString(title))
	}

	if len(banned) == 0 && len(failed) == 0 {
		b.reply(ctx, chatID, "Could not perform the ban. Either the bot is not in any groups or the /allban command is disabled in all of them.")
		return
	}

	summary := fmt.Sprintf("All-ban executed for %s.\n\n", label)
	if len(banned) > 0 {
		summary += "✅ <b>Successfully banned from:</b>\n- " + strings.Join(banned, "\n- ")
	}
	if len(failed) > 0 {
		summary += "\n\n❌ <b>Failed to ban from:</b>\n- " + strings.Join(failed, "\n- ")
	}
	b.reply(ctx, chatID, summary)

	event := audit.Event{
		Time:     time.Now(),
		Kind:     audit.KindAllBan,
		ActorID:  actor,
		TargetID: targetID,
		Deleted:  len(banned),
		Failed:   len(failed),
	}
	if err := b.journal.Record(ctx, event); err != nil {
		b.logger.Warn("Failed to record all-ban", zap.Int64("target_id", targetID), zap.Error(err))
	}
}

// handlePurgeConfirmCallback passes the confirmation decision to the purge workflow
func (b *Bot) handlePurgeConfirmCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	err := b.purge.Confirm(ctx, query.From.ID, query.Data == purge.CallbackConfirm)
	switch {
	case errors.Is(err, purge.ErrNoSession):
		b.logger.Debug("Stale purge confirmation", zap.Int64("user_id", query.From.ID))
	case err != nil:
		b.logger.Error("Purge confirmation failed", zap.Int64("user_id", query.From.ID), zap.Error(err))
	}
}

// handlePurgeVerifyCallback passes an admin's approve or deny to the purge workflow
func (b *Bot) handlePurgeVerifyCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	approve, requesterID, err := purge.ParseVerifyData(query.Data)
	if err != nil {
		b.logger.Warn("Malformed verification payload", zap.String("data", query.Data), zap.Error(err))
		return
	}

	var promptChat int64
	var promptMessage int
	if query.Message != nil && query.Message.Chat != nil {
		promptChat, promptMessage = query.Message.Chat.ID, query.Message.MessageID
	}

	err = b.purge.Verify(ctx, query.From.ID, requesterID, approve, promptChat, promptMessage)
	switch {
	case errors.Is(err, purge.ErrNoSession):
		b.logger.Debug("Stale purge verification",
			zap.Int64("admin_id", query.From.ID),
			zap.Int64("requester_id", requesterID),
		)
	case err != nil:
		b.logger.Error("Purge verification failed",
			zap.Int64("admin_id", query.From.ID),
			zap.Int64("requester_id", requesterID),
			zap.Error(err),
		)
	}
}
