package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"riskbot/internal/audit"
	"riskbot/internal/authz"
	"riskbot/internal/gateway/gatewaytest"
	"riskbot/internal/models"
	"riskbot/internal/purge"
	"riskbot/internal/scheduler"
	"riskbot/internal/storage/stubs"
)

// Note: the bot never talks to Telegram in these tests. Outgoing traffic
// goes through a recording gateway and handlers are called directly.

const (
	ownerID    = int64(1)
	userID     = int64(10)
	adminID    = int64(20)
	strangerID = int64(99)

	groupA = int64(-100)
	groupB = int64(-200)
)

func newTestBot(t *testing.T) (*Bot, *stubs.MockDB, *gatewaytest.Fake) {
	t.Helper()

	db := stubs.NewMockDB()
	ctx := context.Background()
	if err := db.Initialize(ctx); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	for _, g := range []models.Group{{ID: groupA, Title: "Alpha"}, {ID: groupB, Title: "Beta"}} {
		if err := db.RegisterGroup(ctx, g); err != nil {
			t.Fatalf("Failed to register group: %v", err)
		}
	}

	gw := gatewaytest.New()
	gw.Admins[groupA] = []int64{adminID}
	gw.Admins[groupB] = []int64{adminID}
	gw.Titles[groupA] = "Alpha"
	gw.Titles[groupB] = "Beta"
	gw.Names[userID] = "Carol"

	logger := zap.NewNop()
	auth := authz.New(ownerID, gw, db, time.Minute, logger)
	sched := scheduler.New(gw, logger)
	t.Cleanup(sched.Stop)
	journal := audit.NewLogJournal(logger)

	bot := &Bot{
		api:     nil, // Not needed for handler tests
		gw:      gw,
		db:      db,
		auth:    auth,
		purge:   purge.NewWorkflow(db, gw, auth, purge.NewSessions(0), journal, logger),
		sched:   sched,
		journal: journal,
		states:  make(map[int64]*ConversationState),
		logger:  logger,
		draw:    func() bool { return true },
		pick:    func(n int) int { return 0 },
	}
	return bot, db, gw
}

func privateMessage(from int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: from, FirstName: "User"},
		Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
		Text:      text,
	}
}

func groupMessage(from, groupID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 5,
		From:      &tgbotapi.User{ID: from, FirstName: "User"},
		Chat:      &tgbotapi.Chat{ID: groupID, Type: "supergroup", Title: "Alpha"},
		Text:      text,
	}
}

func callbackQuery(from int64, data string, chatID int64, messageID int) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:   "cb",
		From: &tgbotapi.User{ID: from, FirstName: "User"},
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: messageID,
			Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
		},
	}
}

func photoMessage(from int64) *tgbotapi.Message {
	msg := privateMessage(from, "")
	msg.Photo = []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}}
	return msg
}

func addRisk(t *testing.T, db *stubs.MockDB, risk models.Risk) {
	t.Helper()
	if err := db.AddRisk(context.Background(), risk); err != nil {
		t.Fatalf("Failed to add risk: %v", err)
	}
}

func userRisks(t *testing.T, db *stubs.MockDB, id int64) []models.Risk {
	t.Helper()
	risks, err := db.UserRisks(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to load risks: %v", err)
	}
	return risks
}

func lastText(gw *gatewaytest.Fake, chatID int64) string {
	return gw.LastTo(chatID).Text
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		ok   bool
		name string
		args []string
		rest string
	}{
		{text: "/risk", ok: true, name: "risk"},
		{text: ".purge @bob", ok: true, name: "purge", args: []string{"@bob"}, rest: "@bob"},
		{text: "!seerisk 12", ok: true, name: "seerisk", args: []string{"12"}, rest: "12"},
		{text: "/start@riskbot", ok: true, name: "start"},
		{text: "/SeeRisk 5", ok: true, name: "seerisk", args: []string{"5"}, rest: "5"},
		{text: "/addcondition  Say   sorry\nnicely", ok: true, name: "addcondition",
			args: []string{"Say", "sorry", "nicely"}, rest: "Say   sorry\nnicely"},
		{text: "/unknown", ok: true, name: "unknown"},
		{text: "...hello", ok: false},
		{text: "!wow", ok: false},
		{text: "hello /risk", ok: false},
		{text: "/", ok: false},
		{text: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cmd, ok := parseCommand(tt.text)
			if ok != tt.ok {
				t.Fatalf("parseCommand(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if !ok {
				return
			}
			if cmd.Name != tt.name {
				t.Errorf("Expected name %q, got %q", tt.name, cmd.Name)
			}
			if cmd.Rest != tt.rest {
				t.Errorf("Expected rest %q, got %q", tt.rest, cmd.Rest)
			}
			if strings.Join(cmd.Args, ",") != strings.Join(tt.args, ",") {
				t.Errorf("Expected args %v, got %v", tt.args, cmd.Args)
			}
		})
	}
}

func TestBot_RiskConversation_Unlucky(t *testing.T) {
	bot, db, gw := newTestBot(t)

	bot.handleMessage(privateMessage(userID, "/risk"))

	state := bot.getState(userID)
	if state == nil {
		t.Fatal("Expected conversation state to be created")
	}
	if state.Command != "risk" || state.Step != riskStepGroup {
		t.Fatalf("Expected risk step %d, got %s step %d", riskStepGroup, state.Command, state.Step)
	}
	picker := gw.LastTo(userID)
	if len(picker.Keyboard) != 2 {
		t.Fatalf("Expected 2 group buttons, got %d", len(picker.Keyboard))
	}

	bot.handleCallbackQuery(callbackQuery(userID, "risk_group:-100", userID, picker.MessageID))
	if state.Step != riskStepMedia {
		t.Fatalf("Expected step %d after group selection, got %d", riskStepMedia, state.Step)
	}

	bot.handleMessage(photoMessage(userID))

	if bot.getState(userID) != nil {
		t.Error("Expected conversation to be cleaned up")
	}
	posted := gw.LastTo(groupA)
	if posted.Media == nil || posted.Media.FileID != "large" {
		t.Fatalf("Expected largest photo to be posted to the group, got %+v", posted)
	}
	if !strings.Contains(posted.Text, "failed miserably") {
		t.Errorf("Unexpected caption: %s", posted.Text)
	}

	risks := userRisks(t, db, userID)
	if len(risks) != 1 {
		t.Fatalf("Expected 1 risk, got %d", len(risks))
	}
	r := risks[0]
	if r.Outcome != models.OutcomePosted {
		t.Errorf("Expected outcome posted, got %s", r.Outcome)
	}
	if r.PostedMessageID == nil || *r.PostedMessageID != posted.MessageID {
		t.Errorf("Expected posted message id %d, got %v", posted.MessageID, r.PostedMessageID)
	}
	if r.GroupID != groupA || r.Kind != models.MediaPhoto || len(r.ID) != 32 {
		t.Errorf("Unexpected risk: %+v", r)
	}
}

func TestBot_RiskConversation_LuckyThenBeg(t *testing.T) {
	bot, db, gw := newTestBot(t)
	bot.draw = func() bool { return false }

	bot.handleMessage(privateMessage(userID, "/risk"))
	bot.handleCallbackQuery(callbackQuery(userID, "risk_group:-200", userID, 1))
	bot.handleMessage(photoMessage(userID))

	if len(gw.SentTo(groupB)) != 0 {
		t.Fatal("Expected nothing posted for a lucky draw")
	}
	risks := userRisks(t, db, userID)
	if len(risks) != 1 || risks[0].Outcome != models.OutcomeNotPosted || risks[0].IsPublished() {
		t.Fatalf("Expected one unpublished not_posted risk, got %+v", risks)
	}

	state := bot.getState(userID)
	if state == nil || state.Step != riskStepBeg {
		t.Fatal("Expected conversation to wait for the beg decision")
	}
	offer := gw.LastTo(userID)
	if len(offer.Keyboard) != 2 {
		t.Fatalf("Expected beg buttons, got %+v", offer.Keyboard)
	}

	bot.handleCallbackQuery(callbackQuery(userID, "beg:yes", userID, offer.MessageID))

	if bot.getState(userID) != nil {
		t.Error("Expected conversation to be cleaned up")
	}
	posted := gw.LastTo(groupB)
	if !strings.Contains(posted.Text, "BEGGED") {
		t.Fatalf("Expected begged caption in group, got %q", posted.Text)
	}
	risks = userRisks(t, db, userID)
	if risks[0].PostedMessageID == nil || *risks[0].PostedMessageID != posted.MessageID {
		t.Errorf("Expected risk to reference the posted message")
	}
	if risks[0].Outcome != models.OutcomeNotPosted {
		t.Errorf("Begging must not change the drawn outcome, got %s", risks[0].Outcome)
	}
}

func TestBot_RiskConversation_BegDeclined(t *testing.T) {
	bot, db, gw := newTestBot(t)
	bot.draw = func() bool { return false }

	bot.handleMessage(privateMessage(userID, "/risk"))
	bot.handleCallbackQuery(callbackQuery(userID, "risk_group:-100", userID, 1))
	bot.handleMessage(photoMessage(userID))
	bot.handleCallbackQuery(callbackQuery(userID, "beg:no", userID, 7))

	if len(gw.SentTo(groupA)) != 0 {
		t.Error("Expected nothing posted after declining")
	}
	if userRisks(t, db, userID)[0].IsPublished() {
		t.Error("Expected risk to stay unpublished")
	}
	if len(gw.Edited) == 0 || !strings.Contains(gw.Edited[len(gw.Edited)-1].Text, "secret is safe") {
		t.Errorf("Expected the offer to be edited, got %+v", gw.Edited)
	}
}

func TestBot_RiskConversation_RejectsText(t *testing.T) {
	bot, db, gw := newTestBot(t)

	bot.handleMessage(privateMessage(userID, "/risk"))
	bot.handleCallbackQuery(callbackQuery(userID, "risk_group:-100", userID, 1))
	bot.handleMessage(privateMessage(userID, "just words"))

	if !strings.Contains(lastText(gw, userID), "not a valid media type") {
		t.Errorf("Unexpected reply: %s", lastText(gw, userID))
	}
	if state := bot.getState(userID); state == nil || state.Step != riskStepMedia {
		t.Error("Expected conversation to keep waiting for media")
	}
	if db.Writes != 0 {
		t.Errorf("Expected no writes, got %d", db.Writes)
	}
}

func TestBot_RiskSkipsDisabledGroups(t *testing.T) {
	bot, db, gw := newTestBot(t)
	if _, err := db.DisableCommand(context.Background(), groupB, "risk"); err != nil {
		t.Fatal(err)
	}

	bot.handleMessage(privateMessage(userID, "/risk"))

	picker := gw.LastTo(userID)
	if len(picker.Keyboard) != 1 || picker.Keyboard[0][0].Data != "risk_group:-100" {
		t.Errorf("Expected only Alpha to be offered, got %+v", picker.Keyboard)
	}
}

func TestBot_RiskInGroupRedirects(t *testing.T) {
	bot, _, gw := newTestBot(t)

	bot.handleMessage(groupMessage(userID, groupA, "/risk"))

	if !strings.Contains(lastText(gw, groupA), "only available in private chat") {
		t.Errorf("Unexpected group reply: %s", lastText(gw, groupA))
	}
	if lastText(gw, userID) != "Please use the /risk command here." {
		t.Errorf("Unexpected private reply: %s", lastText(gw, userID))
	}
	if bot.getState(userID) != nil {
		t.Error("Expected no conversation in a group")
	}
}

func TestBot_CancelRisk(t *testing.T) {
	bot, _, gw := newTestBot(t)

	bot.handleMessage(privateMessage(userID, "/risk"))
	bot.handleMessage(privateMessage(userID, "/cancel"))

	if bot.getState(userID) != nil {
		t.Error("Expected conversation to be cancelled")
	}
	if lastText(gw, userID) != "The risk has been cancelled." {
		t.Errorf("Unexpected reply: %s", lastText(gw, userID))
	}
}

func TestBot_CancelWithoutAnything(t *testing.T) {
	bot, _, gw := newTestBot(t)

	bot.handleMessage(privateMessage(userID, "!cancel"))

	if lastText(gw, userID) != "Operation cancelled." {
		t.Errorf("Unexpected reply: %s", lastText(gw, userID))
	}
}

func TestBot_DisabledCommandIgnoredInGroup(t *testing.T) {
	bot, db, gw := newTestBot(t)
	if _, err := db.DisableCommand(context.Background(), groupA, "random"); err != nil {
		t.Fatal(err)
	}
	addRisk(t, db, models.Risk{ID: "r1", UserID: userID, GroupID: groupA, Media: models.Media{Kind: models.MediaPhoto, FileID: "f"}})

	bot.handleMessage(groupMessage(adminID, groupA, "/random"))

	if n := len(gw.SentTo(groupA)); n != 0 {
		t.Errorf("Expected disabled command to be silent, got %d messages", n)
	}
}

func TestBot_AdminOnlyCommandWarnsStranger(t *testing.T) {
	bot, _, gw := newTestBot(t)

	bot.handleMessage(groupMessage(strangerID, groupA, "/seerisk 10"))

	if !strings.Contains(lastText(gw, groupA), "you are not authorized to use this command") {
		t.Errorf("Unexpected reply: %s", lastText(gw, groupA))
	}

	bot.handleMessage(privateMessage(strangerID, "/post"))
	if lastText(gw, strangerID) != "This is an admin-only command. You are not authorized." {
		t.Errorf("Unexpected private reply: %s", lastText(gw, strangerID))
	}
	if bot.getState(strangerID) != nil {
		t.Error("Expected no conversation for an unauthorized user")
	}
}

func TestBot_UnknownCommand(t *testing.T) {
	bot, _, gw := newTestBot(t)

	bot.handleMessage(privateMessage(userID, "/frobnicate"))
	if !strings.HasPrefix(lastText(gw, userID), "Unknown command") {
		t.Errorf("Unexpected reply: %s", lastText(gw, userID))
	}

	bot.handleMessage(groupMessage(userID, groupA, "/frobnicate"))
	if n := len(gw.SentTo(groupA)); n != 0 {
		t.Errorf("Expected unknown commands to be ignored in groups, got %d messages", n)
	}
}

func TestBot_RegistersGroups(t *testing.T) {
	bot, db, _ := newTestBot(t)

	msg := groupMessage(userID, -300, "hello")
	msg.Chat.Title = "Gamma"
	bot.handleMessage(msg)

	groups, err := db.ListGroups(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, g := range groups {
		if g.ID == -300 && g.Title == "Gamma" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected group -300 to be registered, got %+v", groups)
	}
}

func TestBot_Conditions(t *testing.T) {
	bot, db, gw := newTestBot(t)
	ctx := context.Background()

	bot.handleMessage(groupMessage(adminID, groupA, "/addcondition Say <sorry> nicely"))

	conds, _ := db.GroupConditions(ctx, groupA)
	if len(conds) != 1 || conds[0].Text != "Say <sorry> nicely" {
		t.Fatalf("Expected condition to be stored verbatim, got %+v", conds)
	}
	if !strings.Contains(lastText(gw, groupA), conds[0].ID) {
		t.Errorf("Expected reply to mention the id, got %s", lastText(gw, groupA))
	}

	bot.handleMessage(groupMessage(adminID, groupA, "/listconditions"))
	if !strings.Contains(lastText(gw, groupA), "Say &lt;sorry&gt; nicely") {
		t.Errorf("Expected escaped condition in listing, got %s", lastText(gw, groupA))
	}

	bot.handleMessage(groupMessage(adminID, groupA, "/removecondition nope1"))
	if !strings.Contains(lastText(gw, groupA), "Could not find a condition") {
		t.Errorf("Unexpected reply: %s", lastText(gw, groupA))
	}

	bot.handleMessage(groupMessage(adminID, groupA, "/removecondition "+conds[0].ID))
	conds, _ = db.GroupConditions(ctx, groupA)
	if len(conds) != 0 {
		t.Errorf("Expected condition to be removed, got %+v", conds)
	}

	bot.handleMessage(groupMessage(adminID, groupA, "/listconditions"))
	if lastText(gw, groupA) != "No conditions have been set for this group." {
		t.Errorf("Unexpected reply: %s", lastText(gw, groupA))
	}
}

func TestBot_DisableEnable(t *testing.T) {
	bot, db, gw := newTestBot(t)
	ctx := context.Background()

	tests := []struct {
		text  string
		reply string
	}{
		{"/disable /risk", "Command /risk has been disabled in this group."},
		{"/disable risk", "Command /risk is already disabled."},
		{"/disable nonsense", "No such command: /nonsense"},
		{"/disable enable", "Command /enable cannot be disabled."},
		{"/disable", "Usage: /disable"},
		{"/enable risk", "Command /risk has been enabled in this group."},
		{"/enable risk", "Command /risk is not currently disabled."},
	}
	for _, tt := range tests {
		bot.handleMessage(groupMessage(adminID, groupA, tt.text))
		if got := lastText(gw, groupA); !strings.HasPrefix(got, tt.reply) {
			t.Errorf("%s: expected reply starting %q, got %q", tt.text, tt.reply, got)
		}
	}

	disabled, _ := db.DisabledCommands(ctx, groupA)
	if len(disabled) != 0 {
		t.Errorf("Expected nothing disabled, got %v", disabled)
	}
}

func TestBot_SeeRiskAndPost(t *testing.T) {
	bot, db, gw := newTestBot(t)
	msgID := 77
	addRisk(t, db, models.Risk{ID: "drawn", UserID: userID, Username: "carol", GroupID: groupA,
		Media: models.Media{Kind: models.MediaPhoto, FileID: "p"}, Outcome: models.OutcomePosted})
	addRisk(t, db, models.Risk{ID: "live", UserID: userID, GroupID: groupA,
		Media: models.Media{Kind: models.MediaVideo, FileID: "v"}, Outcome: models.OutcomePosted, PostedMessageID: &msgID})
	addRisk(t, db, models.Risk{ID: "gone", UserID: userID, GroupID: groupB,
		Media: models.Media{Kind: models.MediaVoice, FileID: "o"}, Outcome: models.OutcomeNotPosted, Purged: true})

	bot.handleMessage(privateMessage(adminID, "/seerisk @Carol"))

	sent := gw.SentTo(adminID)
	if len(sent) != 4 {
		t.Fatalf("Expected header and 3 media, got %d messages", len(sent))
	}
	if sent[0].Text != "Found 3 risk(s) for user ID 10:" {
		t.Errorf("Unexpected header: %s", sent[0].Text)
	}
	if len(sent[1].Keyboard) != 2 || sent[1].Keyboard[0][0].Data != "postrisk:10:drawn" {
		t.Errorf("Expected Post Now and taunt buttons for an unpublished drawn risk, got %+v", sent[1].Keyboard)
	}
	if !strings.Contains(sent[1].Text, "Risk: Failed, Status: Not Posted") || !strings.Contains(sent[1].Text, "Alpha") {
		t.Errorf("Unexpected caption: %s", sent[1].Text)
	}
	if len(sent[2].Keyboard) != 1 || sent[2].Keyboard[0][0].Data != "posttaunt:10:live" {
		t.Errorf("Expected only the taunt button for a published risk, got %+v", sent[2].Keyboard)
	}
	if len(sent[3].Keyboard) != 0 || !strings.Contains(sent[3].Text, "Status: Purged") {
		t.Errorf("Expected purged risk without buttons, got %+v", sent[3])
	}

	query := callbackQuery(adminID, "postrisk:10:drawn", adminID, sent[1].MessageID)
	query.Message.Caption = "Risk taken on: x\nTarget Group: Alpha\nRisk: Failed, Status: Not Posted"
	bot.handleCallbackQuery(query)

	posted := gw.LastTo(groupA)
	if posted.Media == nil || posted.Media.FileID != "p" {
		t.Fatalf("Expected the risk to be posted to its group, got %+v", posted)
	}
	risks := userRisks(t, db, userID)
	if risks[0].PostedMessageID == nil || *risks[0].PostedMessageID != posted.MessageID {
		t.Error("Expected the risk to reference the posted message")
	}
	edited := gw.Edited[len(gw.Edited)-1]
	if !strings.Contains(edited.Text, "Status: Posted") {
		t.Errorf("Expected listing caption to be updated, got %s", edited.Text)
	}

	bot.handleCallbackQuery(callbackQuery(adminID, "postrisk:10:drawn", adminID, sent[1].MessageID))
	if lastText(gw, adminID) != "This risk has already been posted." {
		t.Errorf("Unexpected reply: %s", lastText(gw, adminID))
	}

	bot.handleCallbackQuery(callbackQuery(adminID, "posttaunt:10:gone", adminID, sent[3].MessageID))
	if lastText(gw, adminID) != "This risk has already been purged and cannot be posted." {
		t.Errorf("Unexpected reply: %s", lastText(gw, adminID))
	}
}

func TestBot_PostRiskRequiresGroupAdmin(t *testing.T) {
	bot, db, gw := newTestBot(t)
	addRisk(t, db, models.Risk{ID: "r", UserID: userID, GroupID: groupA,
		Media: models.Media{Kind: models.MediaPhoto, FileID: "p"}, Outcome: models.OutcomePosted})

	bot.handleCallbackQuery(callbackQuery(strangerID, "posttaunt:10:r", strangerID, 3))

	if len(gw.SentTo(groupA)) != 0 {
		t.Error("Expected nothing to be posted")
	}
	if lastText(gw, strangerID) != "You are not authorized to post this risk." {
		t.Errorf("Unexpected reply: %s", lastText(gw, strangerID))
	}
}

func TestBot_SeeRiskUnknownUser(t *testing.T) {
	bot, _, gw := newTestBot(t)

	tests := map[string]string{
		"/seerisk":        "Usage: /seerisk &lt;user_id or @username&gt;",
		"/seerisk @ghost": "No risk data found for username @ghost.",
		"/seerisk abc":    "Invalid input. Please provide a valid user ID or a @username.",
		"/seerisk 12345":  "No risk data found for user ID 12345.",
	}
	for text, want := range tests {
		bot.handleMessage(privateMessage(ownerID, text))
		if got := lastText(gw, ownerID); got != want {
			t.Errorf("%s: expected %q, got %q", text, want, got)
		}
	}
}

func TestBot_Random(t *testing.T) {
	bot, db, gw := newTestBot(t)

	bot.handleMessage(groupMessage(adminID, groupA, "/random"))
	if lastText(gw, groupA) != "There are no available risks to choose from." {
		t.Errorf("Unexpected reply: %s", lastText(gw, groupA))
	}

	addRisk(t, db, models.Risk{ID: "purged", UserID: 5, GroupID: groupB,
		Media: models.Media{Kind: models.MediaPhoto, FileID: "old"}, Purged: true})
	addRisk(t, db, models.Risk{ID: "fresh", UserID: userID, GroupID: groupB,
		Media: models.Media{Kind: models.MediaVideo, FileID: "new"}})

	bot.handleMessage(groupMessage(adminID, groupA, "/random"))

	posted := gw.LastTo(groupA)
	if posted.Media == nil || posted.Media.FileID != "new" {
		t.Fatalf("Expected the non-purged risk, got %+v", posted)
	}
	if !strings.Contains(posted.Text, "Carol") {
		t.Errorf("Expected owner mention in caption, got %s", posted.Text)
	}
}

func TestBot_AllBan(t *testing.T) {
	bot, db, gw := newTestBot(t)
	ctx := context.Background()
	if err := db.RegisterGroup(ctx, models.Group{ID: -300, Title: "Gamma"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.DisableCommand(ctx, -300, "allban"); err != nil {
		t.Fatal(err)
	}
	gw.FailBan[groupB] = true

	bot.handleMessage(groupMessage(adminID, groupA, "/allban 10"))

	if len(gw.Bans) != 1 || gw.Bans[0] != [2]int64{groupA, userID} {
		t.Errorf("Expected a single ban in Alpha, got %v", gw.Bans)
	}
	summary := lastText(gw, groupA)
	if !strings.Contains(summary, "Successfully banned from:</b>\n- Alpha") {
		t.Errorf("Expected Alpha in successes, got %s", summary)
	}
	if !strings.Contains(summary, "Failed to ban from:</b>\n- Beta (Reason:") {
		t.Errorf("Expected Beta in failures, got %s", summary)
	}
	if strings.Contains(summary, "Gamma") {
		t.Errorf("Expected Gamma to be skipped, got %s", summary)
	}
}

func TestBot_AllBanTargets(t *testing.T) {
	bot, _, gw := newTestBot(t)

	tests := map[string]string{
		"/allban":        "Usage: /allban",
		"/allban 1":      "You cannot ban the owner.",
		"/allban 20":     "You cannot ban yourself.",
		"/allban @ghost": "Could not find a user ID for @ghost.",
		"/allban x":      "Invalid argument.",
	}
	for text, want := range tests {
		bot.handleMessage(groupMessage(adminID, groupA, text))
		if got := lastText(gw, groupA); !strings.HasPrefix(got, want) {
			t.Errorf("%s: expected reply starting %q, got %q", text, want, got)
		}
	}
	if len(gw.Bans) != 0 {
		t.Errorf("Expected no bans, got %v", gw.Bans)
	}

	reply := groupMessage(adminID, groupA, "/allban")
	reply.ReplyToMessage = &tgbotapi.Message{MessageID: 3, From: &tgbotapi.User{ID: 55, FirstName: "Spam"}}
	bot.handleMessage(reply)
	if len(gw.Bans) != 2 {
		t.Errorf("Expected the replied-to user to be banned in both groups, got %v", gw.Bans)
	}
}

func TestBot_AdminReport(t *testing.T) {
	bot, _, gw := newTestBot(t)

	msg := groupMessage(userID, groupA, "/admin spam <again>")
	msg.ReplyToMessage = &tgbotapi.Message{MessageID: 42, From: &tgbotapi.User{ID: 55, FirstName: "Spam"}}
	bot.handleMessage(msg)

	if len(gw.Forwards) != 1 || gw.Forwards[0].ChatID != adminID || gw.Forwards[0].MessageID != 42 {
		t.Fatalf("Expected the message to be forwarded to the admin, got %+v", gw.Forwards)
	}
	report := lastText(gw, adminID)
	if !strings.Contains(report, "spam &lt;again&gt;") || !strings.Contains(report, "/42'>Go to message") {
		t.Errorf("Unexpected report: %s", report)
	}
	if lastText(gw, groupA) != "The admins have been notified." {
		t.Errorf("Unexpected group reply: %s", lastText(gw, groupA))
	}
	if bot.sched.Pending() == 0 {
		t.Error("Expected the confirmation to be scheduled for deletion")
	}
}

func TestBot_AdminReportNeedsReply(t *testing.T) {
	bot, _, gw := newTestBot(t)

	bot.handleMessage(groupMessage(userID, groupA, "/admin"))

	if lastText(gw, groupA) != "Please use this command as a reply to the message you want to report." {
		t.Errorf("Unexpected reply: %s", lastText(gw, groupA))
	}
}

func TestBot_Link(t *testing.T) {
	bot, _, gw := newTestBot(t)

	bot.handleMessage(groupMessage(adminID, groupA, "/link"))

	if !strings.Contains(lastText(gw, adminID), "https://t.me/+invite100") {
		t.Errorf("Expected invite link in private, got %s", lastText(gw, adminID))
	}
	if lastText(gw, groupA) != "I have sent you a single-use invite link in a private message." {
		t.Errorf("Unexpected group reply: %s", lastText(gw, groupA))
	}
}

func TestBot_PostConversation(t *testing.T) {
	bot, _, gw := newTestBot(t)

	bot.handleMessage(privateMessage(adminID, "/post"))
	picker := gw.LastTo(adminID)
	if len(picker.Keyboard) != 2 {
		t.Fatalf("Expected both admin groups, got %+v", picker.Keyboard)
	}

	bot.handleCallbackQuery(callbackQuery(adminID, "post_group:-200", adminID, picker.MessageID))

	video := privateMessage(adminID, "")
	video.Video = &tgbotapi.Video{FileID: "vid"}
	bot.handleMessage(video)
	if lastText(gw, adminID) != "Media received. Now, please enter the caption for your post." {
		t.Fatalf("Unexpected reply: %s", lastText(gw, adminID))
	}

	bot.handleMessage(privateMessage(adminID, "Hello <world>"))
	preview := gw.LastTo(adminID)
	if preview.Media == nil || preview.Text != "Hello &lt;world&gt;" || len(preview.Keyboard) != 1 {
		t.Fatalf("Unexpected preview: %+v", preview)
	}
	if len(gw.SentTo(groupB)) != 0 {
		t.Fatal("Expected nothing posted before confirmation")
	}

	bot.handleCallbackQuery(callbackQuery(adminID, "post:confirm", adminID, preview.MessageID))

	posted := gw.LastTo(groupB)
	if posted.Media == nil || posted.Media.FileID != "vid" || posted.Text != "Hello &lt;world&gt;" {
		t.Errorf("Unexpected post: %+v", posted)
	}
	if lastText(gw, adminID) != "✅ Your post has been sent successfully!" {
		t.Errorf("Unexpected reply: %s", lastText(gw, adminID))
	}
	if bot.getState(adminID) != nil {
		t.Error("Expected conversation to be cleaned up")
	}
}

func TestBot_PostRejectsVoice(t *testing.T) {
	bot, _, gw := newTestBot(t)

	bot.handleMessage(privateMessage(adminID, "/post"))
	bot.handleCallbackQuery(callbackQuery(adminID, "post_group:-100", adminID, 1))

	voice := privateMessage(adminID, "")
	voice.Voice = &tgbotapi.Voice{FileID: "v"}
	bot.handleMessage(voice)

	if lastText(gw, adminID) != "This is not a valid media type. Please send a photo or a video." {
		t.Errorf("Unexpected reply: %s", lastText(gw, adminID))
	}
}

func TestBot_PurgeFlow(t *testing.T) {
	bot, db, gw := newTestBot(t)
	ctx := context.Background()
	msgID := 500
	addRisk(t, db, models.Risk{ID: "free", UserID: userID, GroupID: groupA,
		Media: models.Media{Kind: models.MediaPhoto, FileID: "a"}, Outcome: models.OutcomePosted, PostedMessageID: &msgID})
	addRisk(t, db, models.Risk{ID: "gated", UserID: userID, GroupID: groupB,
		Media: models.Media{Kind: models.MediaPhoto, FileID: "b"}, Outcome: models.OutcomeNotPosted})
	if _, err := db.AddCondition(ctx, groupB, "Apologize"); err != nil {
		t.Fatal(err)
	}

	bot.handleMessage(privateMessage(userID, "/purge"))
	prompt := gw.LastTo(userID)
	if len(prompt.Keyboard) != 1 || prompt.Keyboard[0][0].Data != purge.CallbackConfirm {
		t.Fatalf("Expected confirmation buttons, got %+v", prompt)
	}

	bot.handleCallbackQuery(callbackQuery(userID, purge.CallbackConfirm, userID, prompt.MessageID))

	risks := userRisks(t, db, userID)
	if !risks[0].Purged || risks[1].Purged {
		t.Fatalf("Expected only the unconditioned risk to be purged, got %+v", risks)
	}
	if len(gw.Deletes) == 0 || gw.Deletes[0].MessageID != msgID {
		t.Errorf("Expected posted message to be deleted, got %+v", gw.Deletes)
	}

	notice := gw.LastTo(adminID)
	if len(notice.Keyboard) != 1 || notice.Keyboard[0][0].Data != purge.VerifyData(true, userID) {
		t.Fatalf("Expected verification buttons for the admin, got %+v", notice)
	}

	bot.handleCallbackQuery(callbackQuery(adminID, purge.VerifyData(true, userID), adminID, notice.MessageID))

	risks = userRisks(t, db, userID)
	if !risks[1].Purged {
		t.Error("Expected the conditioned risk to be purged after approval")
	}
	if _, ok := bot.purge.Session(userID); ok {
		t.Error("Expected the purge session to be gone")
	}
}

func TestBot_PurgeCancel(t *testing.T) {
	bot, db, gw := newTestBot(t)
	addRisk(t, db, models.Risk{ID: "r", UserID: userID, GroupID: groupA,
		Media: models.Media{Kind: models.MediaPhoto, FileID: "a"}})

	bot.handleMessage(privateMessage(userID, "/purge"))
	bot.handleMessage(privateMessage(userID, "/cancel"))

	if lastText(gw, userID) != "Purge cancelled." {
		t.Errorf("Unexpected reply: %s", lastText(gw, userID))
	}
	if userRisks(t, db, userID)[0].Purged {
		t.Error("Expected nothing to be purged")
	}
}

func TestBot_PurgeInGroupRedirects(t *testing.T) {
	bot, _, gw := newTestBot(t)

	bot.handleMessage(groupMessage(userID, groupA, "/purge"))

	if lastText(gw, groupA) != "The /purge command is only available in private chat." {
		t.Errorf("Unexpected reply: %s", lastText(gw, groupA))
	}
	if _, ok := bot.purge.Session(userID); ok {
		t.Error("Expected no purge session")
	}
}

func TestBot_Help(t *testing.T) {
	bot, _, gw := newTestBot(t)

	bot.handleMessage(privateMessage(strangerID, "/help"))
	if n := len(gw.LastTo(strangerID).Keyboard); n != 1 {
		t.Errorf("Expected only the general section for a regular user, got %d buttons", n)
	}

	bot.handleMessage(privateMessage(adminID, "/help"))
	menu := gw.LastTo(adminID)
	if len(menu.Keyboard) != 2 {
		t.Fatalf("Expected both sections for an admin, got %d buttons", len(menu.Keyboard))
	}

	bot.handleCallbackQuery(callbackQuery(adminID, "help:admin", adminID, menu.MessageID))
	edited := gw.Edited[len(gw.Edited)-1]
	if edited.Text != adminHelpText || len(edited.Keyboard) != 1 || edited.Keyboard[0][0].Data != "help:back" {
		t.Errorf("Unexpected admin section: %+v", edited)
	}

	bot.handleCallbackQuery(callbackQuery(strangerID, "help:admin", strangerID, 9))
	if lastText(gw, strangerID) != "You are not authorized to view this section." {
		t.Errorf("Unexpected reply: %s", lastText(gw, strangerID))
	}
}

func TestBot_CommandList(t *testing.T) {
	bot, db, gw := newTestBot(t)
	if _, err := db.DisableCommand(context.Background(), groupA, "risk"); err != nil {
		t.Fatal(err)
	}

	bot.handleMessage(groupMessage(userID, groupA, "/command"))
	text := lastText(gw, groupA)
	if strings.Contains(text, "/risk") || strings.Contains(text, "admins only") {
		t.Errorf("Expected regular users to see neither disabled nor admin commands, got %s", text)
	}
	if !strings.Contains(text, "/purge") {
		t.Errorf("Expected /purge in the list, got %s", text)
	}

	bot.handleMessage(groupMessage(adminID, groupA, "/command"))
	text = lastText(gw, groupA)
	if !strings.Contains(text, "/risk (disabled)") || !strings.Contains(text, "/seerisk") {
		t.Errorf("Expected admins to see everything, got %s", text)
	}
}

func TestBot_ChatMemberUpdateRefreshesAdmins(t *testing.T) {
	bot, _, gw := newTestBot(t)
	ctx := context.Background()

	if bot.auth.IsAuthorized(ctx, strangerID, authz.ScopeGroup(groupA)) {
		t.Fatal("Stranger should not be an admin yet")
	}
	gw.Admins[groupA] = []int64{adminID, strangerID}

	bot.HandleWebhookUpdate(tgbotapi.Update{ChatMember: &tgbotapi.ChatMemberUpdated{
		Chat:          tgbotapi.Chat{ID: groupA, Type: "supergroup", Title: "Alpha"},
		OldChatMember: tgbotapi.ChatMember{User: &tgbotapi.User{ID: strangerID}, Status: "member"},
		NewChatMember: tgbotapi.ChatMember{User: &tgbotapi.User{ID: strangerID}, Status: "administrator"},
	}})

	if !bot.auth.IsAuthorized(ctx, strangerID, authz.ScopeGroup(groupA)) {
		t.Error("Expected the promotion to be visible after the update")
	}
}

func TestBot_CommandMessagesCleanedUpInGroups(t *testing.T) {
	bot, _, _ := newTestBot(t)

	bot.handleMessage(groupMessage(adminID, groupA, "/listconditions"))

	if bot.sched.Pending() != 1 {
		t.Errorf("Expected the command message to be scheduled for deletion, got %d", bot.sched.Pending())
	}
}
