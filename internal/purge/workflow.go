package purge

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"riskbot/internal/audit"
	"riskbot/internal/authz"
	"riskbot/internal/gateway"
	"riskbot/internal/metrics"
	"riskbot/internal/models"
	"riskbot/internal/storage"
)

// CommandName is the command groups disable to opt out of purges
const CommandName = "purge"

// Authorizer is the permission check the workflow needs
type Authorizer interface {
	IsAuthorized(ctx context.Context, actor int64, scope authz.Scope) bool
	GroupAdmins(ctx context.Context, groupID int64) []int64
	OwnerID() int64
}

// Workflow drives purge requests from /purge to finalization.
// Each requester has at most one request; requests of different
// requesters run independently.
type Workflow struct {
	store    storage.Storage
	gw       gateway.Gateway
	auth     Authorizer
	sessions *Sessions
	journal  audit.Journal
	logger   *zap.Logger

	// pick returns a number in [0, n)
	pick func(n int) int

	mu    sync.Mutex
	locks map[int64]*requesterLock
}

// requesterLock is dropped from the map once no caller holds or awaits it
type requesterLock struct {
	sync.Mutex
	refs int
}

// NewWorkflow wires a purge workflow
func NewWorkflow(store storage.Storage, gw gateway.Gateway, auth Authorizer, sessions *Sessions, journal audit.Journal, logger *zap.Logger) *Workflow {
	return &Workflow{
		store:    store,
		gw:       gw,
		auth:     auth,
		sessions: sessions,
		journal:  journal,
		logger:   logger.Named("purge"),
		pick:     rand.IntN,
		locks:    make(map[int64]*requesterLock),
	}
}

// lock serializes transitions of one requester's request
func (w *Workflow) lock(requesterID int64) func() {
	w.mu.Lock()
	l, ok := w.locks[requesterID]
	if !ok {
		l = &requesterLock{}
		w.locks[requesterID] = l
	}
	l.refs++
	w.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		w.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(w.locks, requesterID)
		}
		w.mu.Unlock()
	}
}

// Session exposes the current request of a requester
func (w *Workflow) Session(requesterID int64) (*Request, bool) {
	return w.sessions.Get(requesterID)
}

func (w *Workflow) reply(ctx context.Context, chatID int64, text string, keyboard ...[]gateway.Button) int {
	id, err := w.gw.SendText(ctx, chatID, text, keyboard...)
	if err != nil {
		w.logger.Warn("Failed to deliver purge message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	return id
}

// resolveTarget turns a /purge argument into a user id and a label.
// A non-empty problem is a message for the actor.
func (w *Workflow) resolveTarget(ctx context.Context, arg string) (id int64, label, problem string, err error) {
	if name, ok := strings.CutPrefix(arg, "@"); ok {
		id, err = w.store.FindUserByUsername(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			return 0, "", fmt.Sprintf("No risk data found for username %s.", html.EscapeString(arg)), nil
		}
		if err != nil {
			return 0, "", "", err
		}
		return id, "user @" + html.EscapeString(strings.ToLower(name)), "", nil
	}
	id, err = strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", "Invalid argument. Please provide a user ID or a @username.", nil
	}
	return id, w.gw.ResolveDisplayName(ctx, id), "", nil
}

// Start handles /purge from actor. An empty targetArg purges the actor's
// own risks; otherwise an authorized actor purges another user's risks
// without verification.
func (w *Workflow) Start(ctx context.Context, actor int64, targetArg string) error {
	unlock := w.lock(actor)
	defer unlock()

	if existing, ok := w.sessions.Get(actor); ok && existing.State == StateAwaitingVerification {
		w.reply(ctx, actor, "Your previous purge request is still waiting for an admin to verify it.")
		return nil
	}

	req := &Request{RequesterID: actor, TargetID: actor}
	label := "your"
	if targetArg != "" {
		if !w.auth.IsAuthorized(ctx, actor, authz.ScopeAnyGroup) {
			w.logger.Warn("Unauthorized purge of another user",
				zap.Int64("user_id", actor),
				zap.String("target", targetArg),
			)
			w.reply(ctx, actor, "You are not authorized to purge another user's risks.")
			return nil
		}
		id, name, problem, err := w.resolveTarget(ctx, targetArg)
		if err != nil {
			return fmt.Errorf("failed to resolve purge target %q: %w", targetArg, err)
		}
		if problem != "" {
			w.reply(ctx, actor, problem)
			return nil
		}
		req.TargetID, req.Admin, label = id, true, name
	}

	risks, err := w.store.UserRisks(ctx, req.TargetID)
	if err != nil {
		w.reply(ctx, actor, "Could not load risks right now. Please try again later.")
		return fmt.Errorf("failed to load risks of %d: %w", req.TargetID, err)
	}

	var active []models.Risk
	for _, r := range risks {
		if !r.Purged {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		w.reply(ctx, actor, fmt.Sprintf("No active risks found for %s to purge.", label))
		return nil
	}

	req.Candidates, req.SkippedGroups, err = w.filterDisabled(ctx, active)
	if err != nil {
		return err
	}
	if len(req.Candidates) == 0 {
		w.reply(ctx, actor, fmt.Sprintf(
			"All of %s risks are in groups where the /purge command is disabled. No action will be taken.", label))
		return nil
	}

	if req.Admin {
		req.WithoutCondition = req.Candidates
	} else {
		hasCondition, err := w.conditionLookup(ctx)
		if err != nil {
			return err
		}
		req.WithCondition, req.WithoutCondition = Partition(req.Candidates, hasCondition)
	}

	req.State = StateConfirming
	req.PromptMessageID = w.reply(ctx, actor, confirmationText(req, label), gateway.Row(
		gateway.Button{Text: "Yes, purge them.", Data: CallbackConfirm},
		gateway.Button{Text: "No, cancel.", Data: CallbackCancel},
	))
	w.sessions.Put(req)

	path := "self"
	if req.Admin {
		path = "admin"
	}
	metrics.PurgeRequests.WithLabelValues(path).Inc()
	w.logger.Info("Purge awaiting confirmation",
		zap.Int64("requester_id", actor),
		zap.Int64("target_id", req.TargetID),
		zap.Int("candidates", len(req.Candidates)),
		zap.Int("with_condition", len(req.WithCondition)),
		zap.Strings("skipped_groups", req.SkippedGroups),
	)
	return nil
}

// filterDisabled drops risks from groups that disabled purging and
// returns the titles of those groups
func (w *Workflow) filterDisabled(ctx context.Context, risks []models.Risk) ([]models.Risk, []string, error) {
	disabled := make(map[int64]bool)
	var kept []models.Risk
	for _, r := range risks {
		off, seen := disabled[r.GroupID]
		if !seen {
			var err error
			off, err = storage.IsCommandDisabled(ctx, w.store, r.GroupID, CommandName)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to check disabled commands of %d: %w", r.GroupID, err)
			}
			disabled[r.GroupID] = off
		}
		if !off {
			kept = append(kept, r)
		}
	}

	var skipped []string
	for groupID, off := range disabled {
		if off {
			skipped = append(skipped, w.gw.ResolveChatTitle(ctx, groupID))
		}
	}
	sort.Strings(skipped)
	return kept, skipped, nil
}

func (w *Workflow) conditionLookup(ctx context.Context) (func(int64) bool, error) {
	all, err := w.store.ListConditions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}
	return func(groupID int64) bool { return len(all[groupID]) > 0 }, nil
}

func confirmationText(req *Request, label string) string {
	var b strings.Builder
	if req.Admin {
		b.WriteString("🚨 <b>Admin Purge</b> 🚨\n\n")
		fmt.Fprintf(&b, "You are about to purge %d risks for %s. ", len(req.Candidates), label)
		b.WriteString("This will delete any posted media and mark all their risked media as purged.\n\n")
		b.WriteString("This action is irreversible and will bypass any conditions.\n\n")
	} else {
		b.WriteString("🚨 <b>Warning!</b> 🚨\n\n")
		fmt.Fprintf(&b, "You are about to purge <b>%d</b> of your risks. This action is irreversible.\n\n", len(req.Candidates))
		if n := len(req.WithoutCondition); n > 0 {
			fmt.Fprintf(&b, "• <b>%d</b> risks will be purged immediately.\n", n)
		}
		if n := len(req.WithCondition); n > 0 {
			fmt.Fprintf(&b, "• <b>%d</b> risks will require admin verification.\n", n)
		}
		b.WriteString("\n")
	}
	if len(req.SkippedGroups) > 0 {
		b.WriteString("Risks in the following groups will be ignored because /purge is disabled:\n")
		fmt.Fprintf(&b, "- %s\n\n", html.EscapeString(strings.Join(req.SkippedGroups, ", ")))
	}
	b.WriteString("Are you sure you want to proceed?")
	return b.String()
}

// Confirm applies the requester's answer to the confirmation prompt
func (w *Workflow) Confirm(ctx context.Context, actor int64, yes bool) error {
	unlock := w.lock(actor)
	defer unlock()

	req, ok := w.sessions.Get(actor)
	if !ok || req.State != StateConfirming {
		w.reply(ctx, actor, "This purge request is no longer valid.")
		return ErrNoSession
	}

	if !yes {
		w.sessions.Delete(actor)
		w.editPrompt(ctx, req, "Operation cancelled. No risks have been deleted.")
		return nil
	}
	w.editPrompt(ctx, req, "Confirmed. Processing request...")

	if len(req.WithoutCondition) > 0 {
		report, err := w.Finalize(ctx, req.TargetID, req.WithoutCondition)
		if err != nil {
			w.sessions.Delete(actor)
			w.reply(ctx, actor, "Purge failed while loading risks. Please try again later.")
			return err
		}
		w.reply(ctx, actor, report.Summary(req.TargetID))
		kind := audit.KindPurge
		if req.Admin {
			kind = audit.KindAdminPurge
		}
		w.record(ctx, kind, actor, req, report)
	}

	if len(req.WithCondition) == 0 {
		w.sessions.Delete(actor)
		return nil
	}

	req.State = StateAwaitingVerification
	return w.requestVerification(ctx, req)
}

func (w *Workflow) editPrompt(ctx context.Context, req *Request, text string) {
	if req.PromptMessageID == 0 {
		return
	}
	if err := w.gw.EditText(ctx, req.RequesterID, req.PromptMessageID, text); err != nil {
		w.logger.Debug("Failed to edit purge prompt", zap.Error(err))
	}
}

func verificationGroups(risks []models.Risk) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, r := range risks {
		if !seen[r.GroupID] {
			seen[r.GroupID] = true
			ids = append(ids, r.GroupID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// requestVerification picks a condition and asks the admins to verify it.
// The caller holds the requester's lock.
func (w *Workflow) requestVerification(ctx context.Context, req *Request) error {
	groups := verificationGroups(req.WithCondition)

	var conds []models.Condition
	for _, g := range groups {
		gc, err := w.store.GroupConditions(ctx, g)
		if err != nil {
			// Nobody would ever be asked to verify, so the request ends here
			w.sessions.Delete(req.RequesterID)
			w.reply(ctx, req.RequesterID,
				"Could not start the verification of your remaining risks. Please try /purge again later.")
			return fmt.Errorf("failed to load conditions of %d: %w", g, err)
		}
		conds = append(conds, gc...)
	}

	cond, ok := SelectCondition(conds, w.pick)
	if !ok {
		w.reply(ctx, req.RequesterID, "No conditions found for the relevant groups. Proceeding with deletion.")
		return w.finish(ctx, req, req.RequesterID, audit.KindPurge)
	}
	req.CurrentCondition = &cond
	w.sessions.Put(req)

	text := html.EscapeString(cond.Text)
	w.reply(ctx, req.RequesterID, fmt.Sprintf(
		"An admin has been sent the following condition to verify:\n\n<b>Condition:</b> %s\n\n"+
			"Please wait for an admin to confirm that you have met this condition.", text))

	notice := fmt.Sprintf("🚨 <b>Purge Verification Request</b> 🚨\n\n"+
		"User %s (<code>%d</code>) is requesting to purge their risks.\n\n"+
		"<b>Condition to verify:</b>\n<i>%s</i>\n\n"+
		"Please confirm whether the user has met this condition.",
		w.gw.ResolveDisplayName(ctx, req.RequesterID), req.RequesterID, text)
	buttons := gateway.Row(
		gateway.Button{Text: "✅ Approve", Data: VerifyData(true, req.RequesterID)},
		gateway.Button{Text: "❌ Deny", Data: VerifyData(false, req.RequesterID)},
	)

	for _, adminID := range w.verifiers(ctx, groups) {
		if _, err := w.gw.SendText(ctx, adminID, notice, buttons); err != nil {
			w.logger.Warn("Failed to send purge verification to admin",
				zap.Int64("admin_id", adminID),
				zap.Error(err),
			)
		}
	}
	w.logger.Info("Purge awaiting verification",
		zap.Int64("requester_id", req.RequesterID),
		zap.String("condition_id", cond.ID),
	)
	return nil
}

// verifiers returns the admins of groups plus the owner, sorted
func (w *Workflow) verifiers(ctx context.Context, groups []int64) []int64 {
	set := map[int64]bool{w.auth.OwnerID(): true}
	for _, g := range groups {
		for _, id := range w.auth.GroupAdmins(ctx, g) {
			set[id] = true
		}
	}
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Verify applies an admin's decision on requesterID's condition.
// prompt identifies the button message the admin clicked.
func (w *Workflow) Verify(ctx context.Context, adminID, requesterID int64, approve bool, promptChat int64, promptMessage int) error {
	if !w.auth.IsAuthorized(ctx, adminID, authz.ScopeAnyGroup) {
		w.reply(ctx, adminID, "You are not authorized to verify purge requests.")
		return nil
	}

	unlock := w.lock(requesterID)
	defer unlock()

	req, ok := w.sessions.Get(requesterID)
	if !ok || req.State != StateAwaitingVerification {
		w.editOrReply(ctx, adminID, promptChat, promptMessage,
			"This purge request is no longer valid or has been cancelled by the user.")
		return ErrNoSession
	}
	if adminID == requesterID && adminID != w.auth.OwnerID() {
		w.reply(ctx, adminID, "You cannot verify your own purge request. Another admin has to confirm it.")
		return nil
	}
	if !w.canVerify(ctx, adminID, req) {
		w.reply(ctx, adminID, "You are not an admin of any group involved in this purge request.")
		return nil
	}

	adminName := w.gw.ResolveDisplayName(ctx, adminID)
	condition := ""
	if req.CurrentCondition != nil {
		condition = html.EscapeString(req.CurrentCondition.Text)
	}

	if !approve {
		metrics.Verifications.WithLabelValues("deny").Inc()
		w.editOrReply(ctx, adminID, promptChat, promptMessage,
			fmt.Sprintf("Condition: <i>%s</i>\n\n---\n❌ Denied by %s", condition, adminName))
		w.reply(ctx, requesterID, "An admin has denied your request. You will now be given a new condition.")
		req.CurrentCondition = nil
		return w.requestVerification(ctx, req)
	}

	metrics.Verifications.WithLabelValues("approve").Inc()
	w.editOrReply(ctx, adminID, promptChat, promptMessage,
		fmt.Sprintf("Condition: <i>%s</i>\n\n---\n✅ Approved by %s", condition, adminName))
	w.reply(ctx, requesterID, "An admin has approved your request. The deletion process will now begin.")
	if err := w.finish(ctx, req, adminID, audit.KindPurge); err != nil {
		return err
	}
	if adminID != requesterID {
		w.reply(ctx, adminID, fmt.Sprintf("Purge for user %d approved and processed.", requesterID))
	}
	return nil
}

func (w *Workflow) canVerify(ctx context.Context, adminID int64, req *Request) bool {
	for _, g := range verificationGroups(req.WithCondition) {
		if w.auth.IsAuthorized(ctx, adminID, authz.ScopeGroup(g)) {
			return true
		}
	}
	return false
}

func (w *Workflow) editOrReply(ctx context.Context, adminID, chatID int64, messageID int, text string) {
	if messageID != 0 {
		if err := w.gw.EditText(ctx, chatID, messageID, text); err == nil {
			return
		}
	}
	w.reply(ctx, adminID, text)
}

// finish finalizes the verified batch, reports to the requester and ends the request
func (w *Workflow) finish(ctx context.Context, req *Request, actor int64, kind audit.Kind) error {
	defer w.sessions.Delete(req.RequesterID)

	report, err := w.Finalize(ctx, req.TargetID, req.WithCondition)
	if err != nil {
		w.reply(ctx, req.RequesterID, "Purge failed while loading risks. Please try again later.")
		return err
	}
	w.reply(ctx, req.RequesterID, report.Summary(req.TargetID))
	w.record(ctx, kind, actor, req, report)
	return nil
}

// Cancel ends a request still waiting for confirmation.
// Reports false if actor has no purge request at all.
func (w *Workflow) Cancel(ctx context.Context, actor int64) bool {
	unlock := w.lock(actor)
	defer unlock()

	req, ok := w.sessions.Get(actor)
	if !ok {
		return false
	}
	if req.State == StateAwaitingVerification {
		w.reply(ctx, actor, "Your purge request is already with the admins and can no longer be cancelled.")
		return true
	}
	w.sessions.Delete(actor)
	w.editPrompt(ctx, req, "Operation cancelled. No risks have been deleted.")
	w.reply(ctx, actor, "Purge cancelled.")
	return true
}

// Finalize purges the records of batch owned by ownerID. Records are
// reloaded first; ones already purged are skipped. A failed delete is
// counted and never stops the batch. The owner's records are written
// back once.
func (w *Workflow) Finalize(ctx context.Context, ownerID int64, batch []models.Risk) (Report, error) {
	var report Report
	if len(batch) == 0 {
		return report, nil
	}

	want := make(map[string]bool, len(batch))
	for _, r := range batch {
		want[r.ID] = true
	}

	risks, err := w.store.UserRisks(ctx, ownerID)
	if err != nil {
		return report, fmt.Errorf("failed to reload risks of %d: %w", ownerID, err)
	}

	for i := range risks {
		r := &risks[i]
		if !want[r.ID] || r.Purged {
			continue
		}
		if r.PostedMessageID != nil {
			report.Attempted++
			if w.gw.DeleteMessage(ctx, r.GroupID, *r.PostedMessageID) {
				report.Deleted++
			} else {
				report.Failed++
			}
		}
		r.MarkPurged()
		report.Purged++
	}

	if report.Purged > 0 {
		if err := w.store.PutUserRisks(ctx, ownerID, risks); err != nil {
			w.logger.Error("Failed to save purged risks",
				zap.Int64("user_id", ownerID),
				zap.Int("purged", report.Purged),
				zap.Error(err),
			)
		}
	}

	metrics.ObserveFinalize(report.Purged, report.Deleted, report.Failed)
	w.logger.Info("Purge finalized",
		zap.Int64("user_id", ownerID),
		zap.Int("purged", report.Purged),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (w *Workflow) record(ctx context.Context, kind audit.Kind, actor int64, req *Request, report Report) {
	event := audit.Event{
		Time:     time.Now(),
		Kind:     kind,
		ActorID:  actor,
		TargetID: req.TargetID,
		Purged:   report.Purged,
		Deleted:  report.Deleted,
		Failed:   report.Failed,
	}
	if len(req.SkippedGroups) > 0 {
		event.Detail = "skipped: " + strings.Join(req.SkippedGroups, ", ")
	}
	if err := w.journal.Record(ctx, event); err != nil {
		w.logger.Warn("Failed to record purge event", zap.Error(err))
	}
}
