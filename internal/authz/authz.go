package authz

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"riskbot/internal/models"
)

// Scope is what an actor asks to act on
type Scope struct {
	groupID int64
	any     bool
}

// ScopeGroup requires admin rights in one group
func ScopeGroup(groupID int64) Scope {
	return Scope{groupID: groupID}
}

// ScopeAnyGroup requires admin rights in at least one known group
var ScopeAnyGroup = Scope{any: true}

// AdminLister looks up the live admin list of a group
type AdminLister interface {
	ListGroupAdmins(ctx context.Context, groupID int64) ([]int64, error)
}

// GroupLister lists the groups the bot knows about
type GroupLister interface {
	ListGroups(ctx context.Context) ([]models.Group, error)
}

// Authorizer answers permission checks. The owner passes every check;
// everyone else needs to be a group administrator.
type Authorizer struct {
	ownerID int64
	admins  AdminLister
	groups  GroupLister
	cache   *cache.Cache
	logger  *zap.Logger
}

// New creates an Authorizer caching admin lists for ttl.
// A zero ttl disables the cache and every check asks Telegram.
func New(ownerID int64, admins AdminLister, groups GroupLister, ttl time.Duration, logger *zap.Logger) *Authorizer {
	a := &Authorizer{
		ownerID: ownerID,
		admins:  admins,
		groups:  groups,
		logger:  logger.Named("authz"),
	}
	if ttl > 0 {
		a.cache = cache.New(ttl, 2*ttl)
	}
	return a
}

// IsOwner reports whether actor is the bot owner
func (a *Authorizer) IsOwner(actor int64) bool {
	return actor == a.ownerID
}

// OwnerID returns the configured owner
func (a *Authorizer) OwnerID() int64 {
	return a.ownerID
}

// IsAuthorized checks actor against scope
func (a *Authorizer) IsAuthorized(ctx context.Context, actor int64, scope Scope) bool {
	if a.IsOwner(actor) {
		return true
	}
	if !scope.any {
		return a.isGroupAdmin(ctx, actor, scope.groupID)
	}
	return len(a.AdminGroups(ctx, actor)) > 0
}

// AdminGroups returns the known groups where actor is an administrator.
// The owner gets every known group.
func (a *Authorizer) AdminGroups(ctx context.Context, actor int64) []models.Group {
	groups, err := a.groups.ListGroups(ctx)
	if err != nil {
		a.logger.Error("Failed to list groups", zap.Error(err))
		return nil
	}
	if a.IsOwner(actor) {
		return groups
	}
	var out []models.Group
	for _, g := range groups {
		if a.isGroupAdmin(ctx, actor, g.ID) {
			out = append(out, g)
		}
	}
	return out
}

// GroupAdmins returns the cached admin list of a group
func (a *Authorizer) GroupAdmins(ctx context.Context, groupID int64) []int64 {
	key := strconv.FormatInt(groupID, 10)
	if a.cache != nil {
		if cached, ok := a.cache.Get(key); ok {
			return cached.([]int64)
		}
	}
	admins, err := a.admins.ListGroupAdmins(ctx, groupID)
	if err != nil {
		a.logger.Warn("Failed to fetch group admins", zap.Int64("group_id", groupID), zap.Error(err))
		return nil
	}
	if a.cache != nil {
		a.cache.Set(key, admins, cache.DefaultExpiration)
	}
	return admins
}

// Invalidate drops a group's cached admin list
func (a *Authorizer) Invalidate(groupID int64) {
	if a.cache != nil {
		a.cache.Delete(strconv.FormatInt(groupID, 10))
	}
}

func (a *Authorizer) isGroupAdmin(ctx context.Context, actor, groupID int64) bool {
	for _, id := range a.GroupAdmins(ctx, groupID) {
		if id == actor {
			return true
		}
	}
	return false
}
