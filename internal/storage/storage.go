package storage

import (
	"context"
	"errors"
	"sort"
	"strings"

	"riskbot/internal/models"
)

// ErrNotFound is returned when a keyed lookup has no match
var ErrNotFound = errors.New("not found")

// Storage defines the interface for data storage operations.
// Every backend keeps records keyed by user or group id; filtering beyond
// that is done by callers in memory.
type Storage interface {
	// Risk operations

	// ListRisks returns every stored risk grouped by owning user
	ListRisks(ctx context.Context) (map[int64][]models.Risk, error)
	// UserRisks returns the risks owned by a user, or an empty slice
	UserRisks(ctx context.Context, userID int64) ([]models.Risk, error)
	// PutUserRisks replaces the full risk set of a user in a single write
	PutUserRisks(ctx context.Context, userID int64, risks []models.Risk) error
	AddRisk(ctx context.Context, risk models.Risk) error
	// FindUserByUsername resolves a username (without @, case-insensitive)
	// from stored risks. Returns ErrNotFound if no risk carries it.
	FindUserByUsername(ctx context.Context, username string) (int64, error)

	// Condition operations
	ListConditions(ctx context.Context) (map[int64][]models.Condition, error)
	GroupConditions(ctx context.Context, groupID int64) ([]models.Condition, error)
	AddCondition(ctx context.Context, groupID int64, text string) (models.Condition, error)
	// RemoveCondition deletes a condition by id and drops the group entry
	// once its list is empty. Reports whether anything was removed.
	RemoveCondition(ctx context.Context, groupID int64, conditionID string) (bool, error)

	// Group settings
	DisabledCommands(ctx context.Context, groupID int64) ([]string, error)
	// DisableCommand reports false if the command was already disabled
	DisableCommand(ctx context.Context, groupID int64, command string) (bool, error)
	// EnableCommand reports false if the command was not disabled
	EnableCommand(ctx context.Context, groupID int64, command string) (bool, error)

	// Known groups
	RegisterGroup(ctx context.Context, group models.Group) error
	ListGroups(ctx context.Context) ([]models.Group, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}

// IsCommandDisabled is a helper over Storage.DisabledCommands
func IsCommandDisabled(ctx context.Context, s Storage, groupID int64, command string) (bool, error) {
	disabled, err := s.DisabledCommands(ctx, groupID)
	if err != nil {
		return false, err
	}
	for _, c := range disabled {
		if c == command {
			return true, nil
		}
	}
	return false, nil
}

// FindUsername resolves a username against a full risk listing. Users are
// scanned in ascending id order so the result is stable.
func FindUsername(all map[int64][]models.Risk, username string) (int64, error) {
	ids := make([]int64, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		for _, r := range all[id] {
			if r.Username != "" && strings.EqualFold(r.Username, username) {
				return id, nil
			}
		}
	}
	return 0, ErrNotFound
}
