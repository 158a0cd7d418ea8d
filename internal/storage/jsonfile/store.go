package jsonfile

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"riskbot/internal/models"
	"riskbot/internal/storage"
)

// Document file names inside the data directory
const (
	RiskFile      = "risk_data.json"
	ConditionFile = "conditions.json"
	DisabledFile  = "disabled_commands.json"
	GroupFile     = "groups.json"
)

// Store keeps each collection in its own JSON document
type Store struct {
	dir        string
	risks      *document[[]models.Risk]
	conditions *document[[]models.Condition]
	disabled   *document[[]string]
	groups     *document[models.Group]
}

var _ storage.Storage = (*Store)(nil)

// NewStore creates a JSON file store rooted at dir
func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{
		dir:        dir,
		risks:      newDocument[[]models.Risk](dir, RiskFile, logger),
		conditions: newDocument[[]models.Condition](dir, ConditionFile, logger),
		disabled:   newDocument[[]string](dir, DisabledFile, logger),
		groups:     newDocument[models.Group](dir, GroupFile, logger),
	}
}

// Initialize makes sure the data directory exists
func (s *Store) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Close does nothing, every write is already on disk
func (s *Store) Close() error {
	return nil
}

func key(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ListRisks returns every stored risk grouped by owning user
func (s *Store) ListRisks(ctx context.Context) (map[int64][]models.Risk, error) {
	out := make(map[int64][]models.Risk)
	err := s.risks.view(func(data map[string][]models.Risk) {
		for k, risks := range data {
			id, err := strconv.ParseInt(k, 10, 64)
			if err != nil {
				continue
			}
			out[id] = risks
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list risks: %w", err)
	}
	return out, nil
}

// UserRisks returns one user's risks
func (s *Store) UserRisks(ctx context.Context, userID int64) ([]models.Risk, error) {
	risks := []models.Risk{}
	err := s.risks.view(func(data map[string][]models.Risk) {
		if r, ok := data[key(userID)]; ok {
			risks = r
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load risks for user %d: %w", userID, err)
	}
	return risks, nil
}

// PutUserRisks replaces one user's risks
func (s *Store) PutUserRisks(ctx context.Context, userID int64, risks []models.Risk) error {
	err := s.risks.update(func(data map[string][]models.Risk) (bool, error) {
		if len(risks) == 0 {
			delete(data, key(userID))
		} else {
			data[key(userID)] = risks
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to save risks for user %d: %w", userID, err)
	}
	return nil
}

// AddRisk appends a risk to its owner's list
func (s *Store) AddRisk(ctx context.Context, risk models.Risk) error {
	err := s.risks.update(func(data map[string][]models.Risk) (bool, error) {
		k := key(risk.UserID)
		data[k] = append(data[k], risk)
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to add risk: %w", err)
	}
	return nil
}

// FindUserByUsername scans stored risks for a username
func (s *Store) FindUserByUsername(ctx context.Context, username string) (int64, error) {
	all, err := s.ListRisks(ctx)
	if err != nil {
		return 0, err
	}
	return storage.FindUsername(all, username)
}

// ListConditions returns all conditions grouped by group id
func (s *Store) ListConditions(ctx context.Context) (map[int64][]models.Condition, error) {
	out := make(map[int64][]models.Condition)
	err := s.conditions.view(func(data map[string][]models.Condition) {
		for k, conds := range data {
			id, err := strconv.ParseInt(k, 10, 64)
			if err != nil {
				continue
			}
			out[id] = conds
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}
	return out, nil
}

// GroupConditions returns one group's conditions
func (s *Store) GroupConditions(ctx context.Context, groupID int64) ([]models.Condition, error) {
	var conds []models.Condition
	err := s.conditions.view(func(data map[string][]models.Condition) {
		conds = data[key(groupID)]
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load conditions for group %d: %w", groupID, err)
	}
	return conds, nil
}

// AddCondition appends a condition with a fresh short id
func (s *Store) AddCondition(ctx context.Context, groupID int64, text string) (models.Condition, error) {
	var cond models.Condition
	err := s.conditions.update(func(data map[string][]models.Condition) (bool, error) {
		k := key(groupID)
		cond = models.Condition{ID: storage.NewConditionID(data[k]), Text: text}
		data[k] = append(data[k], cond)
		return true, nil
	})
	if err != nil {
		return models.Condition{}, fmt.Errorf("failed to add condition: %w", err)
	}
	return cond, nil
}

// RemoveCondition deletes a condition by id
func (s *Store) RemoveCondition(ctx context.Context, groupID int64, conditionID string) (bool, error) {
	removed := false
	err := s.conditions.update(func(data map[string][]models.Condition) (bool, error) {
		k := key(groupID)
		var kept []models.Condition
		for _, c := range data[k] {
			if c.ID == conditionID {
				removed = true
				continue
			}
			kept = append(kept, c)
		}
		if !removed {
			return false, nil
		}
		if len(kept) == 0 {
			delete(data, k)
		} else {
			data[k] = kept
		}
		return true, nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to remove condition: %w", err)
	}
	return removed, nil
}

// DisabledCommands returns a group's disabled commands
func (s *Store) DisabledCommands(ctx context.Context, groupID int64) ([]string, error) {
	var cmds []string
	err := s.disabled.view(func(data map[string][]string) {
		cmds = data[key(groupID)]
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load disabled commands: %w", err)
	}
	return cmds, nil
}

// DisableCommand adds a command to a group's disabled list
func (s *Store) DisableCommand(ctx context.Context, groupID int64, command string) (bool, error) {
	changed := false
	err := s.disabled.update(func(data map[string][]string) (bool, error) {
		k := key(groupID)
		for _, c := range data[k] {
			if c == command {
				return false, nil
			}
		}
		data[k] = append(data[k], command)
		changed = true
		return true, nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to disable command: %w", err)
	}
	return changed, nil
}

// EnableCommand removes a command from a group's disabled list
func (s *Store) EnableCommand(ctx context.Context, groupID int64, command string) (bool, error) {
	changed := false
	err := s.disabled.update(func(data map[string][]string) (bool, error) {
		k := key(groupID)
		var kept []string
		for _, c := range data[k] {
			if c == command {
				changed = true
				continue
			}
			kept = append(kept, c)
		}
		if !changed {
			return false, nil
		}
		if len(kept) == 0 {
			delete(data, k)
		} else {
			data[k] = kept
		}
		return true, nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to enable command: %w", err)
	}
	return changed, nil
}

// RegisterGroup records a group, skipping the write if nothing changed
func (s *Store) RegisterGroup(ctx context.Context, group models.Group) error {
	err := s.groups.update(func(data map[string]models.Group) (bool, error) {
		k := key(group.ID)
		if existing, ok := data[k]; ok && existing == group {
			return false, nil
		}
		data[k] = group
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to register group: %w", err)
	}
	return nil
}

// ListGroups returns known groups sorted by id
func (s *Store) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := s.groups.view(func(data map[string]models.Group) {
		for _, g := range data {
			groups = append(groups, g)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}
