package stubs

import (
	"context"
	"sort"
	"strings"
	"sync"

	"riskbot/internal/models"
	"riskbot/internal/storage"
)

// MockDB is an in-memory implementation of the Storage interface for testing
type MockDB struct {
	mu         sync.RWMutex
	risks      map[int64][]models.Risk
	conditions map[int64][]models.Condition
	disabled   map[int64][]string
	groups     map[int64]models.Group

	// Writes counts calls that mutated risk data. Tests use it to assert
	// that read-only paths never write.
	Writes int
}

var _ storage.Storage = (*MockDB)(nil)

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		risks:      make(map[int64][]models.Risk),
		conditions: make(map[int64][]models.Condition),
		disabled:   make(map[int64][]string),
		groups:     make(map[int64]models.Group),
	}
}

// Initialize does nothing for mock DB
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// ListRisks returns a copy of all risks
func (m *MockDB) ListRisks(ctx context.Context) (map[int64][]models.Risk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int64][]models.Risk, len(m.risks))
	for userID, risks := range m.risks {
		out[userID] = cloneRisks(risks)
	}
	return out, nil
}

// UserRisks returns a copy of one user's risks
func (m *MockDB) UserRisks(ctx context.Context, userID int64) ([]models.Risk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return cloneRisks(m.risks[userID]), nil
}

// PutUserRisks replaces a user's risks
func (m *MockDB) PutUserRisks(ctx context.Context, userID int64, risks []models.Risk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Writes++
	if len(risks) == 0 {
		delete(m.risks, userID)
		return nil
	}
	m.risks[userID] = cloneRisks(risks)
	return nil
}

// AddRisk appends a risk to its owner's list
func (m *MockDB) AddRisk(ctx context.Context, risk models.Risk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Writes++
	m.risks[risk.UserID] = append(m.risks[risk.UserID], risk)
	return nil
}

// FindUserByUsername scans stored risks for a username
func (m *MockDB) FindUserByUsername(ctx context.Context, username string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Sort user ids so lookups are deterministic
	ids := make([]int64, 0, len(m.risks))
	for id := range m.risks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		for _, r := range m.risks[id] {
			if strings.EqualFold(r.Username, username) {
				return id, nil
			}
		}
	}
	return 0, storage.ErrNotFound
}

// ListConditions returns a copy of all conditions
func (m *MockDB) ListConditions(ctx context.Context) (map[int64][]models.Condition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int64][]models.Condition, len(m.conditions))
	for groupID, conds := range m.conditions {
		out[groupID] = append([]models.Condition(nil), conds...)
	}
	return out, nil
}

// GroupConditions returns the conditions of a group
func (m *MockDB) GroupConditions(ctx context.Context, groupID int64) ([]models.Condition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]models.Condition(nil), m.conditions[groupID]...), nil
}

// AddCondition appends a condition with a fresh id
func (m *MockDB) AddCondition(ctx context.Context, groupID int64, text string) (models.Condition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cond := models.Condition{ID: storage.NewConditionID(m.conditions[groupID]), Text: text}
	m.conditions[groupID] = append(m.conditions[groupID], cond)
	return cond, nil
}

// RemoveCondition deletes a condition by id
func (m *MockDB) RemoveCondition(ctx context.Context, groupID int64, conditionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conds := m.conditions[groupID]
	kept := conds[:0:0]
	for _, c := range conds {
		if c.ID != conditionID {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(conds) {
		return false, nil
	}
	if len(kept) == 0 {
		delete(m.conditions, groupID)
	} else {
		m.conditions[groupID] = kept
	}
	return true, nil
}

// DisabledCommands returns the disabled commands of a group
func (m *MockDB) DisabledCommands(ctx context.Context, groupID int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string(nil), m.disabled[groupID]...), nil
}

// DisableCommand adds a command to the group's disabled list
func (m *MockDB) DisableCommand(ctx context.Context, groupID int64, command string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.disabled[groupID] {
		if c == command {
			return false, nil
		}
	}
	m.disabled[groupID] = append(m.disabled[groupID], command)
	return true, nil
}

// EnableCommand removes a command from the group's disabled list
func (m *MockDB) EnableCommand(ctx context.Context, groupID int64, command string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmds := m.disabled[groupID]
	for i, c := range cmds {
		if c == command {
			cmds = append(cmds[:i:i], cmds[i+1:]...)
			if len(cmds) == 0 {
				delete(m.disabled, groupID)
			} else {
				m.disabled[groupID] = cmds
			}
			return true, nil
		}
	}
	return false, nil
}

// RegisterGroup records or renames a known group
func (m *MockDB) RegisterGroup(ctx context.Context, group models.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.groups[group.ID] = group
	return nil
}

// ListGroups returns known groups sorted by id
func (m *MockDB) ListGroups(ctx context.Context) ([]models.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make([]models.Group, 0, len(m.groups))
	for _, g := range m.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}

func cloneRisks(risks []models.Risk) []models.Risk {
	if risks == nil {
		return []models.Risk{}
	}
	out := make([]models.Risk, len(risks))
	for i, r := range risks {
		if r.PostedMessageID != nil {
			id := *r.PostedMessageID
			r.PostedMessageID = &id
		}
		out[i] = r
	}
	return out
}
