package badgerdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/dgraph-io/badger"
	"go.uber.org/zap"

	"riskbot/internal/models"
	"riskbot/internal/storage"
)

// Key prefixes, each followed by a decimal user or group id
const (
	riskPrefix     = "risk/"
	condPrefix     = "cond/"
	disabledPrefix = "disabled/"
	groupPrefix    = "group/"
)

// Store implements storage.Storage over an embedded badger database.
// Every value is the JSON encoding of the slice or struct kept under one id.
type Store struct {
	dir    string
	db     *badger.DB
	logger *zap.Logger
}

var _ storage.Storage = (*Store)(nil)

// NewStore creates a badger store rooted at dir. The database is opened by Initialize.
func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// Initialize opens the database
func (s *Store) Initialize(ctx context.Context) error {
	opts := badger.DefaultOptions(s.dir).WithLogger(zapLogger{s.logger.Sugar()})
	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger at %s: %w", s.dir, err)
	}
	s.db = db
	s.logger.Info("Badger store opened", zap.String("dir", s.dir))
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func key(prefix string, id int64) []byte {
	return []byte(prefix + strconv.FormatInt(id, 10))
}

// get decodes the value at k into out. Reports false if the key is absent.
func get(txn *badger.Txn, k []byte, out any) (bool, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
	return err == nil, err
}

func put(txn *badger.Txn, k []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(k, raw)
}

// scan calls fn for every key under prefix with the parsed id and raw value
func scan(txn *badger.Txn, prefix string, fn func(id int64, val []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		id, err := strconv.ParseInt(string(bytes.TrimPrefix(item.KeyCopy(nil), p)), 10, 64)
		if err != nil {
			continue
		}
		if err := item.Value(func(val []byte) error { return fn(id, val) }); err != nil {
			return err
		}
	}
	return nil
}

// ListRisks returns every stored risk grouped by owning user
func (s *Store) ListRisks(ctx context.Context) (map[int64][]models.Risk, error) {
	out := make(map[int64][]models.Risk)
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, riskPrefix, func(id int64, val []byte) error {
			var risks []models.Risk
			if err := json.Unmarshal(val, &risks); err != nil {
				s.logger.Error("Skipping undecodable risk entry", zap.Int64("user_id", id), zap.Error(err))
				return nil
			}
			out[id] = risks
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list risks: %w", err)
	}
	return out, nil
}

// UserRisks returns one user's risks
func (s *Store) UserRisks(ctx context.Context, userID int64) ([]models.Risk, error) {
	risks := []models.Risk{}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := get(txn, key(riskPrefix, userID), &risks)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load risks for user %d: %w", userID, err)
	}
	return risks, nil
}

// PutUserRisks replaces one user's risks
func (s *Store) PutUserRisks(ctx context.Context, userID int64, risks []models.Risk) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if len(risks) == 0 {
			return txn.Delete(key(riskPrefix, userID))
		}
		return put(txn, key(riskPrefix, userID), risks)
	})
	if err != nil {
		return fmt.Errorf("failed to save risks for user %d: %w", userID, err)
	}
	return nil
}

// AddRisk appends a risk to its owner's list
func (s *Store) AddRisk(ctx context.Context, risk models.Risk) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		k := key(riskPrefix, risk.UserID)
		var risks []models.Risk
		if _, err := get(txn, k, &risks); err != nil {
			return err
		}
		return put(txn, k, append(risks, risk))
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
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, condPrefix, func(id int64, val []byte) error {
			var conds []models.Condition
			if err := json.Unmarshal(val, &conds); err != nil {
				s.logger.Error("Skipping undecodable condition entry", zap.Int64("group_id", id), zap.Error(err))
				return nil
			}
			out[id] = conds
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list conditions: %w", err)
	}
	return out, nil
}

// GroupConditions returns one group's conditions
func (s *Store) GroupConditions(ctx context.Context, groupID int64) ([]models.Condition, error) {
	var conds []models.Condition
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := get(txn, key(condPrefix, groupID), &conds)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load conditions for group %d: %w", groupID, err)
	}
	return conds, nil
}

// AddCondition appends a condition with a fresh short id
func (s *Store) AddCondition(ctx context.Context, groupID int64, text string) (models.Condition, error) {
	var cond models.Condition
	err := s.db.Update(func(txn *badger.Txn) error {
		k := key(condPrefix, groupID)
		var conds []models.Condition
		if _, err := get(txn, k, &conds); err != nil {
			return err
		}
		cond = models.Condition{ID: storage.NewConditionID(conds), Text: text}
		return put(txn, k, append(conds, cond))
	})
	if err != nil {
		return models.Condition{}, fmt.Errorf("failed to add condition: %w", err)
	}
	return cond, nil
}

// RemoveCondition deletes a condition by id, dropping the key once empty
func (s *Store) RemoveCondition(ctx context.Context, groupID int64, conditionID string) (bool, error) {
	removed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		k := key(condPrefix, groupID)
		var conds []models.Condition
		if _, err := get(txn, k, &conds); err != nil {
			return err
		}
		kept := conds[:0]
		for _, c := range conds {
			if c.ID == conditionID {
				removed = true
				continue
			}
			kept = append(kept, c)
		}
		switch {
		case !removed:
			return nil
		case len(kept) == 0:
			return txn.Delete(k)
		default:
			return put(txn, k, kept)
		}
	})
	if err != nil {
		return false, fmt.Errorf("failed to remove condition: %w", err)
	}
	return removed, nil
}

// DisabledCommands returns a group's disabled commands
func (s *Store) DisabledCommands(ctx context.Context, groupID int64) ([]string, error) {
	var cmds []string
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := get(txn, key(disabledPrefix, groupID), &cmds)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load disabled commands: %w", err)
	}
	return cmds, nil
}

// DisableCommand adds a command to a group's disabled list
func (s *Store) DisableCommand(ctx context.Context, groupID int64, command string) (bool, error) {
	changed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		k := key(disabledPrefix, groupID)
		var cmds []string
		if _, err := get(txn, k, &cmds); err != nil {
			return err
		}
		for _, c := range cmds {
			if c == command {
				return nil
			}
		}
		changed = true
		return put(txn, k, append(cmds, command))
	})
	if err != nil {
		return false, fmt.Errorf("failed to disable command: %w", err)
	}
	return changed, nil
}

// EnableCommand removes a command from a group's disabled list
func (s *Store) EnableCommand(ctx context.Context, groupID int64, command string) (bool, error) {
	changed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		k := key(disabledPrefix, groupID)
		var cmds []string
		if _, err := get(txn, k, &cmds); err != nil {
			return err
		}
		kept := cmds[:0]
		for _, c := range cmds {
			if c == command {
				changed = true
				continue
			}
			kept = append(kept, c)
		}
		switch {
		case !changed:
			return nil
		case len(kept) == 0:
			return txn.Delete(k)
		default:
			return put(txn, k, kept)
		}
	})
	if err != nil {
		return false, fmt.Errorf("failed to enable command: %w", err)
	}
	return changed, nil
}

// RegisterGroup records a group, skipping the write if nothing changed
func (s *Store) RegisterGroup(ctx context.Context, group models.Group) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		k := key(groupPrefix, group.ID)
		var existing models.Group
		found, err := get(txn, k, &existing)
		if err != nil {
			return err
		}
		if found && existing == group {
			return nil
		}
		return put(txn, k, group)
	})
	if err != nil {
		return fmt.Errorf("failed to register group: %w", err)
	}
	return nil
}

// ListGroups returns known groups sorted by id
func (s *Store) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, groupPrefix, func(id int64, val []byte) error {
			var g models.Group
			if err := json.Unmarshal(val, &g); err != nil {
				s.logger.Error("Skipping undecodable group entry", zap.Int64("group_id", id), zap.Error(err))
				return nil
			}
			groups = append(groups, g)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}
