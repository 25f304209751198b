package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cipherswarm/cipherswarmd/pkg/errs"
	"github.com/cipherswarm/cipherswarmd/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketProjects         = []byte("projects")
	bucketHashLists        = []byte("hash_lists")
	bucketHashItems        = []byte("hash_items")
	bucketCampaigns        = []byte("campaigns")
	bucketAttacks          = []byte("attacks")
	bucketTasks            = []byte("tasks")
	bucketAgents           = []byte("agents")
	bucketHashcatBenchmark = []byte("hashcat_benchmarks")
	bucketHashcatStatus    = []byte("hashcat_status")
	bucketAgentErrors      = []byte("agent_errors")
)

// BoltStore implements Store using a single BoltDB file, one bucket per
// entity, with JSON-marshaled values keyed by entity ID.
type BoltStore struct {
	db   *bolt.DB
	rows *RowLocks
}

// NewBoltStore opens (creating if necessary) the database file under
// dataDir and ensures every bucket exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "cipherswarmd.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketProjects, bucketHashLists, bucketHashItems,
			bucketCampaigns, bucketAttacks, bucketTasks, bucketAgents,
			bucketHashcatBenchmark, bucketHashcatStatus, bucketAgentErrors,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, rows: NewRowLocks()}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func put(tx *bolt.Tx, bucket []byte, key string, v interface{}) error {
	b := tx.Bucket(bucket)
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func get(tx *bolt.Tx, bucket []byte, key string, v interface{}) error {
	b := tx.Bucket(bucket)
	data := b.Get([]byte(key))
	if data == nil {
		return errs.NotFound(fmt.Sprintf("%s/%s", bucket, key))
	}
	return json.Unmarshal(data, v)
}

func scan(tx *bolt.Tx, bucket []byte, fn func(data []byte) error) error {
	b := tx.Bucket(bucket)
	return b.ForEach(func(_, v []byte) error {
		return fn(v)
	})
}

// Projects

func (s *BoltStore) CreateProject(p *types.Project) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketProjects, p.ID, p) })
}

func (s *BoltStore) GetProject(id string) (*types.Project, error) {
	var p types.Project
	err := s.db.View(func(tx *bolt.Tx) error { return get(tx, bucketProjects, id, &p) })
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) ListProjects() ([]*types.Project, error) {
	var out []*types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		return scan(tx, bucketProjects, func(data []byte) error {
			var p types.Project
			if err := json.Unmarshal(data, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	return out, err
}

// HashLists

func (s *BoltStore) CreateHashList(h *types.HashList) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketHashLists, h.ID, h) })
}

func (s *BoltStore) GetHashList(id string) (*types.HashList, error) {
	var h types.HashList
	err := s.db.View(func(tx *bolt.Tx) error { return get(tx, bucketHashLists, id, &h) })
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *BoltStore) ListHashListsByProject(projectID string) ([]*types.HashList, error) {
	var out []*types.HashList
	err := s.db.View(func(tx *bolt.Tx) error {
		return scan(tx, bucketHashLists, func(data []byte) error {
			var h types.HashList
			if err := json.Unmarshal(data, &h); err != nil {
				return err
			}
			if h.ProjectID == projectID {
				out = append(out, &h)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateHashList(h *types.HashList) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketHashLists, h.ID, h) })
}

// HashItems

func (s *BoltStore) CreateHashItem(h *types.HashItem) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketHashItems, h.ID, h) })
}

func (s *BoltStore) GetHashItem(id string) (*types.HashItem, error) {
	var h types.HashItem
	err := s.db.View(func(tx *bolt.Tx) error { return get(tx, bucketHashItems, id, &h) })
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *BoltStore) ListHashItemsByHashList(hashListID string) ([]*types.HashItem, error) {
	var out []*types.HashItem
	err := s.db.View(func(tx *bolt.Tx) error {
		return scan(tx, bucketHashItems, func(data []byte) error {
			var h types.HashItem
			if err := json.Unmarshal(data, &h); err != nil {
				return err
			}
			if h.HashListID == hashListID {
				out = append(out, &h)
			}
			return nil
		})
	})
	return out, err
}

// ListHashItemsByValue scans every HashList in the project and collects
// HashItems whose HashValue matches, for crack propagation (pkg/crack).
func (s *BoltStore) ListHashItemsByValue(projectID string, hashType types.HashType, hashValue string) ([]*types.HashItem, error) {
	lists, err := s.ListHashListsByProject(projectID)
	if err != nil {
		return nil, err
	}
	listIDs := make(map[string]bool, len(lists))
	for _, l := range lists {
		if l.HashType == hashType {
			listIDs[l.ID] = true
		}
	}

	var out []*types.HashItem
	err = s.db.View(func(tx *bolt.Tx) error {
		return scan(tx, bucketHashItems, func(data []byte) error {
			var h types.HashItem
			if err := json.Unmarshal(data, &h); err != nil {
				return err
			}
			if listIDs[h.HashListID] && h.HashValue == hashValue {
				out = append(out, &h)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) CountUncracked(hashListID string) (int, error) {
	items, err := s.ListHashItemsByHashList(hashListID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, it := range items {
		if !it.Cracked {
			n++
		}
	}
	return n, nil
}

func (s *BoltStore) UpdateHashItem(h *types.HashItem) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketHashItems, h.ID, h) })
}

// Campaigns

func (s *BoltStore) CreateCampaign(c *types.Campaign) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketCampaigns, c.ID, c) })
}

func (s *BoltStore) GetCampaign(id string) (*types.Campaign, error) {
	var c types.Campaign
	err := s.db.View(func(tx *bolt.Tx) error { return get(tx, bucketCampaigns, id, &c) })
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) ListCampaignsByProject(projectID string) ([]*types.Campaign, error) {
	var out []*types.Campaign
	err := s.db.View(func(tx *bolt.Tx) error {
		return scan(tx, bucketCampaigns, func(data []byte) error {
			var c types.Campaign
			if err := json.Unmarshal(data, &c); err != nil {
				return err
			}
			if c.ProjectID == projectID {
				out = append(out, &c)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateCampaign(c *types.Campaign) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketCampaigns, c.ID, c) })
}

// Attacks

func (s *BoltStore) CreateAttack(a *types.Attack) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketAttacks, a.ID, a) })
}

func (s *BoltStore) GetAttack(id string) (*types.Attack, error) {
	var a types.Attack
	err := s.db.View(func(tx *bolt.Tx) error { return get(tx, bucketAttacks, id, &a) })
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *BoltStore) ListAttacksByCampaign(campaignID string) ([]*types.Attack, error) {
	var out []*types.Attack
	err := s.db.View(func(tx *bolt.Tx) error {
		return scan(tx, bucketAttacks, func(data []byte) error {
			var a types.Attack
			if err := json.Unmarshal(data, &a); err != nil {
				return err
			}
			if a.CampaignID == campaignID {
				out = append(out, &a)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListAttacksByState(state types.AttackState) ([]*types.Attack, error) {
	var out []*types.Attack
	err := s.db.View(func(tx *bolt.Tx) error {
		return scan(tx, bucketAttacks, func(data []byte) error {
			var a types.Attack
			if err := json.Unmarshal(data, &a); err != nil {
				return err
			}
			if a.State == state {
				out = append(out, &a)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateAttack(a *types.Attack) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketAttacks, a.ID, a) })
}

// Tasks

func (s *BoltStore) CreateTask(t *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketTasks, t.ID, t) })
}

func (s *BoltStore) GetTask(id string) (*types.Task, error) {
	var t types.Task
	err := s.db.View(func(tx *bolt.Tx) error { return get(tx, bucketTasks, id, &t) })
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BoltStore) ListTasksByAttack(attackID string) ([]*types.Task, error) {
	var out []*types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return scan(tx, bucketTasks, func(data []byte) error {
			var t types.Task
			if err := json.Unmarshal(data, &t); err != nil {
				return err
			}
			if t.AttackID == attackID {
				out = append(out, &t)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListTasksByAgent(agentID string) ([]*types.Task, error) {
	var out []*types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return scan(tx, bucketTasks, func(data []byte) error {
			var t types.Task
			if err := json.Unmarshal(data, &t); err != nil {
				return err
			}
			if t.AgentID != nil && *t.AgentID == agentID {
				out = append(out, &t)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListTasksByState(state types.TaskState) ([]*types.Task, error) {
	var out []*types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		return scan(tx, bucketTasks, func(data []byte) error {
			var t types.Task
			if err := json.Unmarshal(data, &t); err != nil {
				return err
			}
			if t.State == state {
				out = append(out, &t)
			}
			return nil
		})
	})
	return out, err
}

// UpdateTask takes the task's row lock, verifies the stored Version
// against t.Version, and if it matches, persists t with Version bumped by
// one. Callers pass in the Version they originally read; a mismatch means
// another writer got there first.
func (s *BoltStore) UpdateTask(t *types.Task) error {
	unlock := s.rows.Lock(t.ID)
	defer unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		var existing types.Task
		if err := get(tx, bucketTasks, t.ID, &existing); err != nil {
			return err
		}
		if existing.Version != t.Version {
			return errs.VersionConflict("task")
		}
		t.Version = existing.Version + 1
		return put(tx, bucketTasks, t.ID, t)
	})
}

func (s *BoltStore) DeleteTask(id string) error {
	unlock := s.rows.Lock(id)
	defer unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).Delete([]byte(id))
	})
}

// Agents

func (s *BoltStore) CreateAgent(a *types.Agent) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketAgents, a.ID, a) })
}

func (s *BoltStore) GetAgent(id string) (*types.Agent, error) {
	var a types.Agent
	err := s.db.View(func(tx *bolt.Tx) error { return get(tx, bucketAgents, id, &a) })
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *BoltStore) ListAgentsByState(state types.AgentState) ([]*types.Agent, error) {
	var out []*types.Agent
	err := s.db.View(func(tx *bolt.Tx) error {
		return scan(tx, bucketAgents, func(data []byte) error {
			var a types.Agent
			if err := json.Unmarshal(data, &a); err != nil {
				return err
			}
			if a.State == state {
				out = append(out, &a)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListAgentsByProject(projectID string) ([]*types.Agent, error) {
	var out []*types.Agent
	err := s.db.View(func(tx *bolt.Tx) error {
		return scan(tx, bucketAgents, func(data []byte) error {
			var a types.Agent
			if err := json.Unmarshal(data, &a); err != nil {
				return err
			}
			if a.HasProject(projectID) {
				out = append(out, &a)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateAgent(a *types.Agent) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketAgents, a.ID, a) })
}

// HashcatBenchmarks

func benchmarkKey(agentID string, hashType types.HashType) string {
	return fmt.Sprintf("%s:%d", agentID, hashType)
}

func (s *BoltStore) CreateHashcatBenchmark(b *types.HashcatBenchmark) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx, bucketHashcatBenchmark, benchmarkKey(b.AgentID, b.HashType), b)
	})
}

func (s *BoltStore) GetHashcatBenchmark(agentID string, hashType types.HashType) (*types.HashcatBenchmark, error) {
	var b types.HashcatBenchmark
	err := s.db.View(func(tx *bolt.Tx) error {
		return get(tx, bucketHashcatBenchmark, benchmarkKey(agentID, hashType), &b)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BoltStore) ListHashcatBenchmarksByAgent(agentID string) ([]*types.HashcatBenchmark, error) {
	var out []*types.HashcatBenchmark
	err := s.db.View(func(tx *bolt.Tx) error {
		return scan(tx, bucketHashcatBenchmark, func(data []byte) error {
			var b types.HashcatBenchmark
			if err := json.Unmarshal(data, &b); err != nil {
				return err
			}
			if b.AgentID == agentID {
				out = append(out, &b)
			}
			return nil
		})
	})
	return out, err
}

// HashcatStatus

func (s *BoltStore) PutHashcatStatus(st *types.HashcatStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketHashcatStatus, st.TaskID, st) })
}

func (s *BoltStore) GetLatestHashcatStatus(taskID string) (*types.HashcatStatus, error) {
	var st types.HashcatStatus
	err := s.db.View(func(tx *bolt.Tx) error { return get(tx, bucketHashcatStatus, taskID, &st) })
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// AgentErrors

func (s *BoltStore) CreateAgentError(e *types.AgentError) error {
	return s.db.Update(func(tx *bolt.Tx) error { return put(tx, bucketAgentErrors, e.ID, e) })
}

func (s *BoltStore) ListAgentErrorsByAgent(agentID string) ([]*types.AgentError, error) {
	var out []*types.AgentError
	err := s.db.View(func(tx *bolt.Tx) error {
		return scan(tx, bucketAgentErrors, func(data []byte) error {
			var e types.AgentError
			if err := json.Unmarshal(data, &e); err != nil {
				return err
			}
			if e.AgentID == agentID {
				out = append(out, &e)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListAgentErrorsByTask(taskID string) ([]*types.AgentError, error) {
	var out []*types.AgentError
	err := s.db.View(func(tx *bolt.Tx) error {
		return scan(tx, bucketAgentErrors, func(data []byte) error {
			var e types.AgentError
			if err := json.Unmarshal(data, &e); err != nil {
				return err
			}
			if e.TaskID != nil && *e.TaskID == taskID {
				out = append(out, &e)
			}
			return nil
		})
	})
	return out, err
}
