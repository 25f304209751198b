// Package crack implements the crack submission service (C2): recording
// a cracked hash against the submitting task, propagating the crack to
// identical hashes in sibling HashLists of the same Project, and marking
// other non-terminal tasks on the same HashList stale.
package crack

import (
	"strconv"
	"time"

	"github.com/cipherswarm/cipherswarmd/pkg/errs"
	"github.com/cipherswarm/cipherswarmd/pkg/events"
	"github.com/cipherswarm/cipherswarmd/pkg/log"
	"github.com/cipherswarm/cipherswarmd/pkg/metrics"
	"github.com/cipherswarm/cipherswarmd/pkg/statelog"
	"github.com/cipherswarm/cipherswarmd/pkg/storage"
	"github.com/cipherswarm/cipherswarmd/pkg/types"
)

// Result is the outcome of a crack submission.
type Result struct {
	Success        bool
	NotFound       bool
	UncrackedCount int
}

// Service implements submit(task, hash_value, plain_text, timestamp).
type Service struct {
	store storage.Store
	slog  *statelog.Logger
}

func NewService(store storage.Store, broker *events.Broker) *Service {
	return &Service{store: store, slog: statelog.NewLogger(broker)}
}

// Submit runs the C2 algorithm. Each store call below commits in its own
// transaction; the mutations are not committed as one unit, so a failure
// partway through leaves the writes already made in place.
func (s *Service) Submit(task *types.Task, hashValue, plainText string, ts time.Time) (Result, error) {
	attack, err := s.store.GetAttack(task.AttackID)
	if err != nil {
		return Result{}, err
	}

	hashList, err := s.findHashListForTask(task, attack)
	if err != nil {
		return Result{}, err
	}

	item, err := s.findItemByValue(hashList.ID, hashValue)
	if err != nil {
		return Result{NotFound: true}, nil
	}

	if item.Cracked {
		uncracked, cerr := s.store.CountUncracked(hashList.ID)
		if cerr != nil {
			return Result{}, cerr
		}
		return Result{Success: true, UncrackedCount: uncracked}, nil
	}

	logger := log.WithAttackID(attack.ID)

	if err := s.applyCrack(item, attack.ID, plainText, ts); err != nil {
		return Result{}, err
	}

	propagated, err := s.propagate(hashList, hashValue, attack.ID, plainText, ts)
	if err != nil {
		return Result{}, err
	}
	if propagated > 0 {
		metrics.CracksPropagated.Add(float64(propagated))
	}

	if err := s.markSiblingsStale(hashList.ID, task.ID); err != nil {
		return Result{}, err
	}

	uncracked, err := s.store.CountUncracked(hashList.ID)
	if err != nil {
		return Result{}, err
	}

	metrics.CracksSubmitted.Inc()
	logger.Info().Str("hash_item_id", item.ID).Msg("hash cracked")
	s.slog.Log(statelog.Record{
		Event:    events.EventCrackFound,
		TaskID:   task.ID,
		AttackID: attack.ID,
		From:     "uncracked",
		To:       "cracked",
		Context:  map[string]string{"propagated": strconv.Itoa(propagated)},
	})

	return Result{Success: true, UncrackedCount: uncracked}, nil
}

func (s *Service) findHashListForTask(task *types.Task, attack *types.Attack) (*types.HashList, error) {
	campaign, err := s.campaignForAttack(attack)
	if err != nil {
		return nil, err
	}
	return s.store.GetHashList(campaign.HashListID)
}

func (s *Service) campaignForAttack(attack *types.Attack) (*types.Campaign, error) {
	return s.storeGetCampaign(attack.CampaignID)
}

// storeGetCampaign looks up a campaign through the Store.
func (s *Service) storeGetCampaign(id string) (*types.Campaign, error) {
	return s.store.GetCampaign(id)
}

func (s *Service) findItemByValue(hashListID, hashValue string) (*types.HashItem, error) {
	items, err := s.store.ListHashItemsByHashList(hashListID)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.HashValue == hashValue {
			return it, nil
		}
	}
	return nil, errs.NotFound("hash_item")
}

func (s *Service) applyCrack(item *types.HashItem, attackID, plainText string, ts time.Time) error {
	item.Cracked = true
	item.PlainText = &plainText
	item.CrackedTime = &ts
	item.CrackedByID = &attackID
	return s.store.UpdateHashItem(item)
}

// propagate mirrors the crack onto every HashItem in the same Project
// sharing hashValue and HashType, per the open question noted in the
// design: salt matching is not enforced here, matching the behavior
// carried over unresolved from the source.
func (s *Service) propagate(hashList *types.HashList, hashValue, attackID, plainText string, ts time.Time) (int, error) {
	siblings, err := s.store.ListHashItemsByValue(hashList.ProjectID, hashList.HashType, hashValue)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, sib := range siblings {
		if sib.HashListID == hashList.ID {
			continue
		}
		if sib.Cracked {
			continue
		}
		if err := s.applyCrack(sib, attackID, plainText, ts); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// markSiblingsStale sets stale=true on every other non-terminal Task
// bound to hashListID's Attacks, leaving the submitting task unaffected.
func (s *Service) markSiblingsStale(hashListID, submittingTaskID string) error {
	attacks, err := s.attacksForHashList(hashListID)
	if err != nil {
		return err
	}

	for _, attack := range attacks {
		tasks, err := s.store.ListTasksByAttack(attack.ID)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if t.ID == submittingTaskID {
				continue
			}
			if t.State.Terminal() {
				continue
			}
			if t.Stale {
				continue
			}
			t.Stale = true
			if err := s.store.UpdateTask(t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) attacksForHashList(hashListID string) ([]*types.Attack, error) {
	hashList, err := s.store.GetHashList(hashListID)
	if err != nil {
		return nil, err
	}
	campaigns, err := s.store.ListCampaignsByProject(hashList.ProjectID)
	if err != nil {
		return nil, err
	}

	var out []*types.Attack
	for _, c := range campaigns {
		if c.HashListID != hashListID {
			continue
		}
		attacks, err := s.store.ListAttacksByCampaign(c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, attacks...)
	}
	return out, nil
}
