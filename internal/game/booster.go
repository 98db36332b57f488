package game

import (
	"context"
	"sort"
	"time"

	"coinfall/client/logging"
	boosterlog "coinfall/client/logging/boosters"
)

// upsertBoosterLocked applies one server-confirmed booster. A new type
// activates; reactivating an existing type extends its expiry rather than
// stacking a second multiplier.
func (s *Store) upsertBoosterLocked(incoming Booster, now time.Time) {
	if incoming.Type == "" || !incoming.ExpiresAt.After(now) {
		return
	}
	for i := range s.boosters {
		if s.boosters[i].Type != incoming.Type {
			continue
		}
		extended := incoming.ExpiresAt.After(s.boosters[i].ExpiresAt)
		if extended {
			s.boosters[i].ExpiresAt = incoming.ExpiresAt
		}
		if incoming.Multiplier > 0 {
			s.boosters[i].Multiplier = incoming.Multiplier
		}
		if extended {
			boosterlog.Extended(context.Background(), s.pub, s.boosterActorLocked(incoming.Type), lifecyclePayload(s.boosters[i]), nil)
		}
		return
	}
	if incoming.ActivatedAt.IsZero() {
		incoming.ActivatedAt = now
	}
	s.boosters = append(s.boosters, incoming)
	boosterlog.Activated(context.Background(), s.pub, s.boosterActorLocked(incoming.Type), lifecyclePayload(incoming), nil)
}

// mergeServerBoostersLocked reconciles the authoritative booster list from a
// sync response. The server list wins: boosters it omits are deactivated,
// new ones activate, and later expiries extend.
func (s *Store) mergeServerBoostersLocked(server []Booster, now time.Time) {
	byType := make(map[string]Booster, len(server))
	for _, b := range server {
		if b.Type != "" {
			byType[b.Type] = b
		}
	}

	kept := s.boosters[:0]
	for _, local := range s.boosters {
		incoming, present := byType[local.Type]
		if !present {
			boosterlog.Deactivated(context.Background(), s.pub, s.boosterActorLocked(local.Type), lifecyclePayload(local), nil)
			continue
		}
		delete(byType, local.Type)
		if incoming.ExpiresAt.After(local.ExpiresAt) {
			local.ExpiresAt = incoming.ExpiresAt
			boosterlog.Extended(context.Background(), s.pub, s.boosterActorLocked(local.Type), lifecyclePayload(local), nil)
		}
		if incoming.Multiplier > 0 {
			local.Multiplier = incoming.Multiplier
		}
		if incoming.Target != "" {
			local.Target = incoming.Target
		}
		kept = append(kept, local)
	}
	s.boosters = kept

	remaining := make([]string, 0, len(byType))
	for t := range byType {
		remaining = append(remaining, t)
	}
	sort.Strings(remaining)
	for _, t := range remaining {
		s.upsertBoosterLocked(byType[t], now)
	}
}

// expireBoostersLocked removes boosters whose window has closed. Expiry is
// checked lazily on every state advance; no background timer is required.
func (s *Store) expireBoostersLocked(now time.Time) {
	if len(s.boosters) == 0 {
		return
	}
	kept := s.boosters[:0]
	for _, b := range s.boosters {
		if b.Active(now) {
			kept = append(kept, b)
			continue
		}
		boosterlog.Expired(context.Background(), s.pub, s.boosterActorLocked(b.Type), lifecyclePayload(b), nil)
	}
	s.boosters = kept
}

func (s *Store) boosterActorLocked(boosterType string) logging.EntityRef {
	return logging.EntityRef{ID: boosterType, Kind: logging.EntityKindBooster}
}

func lifecyclePayload(b Booster) boosterlog.LifecyclePayload {
	return boosterlog.LifecyclePayload{
		Type:       b.Type,
		Multiplier: b.Multiplier,
		Target:     string(b.Target),
		ExpiresAt:  b.ExpiresAt.Unix(),
	}
}
