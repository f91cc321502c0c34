package storage

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"time"

	"ghostchat/backend/internal/models"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const (
	// queueKey is the Redis sorted set holding the search queue.
	// Member: user id, score: unix milliseconds of joining.
	queueKey = "match_queue"
	// eventChannel is the Redis pub/sub channel for engine lifecycle events.
	eventChannel = "engine:events"
)

func pqArray(items []string) pq.StringArray {
	if items == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(items)
}

// Enqueue adds the user to the search queue. Re-enqueueing refreshes the
// join time, which resets FIFO position and wait credit.
func (s *Service) Enqueue(userID int64, at time.Time) error {
	return s.Redis.ZAdd(s.Ctx, queueKey, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: strconv.FormatInt(userID, 10),
	}).Err()
}

// Dequeue removes the user from the search queue. Removing an absent user
// is a no-op.
func (s *Service) Dequeue(userID int64) error {
	return s.Redis.ZRem(s.Ctx, queueKey, strconv.FormatInt(userID, 10)).Err()
}

func (s *Service) QueueSize() (int64, error) {
	return s.Redis.ZCard(s.Ctx, queueKey).Result()
}

// QueuePosition returns the 1-based FIFO position of the user, or 0 if the
// user is not queued.
func (s *Service) QueuePosition(userID int64) (int64, error) {
	rank, err := s.Redis.ZRank(s.Ctx, queueKey, strconv.FormatInt(userID, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rank + 1, nil
}

// QueueJoinedAt returns when the user joined the queue, or the zero time
// if the user is not queued.
func (s *Service) QueueJoinedAt(userID int64) (time.Time, error) {
	score, err := s.Redis.ZScore(s.Ctx, queueKey, strconv.FormatInt(userID, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(score)), nil
}

// Candidates returns the queue in ascending join order as typed views,
// keeping only entries whose session is still searching and not banned
// under the lazy-expiry rule. Entries whose user record has vanished are
// skipped, not failed on.
func (s *Service) Candidates(excludeUserID int64, now time.Time) ([]models.Candidate, error) {
	entries, err := s.Redis.ZRangeWithScores(s.Ctx, queueKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(entries))
	joined := make(map[int64]time.Time, len(entries))
	for _, entry := range entries {
		member, ok := entry.Member.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			log.Printf("WARNING: Dropping malformed queue member %q", member)
			continue
		}
		if id == excludeUserID {
			continue
		}
		ids = append(ids, id)
		joined[id] = time.UnixMilli(int64(entry.Score))
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var users []models.User
	if err := s.DB.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	candidates := make([]models.Candidate, 0, len(ids))
	for _, id := range ids {
		user, ok := byID[id]
		if !ok {
			continue
		}
		if user.State != models.StateSearching || user.Banned(now) {
			continue
		}
		candidates = append(candidates, models.Candidate{
			UserID:       id,
			JoinedAt:     joined[id],
			Interests:    []string(user.Interests),
			OnlyInterest: user.OnlyInterest,
			PremiumUntil: user.PremiumUntil,
		})
	}
	return candidates, nil
}

// PublishEvent pushes an engine lifecycle event onto the Redis bus for the
// ops feed. Best-effort consumers; no delivery guarantee.
func (s *Service) PublishEvent(event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.Redis.Publish(s.Ctx, eventChannel, payload).Err()
}

// SubscribeEvents subscribes to the engine event channel. The caller owns
// the returned subscription and must Close it.
func (s *Service) SubscribeEvents() *redis.PubSub {
	return s.Redis.Subscribe(s.Ctx, eventChannel)
}
