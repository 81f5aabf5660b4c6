package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/store"
)

// DefaultClaimTTL bounds how long a crashed worker can hold a submission
const DefaultClaimTTL = 2 * time.Minute

// ErrClaimNotHeld is returned when releasing a claim that expired or was taken over
var ErrClaimNotHeld = errors.New("claim not held")

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Claimer hands out claims as SET NX keys carrying a random owner token
type Claimer struct {
	client *Client
	ttl    time.Duration
}

func NewClaimer(client *Client, ttl time.Duration) *Claimer {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &Claimer{client: client, ttl: ttl}
}

func (c *Claimer) Claim(ctx context.Context, submissionID string) (store.Claim, error) {
	key := c.client.key("claim", submissionID)
	token := uuid.NewString()

	ok, err := c.client.rdb.SetNX(ctx, key, token, c.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrClaimNotAcquired
	}

	c.client.logger.WithContext(ctx).Debugf("Acquired claim: %s", submissionID)
	return &claim{client: c.client, key: key, token: token}, nil
}

type claim struct {
	client *Client
	key    string
	token  string
}

func (cl *claim) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, cl.client.rdb, []string{cl.key}, cl.token).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrClaimNotHeld
	}
	return nil
}
