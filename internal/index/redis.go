// Package index maintains an optional Redis side index of enriched leads and
// caches gathered web context. The lead store stays the source of truth;
// nothing here is read back to decide whether a lead is new.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/config"
	"github.com/sells-group/lead-enricher/internal/model"
)

const dialTimeout = 5 * time.Second

// UnavailableError reports that the index is configured but cannot be used.
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("index: unavailable: %s", e.Reason)
}

// Index writes lead summaries into Redis.
//
// Layout, with prefix p:
//
//	p + "lead:" + profile_url      hash of the record's display fields
//	p + "leads"                    sorted set of profile URLs by created_at
//	p + "company:" + lower(company) set of profile URLs
type Index struct {
	rdb    redis.UniversalClient
	prefix string
}

// Open connects to Redis. A disabled config returns a nil Index and no error;
// an unreachable server returns *UnavailableError.
func Open(ctx context.Context, cfg config.RedisConfig) (*Index, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, &UnavailableError{Reason: "redis.addr is empty"}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, &UnavailableError{Reason: err.Error()}
	}

	zap.L().Info("index: connected", zap.String("addr", cfg.Addr), zap.String("prefix", cfg.Prefix))
	return New(rdb, cfg.Prefix), nil
}

// New wraps an existing client.
func New(rdb redis.UniversalClient, prefix string) *Index {
	return &Index{rdb: rdb, prefix: prefix}
}

func (x *Index) leadKey(profileURL string) string { return x.prefix + "lead:" + profileURL }
func (x *Index) leadsKey() string                  { return x.prefix + "leads" }
func (x *Index) companyKey(company string) string {
	return x.prefix + "company:" + strings.ToLower(strings.TrimSpace(company))
}

// Index records rec in a single MULTI/EXEC so readers never see a hash
// without its sorted-set entry.
func (x *Index) Index(ctx context.Context, rec *model.LeadRecord) error {
	if rec == nil {
		return eris.New("index: nil record")
	}
	url := rec.Lead.ProfileURL

	_, err := x.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, x.leadKey(url), map[string]any{
			"id":                   rec.ID,
			"profile_url":          url,
			"name":                 rec.Lead.FullName(),
			"title":                rec.Lead.Title,
			"company":              rec.Lead.Company,
			"summary":              rec.EnrichedData.StructuredSummary,
			"personalized_message": rec.PersonalizedMessage,
			"created_at":           rec.CreatedAt.UTC().Format(time.RFC3339),
		})
		pipe.ZAdd(ctx, x.leadsKey(), redis.Z{Score: float64(rec.CreatedAt.Unix()), Member: url})
		if strings.TrimSpace(rec.Lead.Company) != "" {
			pipe.SAdd(ctx, x.companyKey(rec.Lead.Company), url)
		}
		return nil
	})
	if err != nil {
		return eris.Wrapf(err, "index: write %s", url)
	}
	return nil
}

// Get returns a cached value. A missing key is not an error.
func (x *Index) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := x.rdb.Get(ctx, x.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "index: cache get")
	}
	return b, true, nil
}

// Set caches value under key for ttl.
func (x *Index) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := x.rdb.Set(ctx, x.prefix+key, value, ttl).Err(); err != nil {
		return eris.Wrap(err, "index: cache set")
	}
	return nil
}

// Ping checks connectivity.
func (x *Index) Ping(ctx context.Context) error {
	return x.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (x *Index) Close() error {
	return x.rdb.Close()
}
