package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"caissepro/backend/internal/store"
)

// Scopes double as the code prefix.
const (
	ScopeSale      = "VENT"
	ScopePayment   = "PAY"
	ScopeInvoice   = "FACT"
	ScopeProduct   = "PROD"
	ScopePromotion = "PROMO"
	ScopeClient    = "CLT"
)

// Scopes lists every scope in use.
var Scopes = []string{ScopeSale, ScopePayment, ScopeInvoice, ScopeProduct, ScopePromotion, ScopeClient}

const MaxAttempts = 5

var ErrExhausted = fmt.Errorf("%w: could not allocate a unique code", store.ErrConflict)

// Counter hands out monotonic values per scope.
type Counter interface {
	Next(ctx context.Context, scope string) (int64, error)
}

// CounterFunc adapts a function such as Repository.NextSequence.
type CounterFunc func(ctx context.Context, scope string) (int64, error)

func (f CounterFunc) Next(ctx context.Context, scope string) (int64, error) {
	return f(ctx, scope)
}

// Format renders prefix-NNNNNN-C where C is the Luhn digit of the counter.
func Format(prefix string, n int64) string {
	digits := fmt.Sprintf("%06d", n)
	return prefix + "-" + digits + "-" + strconv.Itoa(checkDigit(digits))
}

// Valid reports whether code carries a correct check digit for its prefix.
func Valid(prefix, code string) bool {
	rest, ok := strings.CutPrefix(code, prefix+"-")
	if !ok {
		return false
	}
	digits, check, ok := strings.Cut(rest, "-")
	if !ok || len(digits) < 6 || len(check) != 1 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return check == strconv.Itoa(checkDigit(digits))
}

func checkDigit(digits string) int {
	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

// ExistsFunc reports whether a code is already taken.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

type Generator struct {
	counter Counter
}

func NewGenerator(counter Counter) *Generator {
	return &Generator{counter: counter}
}

// Next draws counter values until one formats to a free code. A counter that
// was reset or shared with imported data can collide, so existence is still
// checked, at most MaxAttempts times.
func (g *Generator) Next(ctx context.Context, scope string, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		n, err := g.counter.Next(ctx, scope)
		if err != nil {
			return "", fmt.Errorf("next %s sequence: %w", scope, err)
		}
		code := Format(scope, n)
		if exists == nil {
			return code, nil
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrExhausted
}

// NotFoundMeansFree turns a lookup returning store.ErrNotFound into an ExistsFunc.
func NotFoundMeansFree[T any](lookup func(ctx context.Context, code string) (T, error)) ExistsFunc {
	return func(ctx context.Context, code string) (bool, error) {
		_, err := lookup(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
}

// RedisCounter keeps counters under caissepro:seq:<scope> with INCR.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func redisKey(scope string) string {
	return "caissepro:seq:" + scope
}

func (c *RedisCounter) Next(ctx context.Context, scope string) (int64, error) {
	return c.client.Incr(ctx, redisKey(scope)).Result()
}

var raiseScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if current < floor then
	redis.call('SET', KEYS[1], floor)
	return floor
end
return current
`)

// Raise moves the scope counter up to floor when it is below it, so values
// already handed out elsewhere are not drawn again. It never lowers it.
func (c *RedisCounter) Raise(ctx context.Context, scope string, floor int64) (int64, error) {
	return raiseScript.Run(ctx, c.client, []string{redisKey(scope)}, floor).Int64()
}
