package intentstore

import "github.com/redis/go-redis/v9"

// Script results shared by the conditional transition scripts
const (
	transitionApplied = 1
	transitionNoop    = 0
	transitionMissing = -1
	transitionRefused = -2
)

// markVerifyingScript moves a PENDING intent to VERIFYING.
// KEYS[1] intent hash.
var markVerifyingScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status == false then
	return -1
end
if status == 'VERIFYING' then
	return 0
end
if status ~= 'PENDING' then
	return -2
end
redis.call('HSET', KEYS[1], 'status', 'VERIFYING')
return 1
`)

// settleScript applies a terminal transition in one step: it updates the
// record, scores the unique key into the settled index and removes it from
// the active set and its base index. Re-settling with the same terminal
// status is a no-op so the settled index never gains duplicate entries.
// KEYS[1] intent hash, KEYS[2] active set, KEYS[3] settled index,
// KEYS[4] base index.
// ARGV[1] unique key, ARGV[2] terminal status, ARGV[3] tx hash,
// ARGV[4] reason, ARGV[5] settlement time (unix ms).
var settleScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status == false then
	return -1
end
if status == ARGV[2] then
	return 0
end
if status ~= 'PENDING' and status ~= 'VERIFYING' then
	return -2
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'txHash', ARGV[3], 'reason', ARGV[4])
redis.call('ZADD', KEYS[3], ARGV[5], ARGV[1])
redis.call('SREM', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
return 1
`)
