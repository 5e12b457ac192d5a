package redisx

import "time"

const (
	// Payment idempotency: idem:payment:{idempotency_key} -> payment_id
	KeyIdemPayment = "idem:payment:%s"

	// Cached quote status: quote_status:{quote_id} -> {"status": "...", "order_number": "...", "version": n}
	KeyQuoteStatus = "quote_status:%s"

	// Dedup event processing: dedup:{scope}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Job lock so only one worker runs a cron job per tick: lock:{job}
	KeyLock = "lock:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
