package redisx

import "time"

const (
	// Cart snapshot cache: cart:user:{user_id} / cart:sess:{session_id} -> cart JSON
	KeyCartUser    = "cart:user:%s"
	KeyCartSession = "cart:sess:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLCartCache = 5 * time.Minute
	TTLDedup     = 48 * time.Hour
)
