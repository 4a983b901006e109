package token

import (
	"net/http"

	"github.com/sing3demons/weather/kp/pkg/kp"
	"github.com/sing3demons/weather/kp/pkg/logAction"
)

// RotationEvent announces that the signing credential changed at its source.
// All fields are informational; the reaction is the same either way.
type RotationEvent struct {
	KeyID       string `json:"keyId,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	RotatedAt   string `json:"rotatedAt,omitempty"`
}

// RotationHandler reacts to credential rotation events: the memoized signing
// key and the cached token are dropped so the next mint reloads from the
// source. A malformed payload still rotates; serving a stale key would be the
// worse failure.
func RotationHandler(loader *KeyLoader, cache *Cache) kp.MyHandler {
	return func(c *kp.Ctx) {
		log := c.L("credential-rotation")

		var ev RotationEvent
		if err := c.Bind(&ev); err != nil {
			log.Warn(logAction.CONSUME("credential-rotation"), map[string]any{
				"error": err.Error(),
			})
		}

		loader.Reset()
		cache.Invalidate()

		log.AddSuccess("rotation", "200", "signing key and cached token dropped").
			Info(logAction.CONSUME("credential-rotation"), map[string]any{
				"keyId":       ev.KeyID,
				"fingerprint": ev.Fingerprint,
			})
		log.Flush(http.StatusOK, "rotated")
	}
}
