package credential

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sing3demons/weather/kp/internal/apperr"
	"github.com/sing3demons/weather/kp/internal/database"
	"github.com/sing3demons/weather/kp/pkg/logAction"
	"github.com/sing3demons/weather/kp/pkg/logger"
	"github.com/sing3demons/weather/kp/pkg/mlog"
	"github.com/sing3demons/weather/kp/pkg/query"
)

// MongoSource reads the signing credential from the weather_credentials
// collection. With a keyId it loads that exact document, otherwise the newest
// active one.
type MongoSource struct {
	col   *mongo.Collection
	keyID string
}

func NewMongoSource(col *mongo.Collection, keyID string) *MongoSource {
	return &MongoSource{col: col, keyID: keyID}
}

func (s *MongoSource) Load(ctx context.Context) (*Credential, error) {
	log := mlog.L(ctx)

	filter := bson.M{"active": true}
	if s.keyID != "" {
		filter = bson.M{"keyId": s.keyID}
	}
	rawQuery := query.Shell(Collection, query.FindOne, filter)

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency: "mongodb",
	}).Debug(logAction.DB_REQUEST(logAction.DB_READ, query.TruncateQuery(rawQuery, 256)), map[string]any{
		"collection": Collection,
		"filter":     filter,
	})

	start := time.Now()
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	var cred Credential
	err := s.col.FindOne(ctx, filter, opts).Decode(&cred)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		err = database.HandleMongoError(err)
		log.SetDependencyMetadata(logger.DependencyMetadata{
			Dependency:   "mongodb",
			ResponseTime: elapsed,
			ResultFlag:   "ERROR",
		}).Error(logAction.DB_RESPONSE(logAction.DB_READ, "find credential"), map[string]any{
			"collection": Collection,
			"error":      err.Error(),
		})
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperr.NewConfigError("no active weather credential", err)
		}
		return nil, apperr.NewNetworkError("credential store unavailable", err)
	}

	log.SetDependencyMetadata(logger.DependencyMetadata{
		Dependency:   "mongodb",
		ResponseTime: elapsed,
		ResultCode:   "200",
		ResultFlag:   "SUCCESS",
	}).Debug(logAction.DB_RESPONSE(logAction.DB_READ, "find credential"), map[string]any{
		"keyId":         cred.KeyID,
		"teamId":        cred.TeamID,
		"serviceId":     cred.ServiceID,
		"privateKeyPem": cred.PrivateKeyPEM,
	}, logger.MaskingRule{Field: "privateKeyPem", Type: logger.MaskingTypeFull})

	return &cred, nil
}
