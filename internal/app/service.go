package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"trailmap/api/internal/auth"
	"trailmap/api/internal/catalog"
	"trailmap/api/internal/config"
	"trailmap/api/internal/geometry"
	"trailmap/api/internal/store"
)

// ClientInfo is submission metadata recorded for audit purposes.
type ClientInfo struct {
	Address   string `json:"address"`
	UserAgent string `json:"userAgent,omitempty"`
}

type progressStore interface {
	Ping(context.Context) error
	CommitStep(context.Context, store.StepRecord) (bool, error)
	LatestPerSession(context.Context, int) ([]store.StepRecord, error)
}

type publisher interface {
	Publish(payload []byte)
}

type Service struct {
	cfg       config.Config
	catalog   *catalog.Catalog
	store     progressStore
	tokens    *auth.TokenService
	publisher publisher
}

func New(cfg config.Config, cat *catalog.Catalog, progress progressStore, tokens *auth.TokenService, pub publisher) *Service {
	return &Service{
		cfg:       cfg,
		catalog:   cat,
		store:     progress,
		tokens:    tokens,
		publisher: pub,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// IssueCredential returns the presented credential, or a freshly minted one
// when none is presented.
func (s *Service) IssueCredential(credential string) (string, error) {
	issued, err := s.tokens.IssueOrPassthrough(credential)
	if err != nil {
		return "", fmt.Errorf("issue credential: %w", err)
	}
	return issued, nil
}

// SessionFromCredential verifies the credential and extracts the session.
func (s *Service) SessionFromCredential(credential string) (string, error) {
	return s.tokens.Verify(credential)
}

// SubmitStep runs the submission pipeline for one GeoJSON Feature body:
// catalog check, property validation, geometry validation and centroid,
// atomic commit, then best-effort broadcast of completed steps.
func (s *Service) SubmitStep(ctx context.Context, itemID, session string, body []byte, client ClientInfo) (store.StepRecord, error) {
	item, err := s.catalog.Get(itemID)
	if err != nil {
		return store.StepRecord{}, domainError(http.StatusNotFound, "NOT_FOUND", "unknown item", nil)
	}

	feature, err := geojson.UnmarshalFeature(body)
	if err != nil {
		return store.StepRecord{}, domainError(http.StatusNotAcceptable, "VALIDATION_ERROR", "invalid GeoJSON feature", []string{err.Error()})
	}
	if feature.Type != "" && feature.Type != "Feature" {
		return store.StepRecord{}, domainError(http.StatusNotAcceptable, "VALIDATION_ERROR", "body must be a GeoJSON Feature", nil)
	}

	rec, err := s.recordFromFeature(feature, item, session, client)
	if err != nil {
		return store.StepRecord{}, err
	}

	commitCtx, cancel := context.WithTimeout(ctx, s.cfg.DBTimeout)
	defer cancel()
	if _, err := s.store.CommitStep(commitCtx, rec); err != nil {
		return store.StepRecord{}, domainError(http.StatusInternalServerError, "STORAGE_ERROR", err.Error(), nil)
	}

	// Broadcast the submitted record, not a re-read, even when the upsert was
	// a no-op against an already completed row. Non-completed progress stays
	// off the live map.
	if rec.Completed && s.publisher != nil {
		if payload, err := json.Marshal(s.featureFor(rec)); err == nil {
			s.publisher.Publish(payload)
		}
	}
	return rec, nil
}

func (s *Service) recordFromFeature(feature *geojson.Feature, item catalog.Item, session string, client ClientInfo) (store.StepRecord, error) {
	step, _ := feature.Properties["step"].(string)
	if step == "" {
		return store.StepRecord{}, domainError(http.StatusNotAcceptable, "VALIDATION_ERROR", "properties.step is required", nil)
	}
	stepIndex, ok := nonNegativeInt(feature.Properties["stepIndex"])
	if !ok {
		return store.StepRecord{}, domainError(http.StatusNotAcceptable, "VALIDATION_ERROR", "properties.stepIndex must be a non-negative integer", nil)
	}

	completed, _ := feature.Properties["completed"].(bool)
	data, hasData := feature.Properties["data"]
	var dataJSON json.RawMessage
	if completed {
		if !hasData || data == nil {
			return store.StepRecord{}, domainError(http.StatusNotAcceptable, "VALIDATION_ERROR", "properties.data is required for a completed step", nil)
		}
		encoded, err := json.Marshal(data)
		if err != nil {
			return store.StepRecord{}, domainError(http.StatusNotAcceptable, "VALIDATION_ERROR", "properties.data is not serializable", nil)
		}
		dataJSON = encoded
	} else if hasData && data != nil {
		return store.StepRecord{}, domainError(http.StatusNotAcceptable, "VALIDATION_ERROR", "properties.data is only allowed on a completed step", nil)
	}

	rec := store.StepRecord{
		ItemID:    item.UUID,
		Session:   session,
		Step:      step,
		StepIndex: stepIndex,
		Completed: completed,
		ImageID:   item.ImageLink,
		Data:      dataJSON,
	}

	if feature.Geometry != nil {
		if problems := geometry.Validate(feature); len(problems) > 0 {
			return store.StepRecord{}, domainError(http.StatusNotAcceptable, "VALIDATION_ERROR", "invalid geometry", problems)
		}
		encoded, err := json.Marshal(geojson.NewGeometry(feature.Geometry))
		if err != nil {
			return store.StepRecord{}, domainError(http.StatusNotAcceptable, "VALIDATION_ERROR", "geometry is not serializable", nil)
		}
		rec.Geometry = encoded
		if centroid, ok := geometry.Centroid(feature.Geometry); ok {
			rec.Centroid = formatCentroid(centroid)
		}
	}

	if encoded, err := json.Marshal(client); err == nil {
		rec.Client = encoded
	}
	return rec, nil
}

// Locations returns the latest completed step per session as a GeoJSON
// FeatureCollection. A limit of zero or less means unbounded.
func (s *Service) Locations(ctx context.Context, limit int) (map[string]any, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.cfg.DBTimeout)
	defer cancel()
	records, err := s.store.LatestPerSession(queryCtx, limit)
	if err != nil {
		return nil, domainError(http.StatusInternalServerError, "STORAGE_ERROR", err.Error(), nil)
	}

	features := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		features = append(features, s.featureFor(rec))
	}
	return map[string]any{
		"type":     "FeatureCollection",
		"features": features,
	}, nil
}

// featureFor shapes a step record as the map feature pushed to observers and
// listed under /locations.
func (s *Service) featureFor(rec store.StepRecord) map[string]any {
	var data any
	if len(rec.Data) > 0 {
		data = json.RawMessage(rec.Data)
	}
	var geom any
	if len(rec.Geometry) > 0 {
		geom = json.RawMessage(rec.Geometry)
	}
	return map[string]any{
		"type": "Feature",
		"properties": map[string]any{
			"uuid":      rec.ItemID,
			"imageId":   rec.ImageID,
			"step":      rec.Step,
			"completed": rec.Completed,
			"url":       s.imageURL(rec.ImageID),
			"data":      data,
		},
		"geometry": geom,
	}
}

func (s *Service) imageURL(imageID string) string {
	if imageID == "" {
		return ""
	}
	return s.cfg.ImageBasePath + "/" + imageID
}

// nonNegativeInt accepts a JSON number only when it is integral and >= 0.
func nonNegativeInt(value any) (int, bool) {
	number, ok := value.(float64)
	if !ok {
		return 0, false
	}
	if number < 0 || number != math.Trunc(number) {
		return 0, false
	}
	return int(number), true
}

func formatCentroid(point orb.Point) string {
	return strconv.FormatFloat(point[0], 'f', -1, 64) + "," + strconv.FormatFloat(point[1], 'f', -1, 64)
}

// IsAuthError reports whether the error came from credential verification.
func IsAuthError(err error) bool {
	return errors.Is(err, auth.ErrInvalidToken)
}
