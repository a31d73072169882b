package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sitereply/sitereply/internal/domain/entity"
	repo "github.com/sitereply/sitereply/internal/domain/repository"
	"github.com/sitereply/sitereply/pkg/helpers"
)

var (
	ErrWidgetNotFound  = errors.New("widget not found")
	ErrDuplicateWidget = errors.New("business name or contact email already taken")
	ErrNotOwner        = errors.New("widget does not belong to caller")
)

// keyGenAttempts bounds retries when a generated public key collides with an
// existing one. With 192-bit keys a single retry is already unheard of.
const keyGenAttempts = 3

// WidgetService implements widget creation and lookup. Public keys are the
// only identifier exposed outside the service.
type WidgetService struct {
	Repo           repo.WidgetRepository
	Logger         *logrus.Logger
	GCS            *storage.Client
	GCSBucket      string
	ES             *elasticsearch.Client
	ESWidgetsIndex string
}

func NewWidgetService(r repo.WidgetRepository, logger *logrus.Logger, gcs *storage.Client, gcsBucket string, es *elasticsearch.Client, esWidgetsIndex string) *WidgetService {
	return &WidgetService{
		Repo:           r,
		Logger:         logger,
		GCS:            gcs,
		GCSBucket:      gcsBucket,
		ES:             es,
		ESWidgetsIndex: esWidgetsIndex,
	}
}

type CreateWidgetInput struct {
	Name    string
	Email   string
	Summary string
}

// Create inserts a widget for ownerID with a fresh opaque public key,
// retrying key generation on the vanishingly rare uniqueness collision.
func (s *WidgetService) Create(ctx context.Context, ownerID int64, in CreateWidgetInput) (*entity.Widget, error) {
	var lastErr error
	for i := 0; i < keyGenAttempts; i++ {
		key, err := helpers.NewWidgetKey()
		if err != nil {
			return nil, err
		}
		w := &entity.Widget{
			UserID:    ownerID,
			Name:      in.Name,
			Email:     in.Email,
			Summary:   in.Summary,
			PublicKey: key,
			Plan:      entity.PlanFree,
		}
		err = s.Repo.Create(ctx, w)
		if err == nil {
			_ = s.indexWidget(ctx, w)
			return w, nil
		}
		if !errors.Is(err, repo.ErrDuplicate) {
			return nil, err
		}
		// A duplicate on the very first attempt is almost certainly the
		// business name or email, not the key. Check before retrying.
		if _, lookupErr := s.Repo.GetByPublicKey(ctx, key); errors.Is(lookupErr, repo.ErrNotFound) {
			return nil, ErrDuplicateWidget
		}
		lastErr = err
	}
	return nil, fmt.Errorf("widget key generation kept colliding: %w", lastErr)
}

// GetByPublicKey resolves the widget for an embed key.
func (s *WidgetService) GetByPublicKey(ctx context.Context, key string) (*entity.Widget, error) {
	if key == "" {
		return nil, ErrWidgetNotFound
	}
	w, err := s.Repo.GetByPublicKey(ctx, key)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrWidgetNotFound
		}
		return nil, err
	}
	return w, nil
}

// GetOwned returns the widget only if it belongs to ownerID.
func (s *WidgetService) GetOwned(ctx context.Context, ownerID, widgetID int64) (*entity.Widget, error) {
	w, err := s.Repo.GetByID(ctx, widgetID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrWidgetNotFound
		}
		return nil, err
	}
	if w.UserID != ownerID {
		return nil, ErrNotOwner
	}
	return w, nil
}

// ListForUser is the explicit query behind the dashboard; there is no lazy
// relationship loading anywhere.
func (s *WidgetService) ListForUser(ctx context.Context, ownerID int64) ([]*entity.Widget, error) {
	return s.Repo.ListByUser(ctx, ownerID)
}

// UploadLogo stores a widget logo in GCS and records its public URL.
func (s *WidgetService) UploadLogo(ctx context.Context, ownerID, widgetID int64, r io.Reader, filename, contentType string) (string, error) {
	w, err := s.GetOwned(ctx, ownerID, widgetID)
	if err != nil {
		return "", err
	}
	if s.GCS == nil || s.GCSBucket == "" {
		return "", errors.New("gcs not configured")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	objectPath := filepath.ToSlash(filepath.Join("logos", strconv.FormatInt(w.ID, 10), uuid.NewString()+ext))
	url, err := helpers.UploadObject(ctx, s.GCS, s.GCSBucket, objectPath, contentType, r)
	if err != nil {
		return "", err
	}
	if err := s.Repo.UpdateLogoURL(ctx, w.ID, url); err != nil {
		return "", err
	}
	w.LogoURL = url
	_ = s.indexWidget(ctx, w)
	return url, nil
}

func (s *WidgetService) indexWidget(ctx context.Context, w *entity.Widget) error {
	if s.ES == nil || s.ESWidgetsIndex == "" {
		return nil
	}
	doc := map[string]any{
		"id":         w.ID,
		"user_id":    w.UserID,
		"name":       w.Name,
		"email":      w.Email,
		"summary":    w.Summary,
		"plan":       string(w.Plan),
		"created_at": w.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": w.UpdatedAt.Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{
		Index:      s.ESWidgetsIndex,
		DocumentID: strconv.FormatInt(w.ID, 10),
		Body:       strings.NewReader(string(b)),
		Refresh:    "false",
	}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("widget_id", w.ID).Warn("es index failed")
		}
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && s.Logger != nil {
		s.Logger.WithField("status", res.Status()).WithField("widget_id", w.ID).Warn("es index response error")
	}
	return nil
}

// Search performs a multi_match query over the caller's widgets.
func (s *WidgetService) Search(ctx context.Context, ownerID int64, q string, size int) ([]map[string]any, error) {
	if s.ES == nil || s.ESWidgetsIndex == "" {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":  q,
						"fields": []string{"name^2", "summary"},
					},
				},
				"filter": map[string]any{
					"term": map[string]any{"user_id": ownerID},
				},
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := s.ES.Search(
		s.ES.Search.WithContext(c),
		s.ES.Search.WithIndex(s.ESWidgetsIndex),
		s.ES.Search.WithBody(strings.NewReader(string(b))),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
