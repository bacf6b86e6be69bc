// Package registry owns subscriber configuration: validation, tenant
// ownership, name uniqueness and secret management.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/Priya8975/ticket-webhooks/internal/domain"
	"github.com/Priya8975/ticket-webhooks/internal/signature"
	"github.com/Priya8975/ticket-webhooks/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Registry struct {
	store    store.Store
	validate *validator.Validate
	logger   *slog.Logger
}

func New(st store.Store, logger *slog.Logger) *Registry {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterValidation("event_type", func(fl validator.FieldLevel) bool {
		return domain.EventType(fl.Field().String()).Valid()
	})

	return &Registry{store: st, validate: v, logger: logger}
}

// Validate checks req and returns a *domain.ValidationError describing every
// failing field. The name is checked as it will be stored, without
// surrounding whitespace.
func (r *Registry) Validate(req domain.SubscriberRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	err := r.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating subscriber: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = describe(fe)
	}
	return &domain.ValidationError{Fields: fields}
}

// fieldPath strips the struct name from the namespace, e.g.
// "SubscriberRequest.event_types[1]" becomes "event_types[1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "http_url":
		return "must be an absolute http or https URL"
	case "event_type":
		return fmt.Sprintf("unknown event type %q", fe.Value())
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	}
	return "failed " + fe.Tag() + " validation"
}

func (r *Registry) Create(ctx context.Context, tenantID string, req domain.SubscriberRequest) (*domain.Subscriber, error) {
	if err := r.Validate(req); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	existing, err := r.store.FindSubscriberByName(ctx, tenantID, name)
	if err != nil {
		return nil, fmt.Errorf("checking subscriber name: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateName
	}

	secret, err := signature.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}

	sub := &domain.Subscriber{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Secret:    secret,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	applyRequest(sub, req)

	if err := r.store.CreateSubscriber(ctx, sub); err != nil {
		if errors.Is(err, domain.ErrDuplicateName) {
			return nil, err
		}
		return nil, fmt.Errorf("creating subscriber: %w", err)
	}

	r.logger.Info("subscriber created",
		"subscriber_id", sub.ID,
		"tenant_id", tenantID,
		"event_types", len(sub.EventTypes),
	)
	return sub, nil
}

// applyRequest copies req onto sub. Omitted retry settings fall back to the
// defaults; an omitted active flag keeps the current value.
func applyRequest(sub *domain.Subscriber, req domain.SubscriberRequest) {
	sub.Name = strings.TrimSpace(req.Name)
	sub.Description = req.Description
	sub.URL = req.URL
	sub.EventTypes = dedupe(req.EventTypes)
	sub.CustomHeaders = nil
	if len(req.CustomHeaders) > 0 {
		sub.CustomHeaders = make(map[string]string, len(req.CustomHeaders))
		for k, v := range req.CustomHeaders {
			sub.CustomHeaders[k] = v
		}
	}

	sub.MaxAttempts = domain.DefaultMaxAttempts
	if req.MaxAttempts != nil {
		sub.MaxAttempts = *req.MaxAttempts
	}
	sub.RetryDelaySeconds = domain.DefaultRetryDelaySeconds
	if req.RetryDelaySeconds != nil {
		sub.RetryDelaySeconds = *req.RetryDelaySeconds
	}
	if req.Active != nil {
		sub.IsActive = *req.Active
	}
}

func dedupe(types []string) []domain.EventType {
	seen := make(map[domain.EventType]bool, len(types))
	out := make([]domain.EventType, 0, len(types))
	for _, t := range types {
		et := domain.EventType(t)
		if seen[et] {
			continue
		}
		seen[et] = true
		out = append(out, et)
	}
	return out
}

// Get returns the subscriber if it exists and belongs to tenantID.
func (r *Registry) Get(ctx context.Context, tenantID, id string) (*domain.Subscriber, error) {
	sub, err := r.store.GetSubscriber(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting subscriber: %w", err)
	}
	if sub == nil {
		return nil, domain.ErrNotFound
	}
	if sub.TenantID != tenantID {
		return nil, domain.ErrForbidden
	}
	return sub, nil
}

func (r *Registry) List(ctx context.Context, tenantID string, activeOnly bool) ([]domain.Subscriber, error) {
	subs, err := r.store.ListSubscribers(ctx, tenantID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}
	return subs, nil
}

// Update replaces the subscriber's configuration with req.
func (r *Registry) Update(ctx context.Context, tenantID, id string, req domain.SubscriberRequest) (*domain.Subscriber, error) {
	if err := r.Validate(req); err != nil {
		return nil, err
	}

	sub, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	existing, err := r.store.FindSubscriberByName(ctx, tenantID, strings.TrimSpace(req.Name))
	if err != nil {
		return nil, fmt.Errorf("checking subscriber name: %w", err)
	}
	if existing != nil && existing.ID != id {
		return nil, domain.ErrDuplicateName
	}

	applyRequest(sub, req)
	if err := r.store.UpdateSubscriber(ctx, sub); err != nil {
		if errors.Is(err, domain.ErrDuplicateName) || errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("updating subscriber: %w", err)
	}

	r.logger.Info("subscriber updated", "subscriber_id", id, "tenant_id", tenantID)
	return sub, nil
}

// Delete removes the subscriber. Its delivery history is kept.
func (r *Registry) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := r.Get(ctx, tenantID, id); err != nil {
		return err
	}
	if err := r.store.DeleteSubscriber(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("deleting subscriber: %w", err)
	}
	r.logger.Info("subscriber deleted", "subscriber_id", id, "tenant_id", tenantID)
	return nil
}

// SetActive sets the active flag to the requested value. Repeating the call
// is harmless.
func (r *Registry) SetActive(ctx context.Context, tenantID, id string, active bool) (*domain.Subscriber, error) {
	sub, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if sub.IsActive == active {
		return sub, nil
	}
	if err := r.store.SetSubscriberActive(ctx, id, active); err != nil {
		return nil, fmt.Errorf("setting subscriber active: %w", err)
	}
	sub.IsActive = active
	r.logger.Info("subscriber active changed", "subscriber_id", id, "active", active)
	return sub, nil
}

// RotateSecret replaces the signing secret. Deliveries attempted afterwards,
// including retries of older records, are signed with the new secret.
func (r *Registry) RotateSecret(ctx context.Context, tenantID, id string) (*domain.Subscriber, error) {
	sub, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	secret, err := signature.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}
	if err := r.store.RotateSubscriberSecret(ctx, id, secret); err != nil {
		return nil, fmt.Errorf("rotating secret: %w", err)
	}
	sub.Secret = secret
	r.logger.Info("subscriber secret rotated", "subscriber_id", id)
	return sub, nil
}

// Match returns the tenant's active subscribers registered for eventType.
func (r *Registry) Match(ctx context.Context, tenantID string, eventType domain.EventType) ([]domain.Subscriber, error) {
	subs, err := r.store.FindMatchingSubscribers(ctx, tenantID, eventType)
	if err != nil {
		return nil, fmt.Errorf("matching subscribers: %w", err)
	}
	return subs, nil
}
