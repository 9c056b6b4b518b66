package export

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/qragasync/internal/domain"
	"github.com/you/qragasync/internal/sink"
)

// ErrNotSyncable is returned for product types the sink does not accept.
var ErrNotSyncable = errors.New("product type is not syncable")

// ItemCatalog is the single-product view of the catalog, including the
// synced marker that drives create-vs-update.
type ItemCatalog interface {
	Get(ctx context.Context, id int64) (*domain.Product, error)
	MarkSynced(ctx context.Context, id int64, at time.Time) error
	ClearSynced(ctx context.Context, id int64) error
}

// ItemSink is the single-item remote operation set.
type ItemSink interface {
	Create(ctx context.Context, payload domain.ProductPayload) error
	Update(ctx context.Context, id string, payload domain.ProductPayload) error
	Delete(ctx context.Context, id string) error
}

// SyncAction reports what a single-item sync decided to do.
type SyncAction string

const (
	ActionCreated SyncAction = "created"
	ActionUpdated SyncAction = "updated"
	ActionDeleted SyncAction = "deleted"
	ActionSkipped SyncAction = "skipped"
)

// ItemSyncer handles event-driven single-product synchronization: publish
// events create or update, unpublish and removal events delete.
type ItemSyncer struct {
	catalog     ItemCatalog
	sink        ItemSink
	transformer Transformer
	sinkCfg     sink.Config
	log         *zap.Logger
	now         func() time.Time
}

func NewItemSyncer(catalog ItemCatalog, s ItemSink, tr Transformer, cfg sink.Config, log *zap.Logger) *ItemSyncer {
	return &ItemSyncer{
		catalog:     catalog,
		sink:        s,
		transformer: tr,
		sinkCfg:     cfg,
		log:         log,
		now:         time.Now,
	}
}

// SyncProduct pushes one product's current state to the sink. A published
// product is created on first sync and updated afterwards; a product that
// left published status but was synced before is deleted remotely.
func (s *ItemSyncer) SyncProduct(ctx context.Context, id int64) (SyncAction, error) {
	if err := s.sinkCfg.Validate(); err != nil {
		return "", err
	}
	p, err := s.catalog.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if p.Type != domain.Simple && p.Type != domain.Variable {
		return "", ErrNotSyncable
	}

	wasSynced := p.SyncedAt != nil
	if !p.Published() {
		if !wasSynced {
			s.log.Debug("product not published and never synced, nothing to do", zap.Int64("product_id", id))
			return ActionSkipped, nil
		}
		if err := s.DeleteProduct(ctx, id); err != nil {
			return "", err
		}
		return ActionDeleted, nil
	}

	payload, err := s.transformer.Product(p)
	if err != nil {
		return "", errors.Wrap(err, "transform product")
	}

	action := ActionCreated
	if wasSynced {
		action = ActionUpdated
		err = s.sink.Update(ctx, payload.ID, payload)
	} else {
		err = s.sink.Create(ctx, payload)
	}
	if err != nil {
		return "", err
	}
	if err := s.catalog.MarkSynced(ctx, id, s.now()); err != nil {
		return "", err
	}
	s.log.Info("product synced", zap.Int64("product_id", id), zap.String("action", string(action)))
	return action, nil
}

// DeleteProduct removes one product from the sink and drops its synced
// marker. It does not require the product row to still exist: removal
// events can arrive after the catalog row is gone.
func (s *ItemSyncer) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.sinkCfg.Validate(); err != nil {
		return err
	}
	if err := s.sink.Delete(ctx, "prod-"+strconv.FormatInt(id, 10)); err != nil {
		return err
	}
	if err := s.catalog.ClearSynced(ctx, id); err != nil {
		return err
	}
	s.log.Info("product deleted from sink", zap.Int64("product_id", id))
	return nil
}
