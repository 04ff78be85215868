package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/kevin07696/newebpay-service/internal/domain"
	"github.com/kevin07696/newebpay-service/internal/domain/ports"
	"go.uber.org/zap"
)

// orderStore keeps orders in one JSON array on disk, the same shape as data/orders.json.
// The whole document is held in memory and rewritten through a temp file and rename
// on every mutation, so a crash never leaves a half-written file.
type orderStore struct {
	path   string
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	orders map[string]*domain.Order
}

// NewOrderStore opens (or creates) the JSON order file at path.
// A file that exists but does not parse is an error rather than an empty store.
func NewOrderStore(path string, logger *zap.Logger) (ports.OrderRepository, error) {
	return newOrderStore(path, logger, func() time.Time { return time.Now().UTC() })
}

func newOrderStore(path string, logger *zap.Logger, now func() time.Time) (*orderStore, error) {
	s := &orderStore{
		path:   path,
		logger: logger,
		now:    now,
		orders: make(map[string]*domain.Order),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		logger.Info("Order file not found, starting empty", zap.String("path", path))
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read order file: %w", err)
	}

	var list []*domain.Order
	if len(data) > 0 {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("parse order file %s: %w", path, err)
		}
	}
	for _, o := range list {
		s.orders[o.MerchantOrderNo] = o
	}

	logger.Info("Order file loaded", zap.String("path", path), zap.Int("orders", len(list)))
	return s, nil
}

func (s *orderStore) Get(_ context.Context, merchantOrderNo string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[merchantOrderNo]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (s *orderStore) GetByTradeNo(_ context.Context, tradeNo string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tradeNo != "" {
		for _, o := range s.orders {
			if o.TradeNo == tradeNo {
				return copyOrder(o), nil
			}
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (s *orderStore) List(_ context.Context, filter ports.OrderFilter) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if filter.RefundableOnly && !o.IsRefundable() {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sortByPayTimeDesc(out)
	return out, nil
}

func (s *orderStore) Upsert(_ context.Context, order *domain.Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, ok := s.orders[order.MerchantOrderNo]
	if ok {
		merged := copyOrder(existing)
		merged.MergeNotification(order, now)
		if err := s.persistWith(merged); err != nil {
			return false, err
		}
		return false, nil
	}

	fresh := copyOrder(order)
	fresh.Status = domain.OrderStatusPaid
	fresh.RefundedAt = nil
	fresh.CreatedAt = now
	fresh.UpdatedAt = now
	if err := s.persistWith(fresh); err != nil {
		return false, err
	}
	return true, nil
}

func (s *orderStore) MarkRefunded(_ context.Context, merchantOrderNo string, refundedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.orders[merchantOrderNo]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if existing.Status != domain.OrderStatusPaid {
		return domain.ErrOrderAlreadyRefunded
	}

	updated := copyOrder(existing)
	at := refundedAt.UTC()
	updated.Status = domain.OrderStatusRefunded
	updated.RefundedAt = &at
	updated.UpdatedAt = at
	return s.persistWith(updated)
}

func (s *orderStore) Ping(context.Context) error {
	dir := filepath.Dir(s.path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("order store dir: %w", err)
	}
	return nil
}

// persistWith writes the document including o and only then swaps o into memory.
// Caller holds the write lock.
func (s *orderStore) persistWith(o *domain.Order) error {
	list := make([]*domain.Order, 0, len(s.orders)+1)
	for no, existing := range s.orders {
		if no != o.MerchantOrderNo {
			list = append(list, existing)
		}
	}
	list = append(list, o)
	// stable on-disk order keeps diffs readable
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].MerchantOrderNo < list[j].MerchantOrderNo
	})

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return domain.WrapError(domain.ErrorCodeStoreError, "encode orders", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		s.logger.Error("Failed to write order file", zap.String("path", s.path), zap.Error(err))
		return domain.WrapError(domain.ErrorCodeStoreError, "write orders", err)
	}

	s.orders[o.MerchantOrderNo] = o
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	if o.RefundedAt != nil {
		t := *o.RefundedAt
		c.RefundedAt = &t
	}
	return &c
}

func sortByPayTimeDesc(orders []*domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].PayTime.Equal(orders[j].PayTime) {
			return orders[i].PayTime.After(orders[j].PayTime)
		}
		return orders[i].MerchantOrderNo < orders[j].MerchantOrderNo
	})
}
