package handler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
)

// memoryStore 以單一 mutex 模擬 row lock，PlaceOrder 的檢查全部通過才寫入，等同 rollback
type memoryStore struct {
	mu            sync.Mutex
	variants      map[int64]*model.Variant
	users         map[int64]*model.User
	ledger        map[string]*model.IdempotencyRecord
	orders        []*model.Order
	notifications []*model.Notification
	nextUserID    int64
	nextOrderID   int64

	// 注入錯誤
	failPlaceOrder  []error
	failRecord      []error
	failNotify      error
	blockUntilCtx   bool
	placeOrderCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		variants:   make(map[int64]*model.Variant),
		users:      make(map[int64]*model.User),
		ledger:     make(map[string]*model.IdempotencyRecord),
		nextUserID: 1000,
	}
}

func (s *memoryStore) addVariant(id, productID int64, stock int) {
	s.variants[id] = &model.Variant{ID: id, ProductID: productID, Stock: stock}
}

func (s *memoryStore) addUser(id int64, email string, role model.UserRole) {
	s.users[id] = &model.User{ID: id, Email: email, Role: role}
}

func (s *memoryStore) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.variants[id].Stock
}

func (s *memoryStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memoryStore) notificationsOf(t model.NotificationType) []*model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*model.Notification
	for _, n := range s.notifications {
		if n.Type == t {
			res = append(res, n)
		}
	}
	return res
}

func (s *memoryStore) GetLedgerRecord(ctx context.Context, submissionID string) (*model.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger[submissionID], nil
}

func (s *memoryStore) RecordRejection(ctx context.Context, submissionID, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.failRecord) > 0 {
		err := s.failRecord[0]
		s.failRecord = s.failRecord[1:]
		return false, err
	}
	if _, ok := s.ledger[submissionID]; ok {
		return false, nil
	}
	s.ledger[submissionID] = &model.IdempotencyRecord{
		SubmissionID: submissionID,
		Outcome:      model.LedgerOutcomeRejected,
		Reason:       reason,
		ProcessedAt:  time.Now().UTC(),
	}
	return true, nil
}

func (s *memoryStore) ledgerRecord(submissionID string) *model.IdempotencyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger[submissionID]
}

func (s *memoryStore) restock(id int64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[id].Stock += n
}

func (s *memoryStore) PlaceOrder(ctx context.Context, params db.PlaceOrderParams) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeOrderCalls++

	if len(s.failPlaceOrder) > 0 {
		err := s.failPlaceOrder[0]
		s.failPlaceOrder = s.failPlaceOrder[1:]
		return nil, err
	}
	if s.blockUntilCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	order := params.Order
	if _, ok := s.ledger[order.SubmissionID]; ok {
		return nil, db.ErrDuplicateSubmission
	}

	var newUser *model.User
	switch {
	case order.UserID != nil:
		if _, ok := s.users[*order.UserID]; !ok {
			return nil, fmt.Errorf("user %d: %w", *order.UserID, db.ErrUserNotFound)
		}
	case params.NewAccount != nil:
		for _, u := range s.users {
			if u.Email == params.NewAccount.Email {
				return nil, db.ErrDuplicateEmail
			}
		}
		newUser = params.NewAccount
	}

	requested := make(map[int64]int)
	for _, line := range order.Lines {
		requested[line.VariantID] += line.Quantity
	}
	ids := make([]int64, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		v, ok := s.variants[id]
		if !ok {
			return nil, fmt.Errorf("variant %d: %w", id, db.ErrVariantNotFound)
		}
		if !v.CanReserve(requested[id]) {
			return nil, &db.OutOfStockError{VariantID: id, Requested: requested[id], Available: v.Stock}
		}
	}
	for _, line := range order.Lines {
		if s.variants[line.VariantID].ProductID != line.ProductID {
			return nil, fmt.Errorf("variant %d: %w", line.VariantID, db.ErrVariantNotFound)
		}
	}

	// commit
	if newUser != nil {
		s.nextUserID++
		newUser.ID = s.nextUserID
		s.users[newUser.ID] = newUser
		order.UserID = &newUser.ID
	}
	for _, line := range order.Lines {
		s.variants[line.VariantID].Stock -= line.Quantity
	}
	s.nextOrderID++
	order.ID = s.nextOrderID
	order.CreatedAt = time.Now().UTC()
	s.orders = append(s.orders, order)
	code := order.Code
	s.ledger[order.SubmissionID] = &model.IdempotencyRecord{
		SubmissionID: order.SubmissionID,
		Outcome:      model.LedgerOutcomePlaced,
		OrderCode:    &code,
		ProcessedAt:  order.CreatedAt,
	}
	return order, nil
}

func (s *memoryStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, db.ErrUserNotFound
}

func (s *memoryStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNotify != nil {
		return s.failNotify
	}
	n.ID = int64(len(s.notifications) + 1)
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *memoryStore) ListAdminUserIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, u := range s.users {
		if u.IsAdmin() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type activityEntry struct {
	orderCode string
	eventType string
	activity  model.OrderActivity
}

type memoryActivityLog struct {
	mu      sync.Mutex
	entries []activityEntry
	err     error
}

func (l *memoryActivityLog) AppendActivity(ctx context.Context, orderCode, eventType string, activity model.OrderActivity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, activityEntry{orderCode: orderCode, eventType: eventType, activity: activity})
	return nil
}
