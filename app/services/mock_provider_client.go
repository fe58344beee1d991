package services

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MockOrder is an order held by MockProviderClient
type MockOrder struct {
	ServiceID string
	Link      string
	Quantity  int
	Status    string
	Charge    *decimal.Decimal
}

// MockProviderClient is an in-memory provider for local runs and tests.
// Charges default to PricePer1000 * quantity / 1000.
type MockProviderClient struct {
	mu     sync.Mutex
	nextID int
	orders map[string]*MockOrder
	order  []string

	PricePer1000 decimal.Decimal
	// CreateErr, when set, fails every CreateOrder call
	CreateErr error
	// StatusErr, when set, fails every GetStatus call
	StatusErr error
	// StatusDelay blocks GetStatus until it elapses or ctx is done
	StatusDelay time.Duration
	// ChargeFor overrides the computed charge; ok=false leaves the charge absent
	ChargeFor func(serviceID string, quantity int) (decimal.Decimal, bool)
	// FailServices makes CreateOrder fail for the listed service ids
	FailServices map[string]error
}

// NewMockProviderClient creates a mock provider charging one unit per 1000
func NewMockProviderClient() *MockProviderClient {
	return &MockProviderClient{
		nextID:       1000,
		orders:       make(map[string]*MockOrder),
		PricePer1000: decimal.NewFromInt(1),
	}
}

func (m *MockProviderClient) CreateOrder(ctx context.Context, serviceID, link string, quantity int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	if err, ok := m.FailServices[serviceID]; ok {
		return "", err
	}

	m.nextID++
	id := strconv.Itoa(m.nextID)

	o := &MockOrder{
		ServiceID: serviceID,
		Link:      link,
		Quantity:  quantity,
		Status:    "Pending",
	}
	if m.ChargeFor != nil {
		if charge, ok := m.ChargeFor(serviceID, quantity); ok {
			o.Charge = &charge
		}
	} else {
		charge := m.PricePer1000.Mul(decimal.NewFromInt(int64(quantity))).Div(decimal.NewFromInt(1000))
		o.Charge = &charge
	}

	m.orders[id] = o
	m.order = append(m.order, id)
	return id, nil
}

func (m *MockProviderClient) GetStatus(ctx context.Context, ids []string) (map[string]ProviderOrderStatus, error) {
	if m.StatusDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.StatusDelay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.StatusErr != nil {
		return nil, m.StatusErr
	}

	out := make(map[string]ProviderOrderStatus, len(ids))
	for _, id := range ids {
		o, ok := m.orders[id]
		if !ok {
			out[id] = ProviderOrderStatus{Error: "Incorrect order ID"}
			continue
		}
		st := ProviderOrderStatus{Status: o.Status}
		if o.Charge != nil {
			st.Charge = *o.Charge
			st.HasCharge = true
		}
		out[id] = st
	}
	return out, nil
}

// SetStatus changes the upstream status of an order
func (m *MockProviderClient) SetStatus(id, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.Status = status
	}
}

// Orders returns the placed orders in creation order
func (m *MockProviderClient) Orders() []MockOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockOrder, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.orders[id])
	}
	return out
}

// OrderIDs returns the provider ids in creation order
func (m *MockProviderClient) OrderIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}
