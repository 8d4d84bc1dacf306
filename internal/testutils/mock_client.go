package testutils

import (
	"sync"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockGATTClient is a testify mock of the go-ble client surface a connection
// drives. Successful Subscribe calls keep their handler so tests can push
// notifications with Notify.
type MockGATTClient struct {
	mock.Mock

	mu       sync.Mutex
	handlers map[uint16]ble.NotificationHandler
	done     chan struct{}
	dropOnce sync.Once
}

func NewMockGATTClient() *MockGATTClient {
	return &MockGATTClient{
		handlers: make(map[uint16]ble.NotificationHandler),
		done:     make(chan struct{}),
	}
}

// ExpectTable scripts the discovery calls for the given table.
func (m *MockGATTClient) ExpectTable(services []*ble.Service) *MockGATTClient {
	m.On("DiscoverServices", mock.Anything).Return(services, nil)
	for _, s := range services {
		m.On("DiscoverCharacteristics", mock.Anything, s).Return(s.Characteristics, nil)
		for _, c := range s.Characteristics {
			m.On("DiscoverDescriptors", mock.Anything, c).Return(c.Descriptors, nil)
		}
	}
	return m
}

func (m *MockGATTClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	args := m.Called(filter)
	s, _ := args.Get(0).([]*ble.Service)
	return s, args.Error(1)
}

func (m *MockGATTClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	args := m.Called(filter, s)
	c, _ := args.Get(0).([]*ble.Characteristic)
	return c, args.Error(1)
}

func (m *MockGATTClient) DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error) {
	args := m.Called(filter, c)
	d, _ := args.Get(0).([]*ble.Descriptor)
	return d, args.Error(1)
}

func (m *MockGATTClient) WriteDescriptor(d *ble.Descriptor, v []byte) error {
	return m.Called(d, v).Error(0)
}

func (m *MockGATTClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	err := m.Called(c, ind, h).Error(0)
	if err == nil {
		m.mu.Lock()
		m.handlers[c.ValueHandle] = h
		m.mu.Unlock()
	}
	return err
}

func (m *MockGATTClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	err := m.Called(c, ind).Error(0)
	if err == nil {
		m.mu.Lock()
		delete(m.handlers, c.ValueHandle)
		m.mu.Unlock()
	}
	return err
}

func (m *MockGATTClient) ClearSubscriptions() error {
	return m.Called().Error(0)
}

func (m *MockGATTClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *MockGATTClient) Disconnected() <-chan struct{} {
	return m.done
}

// Drop simulates the peripheral going away.
func (m *MockGATTClient) Drop() {
	m.dropOnce.Do(func() { close(m.done) })
}

// Notify delivers data to the handler subscribed for valueHandle. It reports
// false when nothing is subscribed there.
func (m *MockGATTClient) Notify(valueHandle uint16, data []byte) bool {
	m.mu.Lock()
	h, ok := m.handlers[valueHandle]
	m.mu.Unlock()
	if !ok {
		return false
	}
	h(data)
	return true
}
