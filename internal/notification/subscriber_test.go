package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type mockAckableMsg struct {
	mock.Mock
}

func (m *mockAckableMsg) Data() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *mockAckableMsg) Subject() string {
	return messaging.OrdersPlacedSubject
}

func (m *mockAckableMsg) Ack() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockAckableMsg) Nak() error {
	args := m.Called()
	return args.Error(0)
}

func Test_handleMessage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validPayload, _ := json.Marshal(&events.OrderPlacedEvent{
		Carrier:   map[string]string{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
		OrderID:   "order-1",
		UserID:    "user-1",
		Total:     decimal.RequireFromString("12.30"),
		ItemCount: 2,
		CreatedAt: time.Now(),
	})
	testCases := []struct {
		name       string
		newMockMsg func() *mockAckableMsg
	}{
		{
			name: "valid message",
			newMockMsg: func() *mockAckableMsg {
				msg := new(mockAckableMsg)
				msg.On("Data").Return(validPayload).Times(1)
				msg.On("Ack").Return(nil).Times(1)
				return msg
			},
		},
		{
			name: "ack failure is only logged",
			newMockMsg: func() *mockAckableMsg {
				msg := new(mockAckableMsg)
				msg.On("Data").Return(validPayload).Times(1)
				msg.On("Ack").Return(errors.New("connection closed")).Times(1)
				return msg
			},
		},
		{
			name: "invalid message",
			newMockMsg: func() *mockAckableMsg {
				msg := new(mockAckableMsg)
				msg.On("Data").Return([]byte("invalid data")).Times(1)
				msg.On("Nak").Return(nil).Times(1)
				return msg
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			mockMsg := tc.newMockMsg()

			// when
			handleMessage(context.Background(), mockMsg, logger)

			// then
			mockMsg.AssertExpectations(t)
		})
	}
}
