package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"dorm-engine/internal/domain"
	"dorm-engine/internal/ledger"
	rediscommon "dorm-engine/internal/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockPublisher 模拟外部通道
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Name() string { return "mock" }

func (m *MockPublisher) Publish(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockMQTT 模拟 mqtt.Client
type MockMQTT struct {
	mock.Mock
}

func (m *MockMQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	args := m.Called(topic, qos, retained, payload)
	return args.Error(0)
}

// failingLedger 只实现 Add，用于验证 ledger 故障不影响调用方
type failingLedger struct {
	ledger.Ledger
}

func (failingLedger) Add(context.Context, domain.NotificationDraft) (*domain.Notification, error) {
	return nil, errors.New("ledger down")
}

func TestNotifier_AppendsAndFansOut(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	ok := &MockPublisher{}
	broken := &MockPublisher{}
	ok.On("Publish", ctx, mock.AnythingOfType("*domain.Notification")).Return(nil).Once()
	broken.On("Publish", ctx, mock.AnythingOfType("*domain.Notification")).Return(errors.New("offline")).Once()

	n := NewNotifier(l, zap.NewNop(), broken, ok)
	rec := n.Notify(ctx, domain.NotificationDraft{UserID: "u1", Title: "Gate pass approved"})

	require.NotNil(t, rec)
	assert.Equal(t, "u1", rec.UserID)
	ok.AssertExpectations(t)
	broken.AssertExpectations(t)

	list, err := n.Ledger().List(ctx, ledger.Query{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Gate pass approved", list[0].Title)
}

func TestNotifier_LedgerFailureIsSwallowed(t *testing.T) {
	pub := &MockPublisher{}
	n := NewNotifier(failingLedger{}, zap.NewNop(), pub)

	rec := n.Notify(context.Background(), domain.NotificationDraft{Title: "x"})

	assert.Nil(t, rec)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestMQTTPublisher_Topics(t *testing.T) {
	client := &MockMQTT{}
	client.On("Publish", "dorm/notifications/u1", byte(1), false, mock.Anything).Return(nil).Once()
	client.On("Publish", "dorm/notifications/broadcast", byte(1), false, mock.Anything).Return(nil).Once()

	p := NewMQTTPublisher(client, "dorm/notifications", 1)
	require.NoError(t, p.Publish(context.Background(), &domain.Notification{ID: "n1", UserID: "u1"}))
	require.NoError(t, p.Publish(context.Background(), &domain.Notification{ID: "n2"}))

	client.AssertExpectations(t)
	payload := client.Calls[0].Arguments.Get(3).([]byte)
	var got domain.Notification
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "n1", got.ID)
}

func TestStreamPublisher_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, rediscommon.EnsureGroup(ctx, client, "dorm:events", "ui"))
	require.NoError(t, rediscommon.EnsureGroup(ctx, client, "dorm:events", "ui"))

	p := NewStreamPublisher(client, "dorm:events", 100)
	require.NoError(t, p.Publish(ctx, &domain.Notification{ID: "n1", Title: "Leave approved", Timestamp: time.Now()}))

	msgs, err := rediscommon.ReadGroup(ctx, client, "dorm:events", "ui", "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var got domain.Notification
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "n1", got.ID)
	require.NoError(t, rediscommon.Ack(ctx, client, "dorm:events", "ui", msgs[0].ID))
}

func TestWebhookPublisher(t *testing.T) {
	var hits int32
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewWebhookPublisher(srv.URL, time.Second, zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), &domain.Notification{ID: "n1", Title: "hello"}))

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	var got domain.Notification
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "hello", got.Title)
}

func TestWebhookPublisher_ServerErrorRetriedThenFails(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewWebhookPublisher(srv.URL, time.Second, zap.NewNop())
	err := p.Publish(context.Background(), &domain.Notification{ID: "n1"})

	require.Error(t, err)
	// 首次请求 + 重试
	assert.GreaterOrEqual(t, atomic.LoadInt32(&hits), int32(2))
}
