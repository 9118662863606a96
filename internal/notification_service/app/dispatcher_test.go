package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aradsms/notification_service/internal/notification_service/domain"
	"github.com/aradsms/notification_service/internal/notification_service/provider"
	"github.com/aradsms/notification_service/internal/notification_service/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	resp       *provider.SendResponseDetails
	err        error
	configured bool
	calls      int
}

func (p *stubProvider) Send(ctx context.Context, _ provider.SendRequestDetails) (*provider.SendResponseDetails, error) {
	p.calls++
	return p.resp, p.err
}
func (p *stubProvider) GetName() string       { return "stub" }
func (p *stubProvider) IsConfigured() bool    { return p.configured }
func (p *stubProvider) SenderAddress() string { return "+15550000000" }

type netTimeoutErr struct{}

func (netTimeoutErr) Error() string   { return "i/o timeout" }
func (netTimeoutErr) Timeout() bool   { return true }
func (netTimeoutErr) Temporary() bool { return true }

type dispatcherTestComponents struct {
	dispatcher *Dispatcher
	store      *memory.MessageStore
	provider   *provider.MockSMSProvider
}

func setupDispatcherTest(t *testing.T, cfg DispatcherConfig) dispatcherTestComponents {
	t.Helper()
	logger := testLogger()
	store := memory.NewMessageStore()
	p := provider.NewMockSMSProvider(logger, false, 0)
	return dispatcherTestComponents{
		dispatcher: NewDispatcher(store, p, cfg, logger),
		store:      store,
		provider:   p,
	}
}

func TestDispatcher_Send_Success(t *testing.T) {
	comps := setupDispatcherTest(t, DispatcherConfig{StatusCallbackURL: "https://example.test/webhooks/twilio"})
	ctx := context.Background()

	out, err := comps.dispatcher.Send(ctx, "+14155551234", "hello", SendOptions{})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "+14155551234", out.Recipient)
	assert.NotEmpty(t, out.MessageID)
	assert.True(t, strings.HasPrefix(out.ProviderMessageID, "mock-"))
	assert.Empty(t, out.ErrorReason)

	rec, err := comps.store.GetByID(ctx, out.MessageID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageStateSent, rec.State)
	require.NotNil(t, rec.ProviderMessageID)
	assert.Equal(t, out.ProviderMessageID, *rec.ProviderMessageID)
	assert.Nil(t, rec.ErrorDetail)

	sent := comps.provider.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, out.MessageID, sent[0].InternalMessageID)
	assert.Equal(t, "+15550000000", sent[0].SenderAddress)
	assert.Equal(t, "https://example.test/webhooks/twilio", sent[0].StatusCallbackURL)
	assert.Equal(t, "hello", sent[0].Content)
}

func TestDispatcher_Send_RecipientFormat(t *testing.T) {
	tests := []struct {
		recipient string
		valid     bool
	}{
		{"+14155551234", true},
		{"+442071838750", true},
		{"+123456789012345", true},
		{"4155551234", false},
		{"+1", false},
		{"+0123456789", false},
		{"+123456789012345678", false},
		{"+1415555123a", false},
		{"", false},
		{" +14155551234", false},
	}
	for _, tt := range tests {
		t.Run(tt.recipient, func(t *testing.T) {
			comps := setupDispatcherTest(t, DispatcherConfig{})
			ctx := context.Background()

			out, err := comps.dispatcher.Send(ctx, tt.recipient, "hello", SendOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.valid, out.Success)

			rec, err := comps.store.GetByID(ctx, out.MessageID)
			require.NoError(t, err)
			if tt.valid {
				assert.Len(t, comps.provider.Sent(), 1)
				assert.Equal(t, domain.MessageStateSent, rec.State)
				return
			}
			assert.Empty(t, comps.provider.Sent(), "provider must not be called for an invalid recipient")
			assert.Equal(t, ReasonInvalidRecipient, out.ErrorReason)
			assert.Equal(t, domain.MessageStateFailed, rec.State)
			require.NotNil(t, rec.ErrorDetail)
			assert.Equal(t, ReasonInvalidRecipient, *rec.ErrorDetail)
		})
	}
}

func TestDispatcher_Send_BodyValidation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"empty", "", ReasonEmptyBody},
		{"whitespace", "   \n", ReasonEmptyBody},
		{"too long", strings.Repeat("a", 161), ReasonBodyTooLong},
		{"max length", strings.Repeat("a", 160), ""},
		{"multibyte at max", strings.Repeat("é", 160), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comps := setupDispatcherTest(t, DispatcherConfig{})
			out, err := comps.dispatcher.Send(context.Background(), "+14155551234", tt.body, SendOptions{})
			require.NoError(t, err)
			if tt.reason == "" {
				assert.True(t, out.Success)
				return
			}
			assert.False(t, out.Success)
			assert.Equal(t, tt.reason, out.ErrorReason)
			assert.Empty(t, comps.provider.Sent())
		})
	}
}

func TestDispatcher_Send_InvalidRecipientCheckedBeforeBody(t *testing.T) {
	comps := setupDispatcherTest(t, DispatcherConfig{})
	out, err := comps.dispatcher.Send(context.Background(), "12345", "", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidRecipient, out.ErrorReason)
}

func TestDispatcher_Send_ProviderNotConfigured(t *testing.T) {
	comps := setupDispatcherTest(t, DispatcherConfig{})
	comps.provider.Configured = false
	ctx := context.Background()

	out, err := comps.dispatcher.Send(ctx, "+14155551234", "hello", SendOptions{})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, ReasonNotConfigured, out.ErrorReason)
	assert.Empty(t, comps.provider.Sent())

	rec, err := comps.store.GetByID(ctx, out.MessageID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageStateFailed, rec.State)
}

func TestDispatcher_Send_ProviderRejects(t *testing.T) {
	comps := setupDispatcherTest(t, DispatcherConfig{})
	comps.provider.FailSend = true
	comps.provider.FailMessage = "Twilio API error 21211: The 'To' number is not a valid phone number."
	ctx := context.Background()

	out, err := comps.dispatcher.Send(ctx, "+14155551234", "hello", SendOptions{})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, comps.provider.FailMessage, out.ErrorReason)
	assert.Empty(t, out.ProviderMessageID)

	rec, err := comps.store.GetByID(ctx, out.MessageID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageStateFailed, rec.State)
	require.NotNil(t, rec.ErrorDetail)
	assert.Equal(t, comps.provider.FailMessage, *rec.ErrorDetail)
	assert.Nil(t, rec.ProviderMessageID)
}

func TestDispatcher_Send_Timeout(t *testing.T) {
	comps := setupDispatcherTest(t, DispatcherConfig{ProviderTimeout: 20 * time.Millisecond})
	comps.provider.SimulatedDelay = time.Second
	ctx := context.Background()

	start := time.Now()
	out, err := comps.dispatcher.Send(ctx, "+14155551234", "hello", SendOptions{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, out.Success)
	assert.Equal(t, ReasonTimeout, out.ErrorReason)

	rec, err := comps.store.GetByID(ctx, out.MessageID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageStateFailed, rec.State)
	require.NotNil(t, rec.ErrorDetail)
	assert.Equal(t, ReasonTimeout, *rec.ErrorDetail)
}

func TestDispatcher_Send_NetworkTimeoutError(t *testing.T) {
	store := memory.NewMessageStore()
	p := &stubProvider{configured: true, err: netTimeoutErr{}}
	d := NewDispatcher(store, p, DispatcherConfig{}, testLogger())

	out, err := d.Send(context.Background(), "+14155551234", "hello", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, ReasonTimeout, out.ErrorReason)
}

func TestDispatcher_Send_EmptyProviderID(t *testing.T) {
	store := memory.NewMessageStore()
	p := &stubProvider{configured: true, resp: &provider.SendResponseDetails{ProviderStatus: "queued"}}
	d := NewDispatcher(store, p, DispatcherConfig{}, testLogger())
	ctx := context.Background()

	out, err := d.Send(ctx, "+14155551234", "hello", SendOptions{})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, ReasonNoProviderID, out.ErrorReason)
	assert.Equal(t, 1, p.calls)

	rec, err := store.GetByID(ctx, out.MessageID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageStateFailed, rec.State)
}

func TestDispatcher_Send_SkipLog(t *testing.T) {
	comps := setupDispatcherTest(t, DispatcherConfig{})

	out, err := comps.dispatcher.Send(context.Background(), "+14155551234", "hello", SendOptions{SkipLog: true})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Empty(t, out.MessageID)
	assert.NotEmpty(t, out.ProviderMessageID)
	assert.Equal(t, 0, comps.store.Len())

	out, err = comps.dispatcher.Send(context.Background(), "bogus", "hello", SendOptions{SkipLog: true})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, ReasonInvalidRecipient, out.ErrorReason)
	assert.Equal(t, 0, comps.store.Len())
}

func TestDispatcher_Send_LoggedBody(t *testing.T) {
	comps := setupDispatcherTest(t, DispatcherConfig{})
	ctx := context.Background()

	out, err := comps.dispatcher.Send(ctx, "+14155551234", "Your verification code is 482913", SendOptions{
		LoggedBody: "Your verification code is ******",
	})
	require.NoError(t, err)
	require.True(t, out.Success)

	rec, err := comps.store.GetByID(ctx, out.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "Your verification code is ******", rec.Body)

	sent := comps.provider.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Your verification code is 482913", sent[0].Content, "the provider gets the real body")
}

func TestDispatcher_Send_CreateFails(t *testing.T) {
	store := new(MockMessageLogStore)
	p := &stubProvider{configured: true}
	d := NewDispatcher(store, p, DispatcherConfig{}, testLogger())
	storeErr := errors.New("disk full")
	store.On("Create", mock.Anything, mock.AnythingOfType("*domain.MessageRecord")).Return(nil, storeErr)

	_, err := d.Send(context.Background(), "+14155551234", "hello", SendOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, 0, p.calls)
	store.AssertExpectations(t)
}

func TestDispatcher_Send_WritesExactlyOneStateChange(t *testing.T) {
	store := new(MockMessageLogStore)
	p := &stubProvider{configured: true, resp: &provider.SendResponseDetails{ProviderMessageID: "SM123"}}
	d := NewDispatcher(store, p, DispatcherConfig{}, testLogger())
	rec := &domain.MessageRecord{ID: "msg-1", Recipient: "+14155551234", Body: "hello", State: domain.MessageStatePending}

	store.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.MessageRecord) bool {
		return r.State == domain.MessageStatePending && r.Recipient == "+14155551234"
	})).Return(rec, nil).Once()
	store.On("UpdateState", mock.Anything, "msg-1", mock.MatchedBy(func(u domain.StateUpdate) bool {
		return u.To == domain.MessageStateSent && u.ProviderMessageID != nil && *u.ProviderMessageID == "SM123"
	})).Return(rec, nil).Once()

	out, err := d.Send(context.Background(), "+14155551234", "hello", SendOptions{})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "SM123", out.ProviderMessageID)
	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "UpdateState", 1)
}

func TestDispatcher_Send_RecordsResultAfterCallerCancels(t *testing.T) {
	comps := setupDispatcherTest(t, DispatcherConfig{})
	comps.provider.SimulatedDelay = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	out, err := comps.dispatcher.Send(ctx, "+14155551234", "hello", SendOptions{})
	require.NoError(t, err)
	assert.False(t, out.Success)

	rec, err := comps.store.GetByID(context.Background(), out.MessageID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageStateFailed, rec.State)
}

func TestDispatcher_Send_RateLimitWaitExceedsTimeout(t *testing.T) {
	comps := setupDispatcherTest(t, DispatcherConfig{ProviderTimeout: 50 * time.Millisecond, MaxRPS: 1})
	ctx := context.Background()

	first, err := comps.dispatcher.Send(ctx, "+14155551234", "one", SendOptions{})
	require.NoError(t, err)
	assert.True(t, first.Success)

	second, err := comps.dispatcher.Send(ctx, "+14155551234", "two", SendOptions{})
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, ReasonTimeout, second.ErrorReason)
	assert.Len(t, comps.provider.Sent(), 1)
}
