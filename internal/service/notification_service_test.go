package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	from    string
	to      []string
	subject string
	body    string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, from string, to []string, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{from: from, to: to, subject: subject, body: body})
	return nil
}

func submitContact(t *testing.T, forms *FormService, webhook string) *db.FormEntry {
	t.Helper()
	input := contactForm()
	input.WebhookURL = webhook
	_, err := forms.Create(input)
	require.NoError(t, err)
	entry, err := forms.Submit("contact-us", map[string]any{
		"name": "Ada", "email": "ada@example.com", "terms": true,
	}, SubmissionMeta{})
	require.NoError(t, err)
	return entry
}

func TestNotificationServiceSendsAllChannels(t *testing.T) {
	gdb := dbtest.Open(t)
	forms := NewFormService(gdb)
	entry := submitContact(t, forms, "https://hooks.test/forms")

	mailer := &fakeMailer{}
	hooks := &fakeHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNoContent, ""), nil
	}}
	svc := NewNotificationService(gdb, mailer, "site@example.com")
	svc.SetHTTPClient(hooks)

	require.NoError(t, svc.NotifyEntry(context.Background(), entry.ID))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"ops@example.com", "sales@example.com"}, mailer.sent[0].to)
	assert.Equal(t, "New submission: Contact Us", mailer.sent[0].subject)
	assert.Contains(t, mailer.sent[0].body, "Name: Ada\nEmail: ada@example.com\n")

	require.Len(t, hooks.requests, 1)
	assert.Equal(t, "https://hooks.test/forms", hooks.requests[0].URL.String())
	assert.Contains(t, hooks.bodies[0], `"form":"contact-us"`)
	assert.Contains(t, hooks.bodies[0], `"name":"Ada"`)

	stored, err := forms.GetEntry(entry.ID)
	require.NoError(t, err)
	assert.True(t, stored.Notified)
	assert.NotNil(t, stored.NotifiedAt)

	// 已通知的条目不会重复发送
	require.NoError(t, svc.NotifyEntry(context.Background(), entry.ID))
	assert.Len(t, mailer.sent, 1)
}

func TestNotificationServiceFailureKeepsEntryPending(t *testing.T) {
	gdb := dbtest.Open(t)
	forms := NewFormService(gdb)
	entry := submitContact(t, forms, "https://hooks.test/forms")

	mailer := &fakeMailer{err: errors.New("relay down")}
	hooks := &fakeHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, "upstream"), nil
	}}
	svc := NewNotificationService(gdb, mailer, "site@example.com")
	svc.SetHTTPClient(hooks)

	err := svc.NotifyEntry(context.Background(), entry.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay down")
	assert.Contains(t, err.Error(), "upstream")

	stored, err := forms.GetEntry(entry.ID)
	require.NoError(t, err)
	assert.False(t, stored.Notified)

	mailer.err = nil
	hooks.handler = func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, "{}"), nil
	}
	delivered, err := svc.RetryPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	delivered, err = svc.RetryPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestNotificationServiceDeliversEntryOnceUnderConcurrency(t *testing.T) {
	gdb := dbtest.Open(t)
	forms := NewFormService(gdb)
	entry := submitContact(t, forms, "https://hooks.test/forms")

	hooks := &fakeHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		time.Sleep(100 * time.Millisecond)
		return jsonResponse(http.StatusNoContent, ""), nil
	}}
	svc := NewNotificationService(gdb, &fakeMailer{}, "site@example.com")
	svc.SetHTTPClient(hooks)

	ctx := context.Background()
	var (
		wg        sync.WaitGroup
		notifyErr error
		retryErr  error
		retried   int
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		notifyErr = svc.NotifyEntry(ctx, entry.ID)
	}()
	go func() {
		defer wg.Done()
		retried, retryErr = svc.RetryPending(ctx, 10)
	}()
	wg.Wait()

	require.NoError(t, notifyErr)
	require.NoError(t, retryErr)
	assert.LessOrEqual(t, retried, 1)
	assert.Equal(t, 1, hooks.calls())

	stored, err := forms.GetEntry(entry.ID)
	require.NoError(t, err)
	assert.True(t, stored.Notified)
	assert.Nil(t, stored.NotifyingAt)
}

func TestNotificationServiceRespectsClaims(t *testing.T) {
	gdb := dbtest.Open(t)
	forms := NewFormService(gdb)
	entry := submitContact(t, forms, "https://hooks.test/forms")

	hooks := &fakeHTTPClient{handler: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNoContent, ""), nil
	}}
	svc := NewNotificationService(gdb, &fakeMailer{}, "site@example.com")
	svc.SetHTTPClient(hooks)

	// 另一个投递者刚刚认领
	require.NoError(t, gdb.Model(&db.FormEntry{}).Where("id = ?", entry.ID).
		Update("notifying_at", time.Now().UTC()).Error)
	delivered, err := svc.RetryPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Zero(t, hooks.calls())

	// 认领超时后可以重新投递
	require.NoError(t, gdb.Model(&db.FormEntry{}).Where("id = ?", entry.ID).
		Update("notifying_at", time.Now().UTC().Add(-notifyClaimTimeout-time.Minute)).Error)
	delivered, err = svc.RetryPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, hooks.calls())
}

func TestNotificationServiceWithoutMailer(t *testing.T) {
	gdb := dbtest.Open(t)
	entry := submitContact(t, NewFormService(gdb), "")

	svc := NewNotificationService(gdb, nil, "")
	assert.ErrorIs(t, svc.NotifyEntry(context.Background(), entry.ID), ErrMailerNotConfigured)
	assert.ErrorIs(t, svc.NotifyEntry(context.Background(), 999), ErrFormEntryMissing)
}

func TestNotificationServiceRunDrainsQueue(t *testing.T) {
	gdb := dbtest.Open(t)
	forms := NewFormService(gdb)
	entry := submitContact(t, forms, "")

	mailer := &fakeMailer{}
	svc := NewNotificationService(gdb, mailer, "site@example.com")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	require.True(t, svc.Enqueue(entry.ID))
	require.Eventually(t, func() bool {
		stored, err := forms.GetEntry(entry.ID)
		return err == nil && stored.Notified
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
