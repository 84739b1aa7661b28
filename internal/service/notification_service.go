package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/logging"
	"gorm.io/gorm"
)

// ErrMailerNotConfigured 表示表单配置了邮件通知但没有可用的发信通道。
var ErrMailerNotConfigured = errors.New("mail sender is not configured")

// notifyClaimTimeout 是认领的有效期，投递进程崩溃后其他投递者最多等待这么久。
const notifyClaimTimeout = 10 * time.Minute

// MailSender 发送纯文本邮件。
type MailSender interface {
	Send(ctx context.Context, from string, to []string, subject, body string) error
}

// SMTPSender 通过 SMTP 中继发信，可选 PLAIN 认证。
type SMTPSender struct {
	Addr     string
	Username string
	Password string
}

// Send 实现 MailSender。
func (s SMTPSender) Send(ctx context.Context, from string, to []string, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.Username != "" {
		host := s.Addr
		if idx := strings.LastIndex(host, ":"); idx >= 0 {
			host = host[:idx]
		}
		auth = smtp.PlainAuth("", s.Username, s.Password, host)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return smtp.SendMail(s.Addr, auth, from, to, msg.Bytes())
}

// NotificationService 把表单提交分发到邮件与 webhook 通道。
type NotificationService struct {
	db     *gorm.DB
	mailer MailSender
	from   string
	http   httpDoer
	queue  chan uint
	now    func() time.Time
}

// NewNotificationService 创建 NotificationService，
// 未配置 SMTP 中继时 mailer 可以为 nil。
func NewNotificationService(gdb *gorm.DB, mailer MailSender, from string) *NotificationService {
	return &NotificationService{
		db:     gdb,
		mailer: mailer,
		from:   strings.TrimSpace(from),
		http:   &http.Client{Timeout: 10 * time.Second},
		queue:  make(chan uint, 256),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetHTTPClient 替换 webhook 使用的 HTTP 客户端。
func (s *NotificationService) SetHTTPClient(client httpDoer) {
	if client == nil {
		s.http = &http.Client{Timeout: 10 * time.Second}
		return
	}
	s.http = client
}

// Enqueue 把提交交给 Run 投递，从不阻塞，
// 队列已满时留给 RetryPending 处理。
func (s *NotificationService) Enqueue(entryID uint) bool {
	select {
	case s.queue <- entryID:
		return true
	default:
		logging.L().Warn().Uint("entry_id", entryID).Msg("notification queue full, deferring entry")
		return false
	}
}

// Run 持续投递队列中的提交，直到 ctx 取消。
func (s *NotificationService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			if err := s.NotifyEntry(ctx, id); err != nil {
				logging.L().Error().Err(err).Uint("entry_id", id).Msg("form entry notification failed")
			}
		}
	}
}

// NotifyEntry 加载提交及其表单并发送通知。
func (s *NotificationService) NotifyEntry(ctx context.Context, entryID uint) error {
	var entry db.FormEntry
	if err := s.db.WithContext(ctx).Preload("Form").First(&entry, entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFormEntryMissing
		}
		return err
	}
	if entry.Notified {
		return nil
	}
	return s.NotifyFormEntry(ctx, &entry)
}

// NotifyFormEntry 把提交发送到表单配置的每个通道，
// 全部通道成功后才标记为已通知。
// 已被其他投递者认领的提交会被跳过。
func (s *NotificationService) NotifyFormEntry(ctx context.Context, entry *db.FormEntry) error {
	_, err := s.deliver(ctx, entry)
	return err
}

// deliver 返回本次调用是否实际发送了该提交。
func (s *NotificationService) deliver(ctx context.Context, entry *db.FormEntry) (bool, error) {
	claimed, err := s.claim(ctx, entry.ID)
	if err != nil || !claimed {
		return false, err
	}

	form := entry.Form
	var errs []error
	if recipients := splitRecipients(form.NotifyEmails); len(recipients) > 0 {
		if err := s.sendEmail(ctx, form, entry, recipients); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}
	if url := strings.TrimSpace(form.WebhookURL); url != "" {
		if err := s.sendWebhook(ctx, url, form, entry); err != nil {
			errs = append(errs, fmt.Errorf("webhook: %w", err))
		}
	}

	updates := map[string]any{"notifying_at": nil}
	now := s.now()
	if len(errs) == 0 {
		updates["notified"] = true
		updates["notified_at"] = now
	}
	// 释放认领不能受已取消的 ctx 影响，否则条目要等到认领超时
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Model(&db.FormEntry{}).
		Where("id = ?", entry.ID).Updates(updates).Error; err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}

	entry.Notified = true
	entry.NotifiedAt = &now
	entry.NotifyingAt = nil
	logging.L().Info().Uint("entry_id", entry.ID).Str("form", form.Handle).Msg("form entry notified")
	return true, nil
}

// claim 把未通知的提交标记为投递中，条件更新保证只有一个调用方成功，
// 超过 notifyClaimTimeout 的认领视为失效。
func (s *NotificationService) claim(ctx context.Context, entryID uint) (bool, error) {
	now := s.now()
	result := s.db.WithContext(ctx).Model(&db.FormEntry{}).
		Where("id = ? AND notified = ?", entryID, false).
		Where("(notifying_at IS NULL OR notifying_at < ?)", now.Add(-notifyClaimTimeout)).
		Update("notifying_at", now)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		logging.L().Debug().Uint("entry_id", entryID).Msg("form entry already claimed or notified")
		return false, nil
	}
	return true, nil
}

// RetryPending 按时间顺序重新投递尚未通知的提交，
// 返回成功投递的数量。
func (s *NotificationService) RetryPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []db.FormEntry
	if err := s.db.WithContext(ctx).Preload("Form").
		Where("notified = ?", false).
		Order("id asc").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return 0, err
	}

	delivered := 0
	var errs []error
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		sent, err := s.deliver(ctx, &entries[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", entries[i].ID, err))
			continue
		}
		if sent {
			delivered++
		}
	}
	return delivered, errors.Join(errs...)
}

func (s *NotificationService) sendEmail(ctx context.Context, form db.Form, entry *db.FormEntry, to []string) error {
	if s.mailer == nil {
		return ErrMailerNotConfigured
	}
	subject := fmt.Sprintf("New submission: %s", form.Name)
	return s.mailer.Send(ctx, s.from, to, subject, formatEntryBody(form, entry))
}

type webhookPayload struct {
	Form        string         `json:"form"`
	EntryID     uint           `json:"entry_id"`
	SubmittedAt time.Time      `json:"submitted_at"`
	Data        map[string]any `json:"data"`
}

func (s *NotificationService) sendWebhook(ctx context.Context, url string, form db.Form, entry *db.FormEntry) error {
	body, err := json.Marshal(webhookPayload{
		Form:        form.Handle,
		EntryID:     entry.ID,
		SubmittedAt: entry.CreatedAt.UTC(),
		Data:        entry.Payload,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pagecraft-webhook/1.0")

	client := s.http
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// formatEntryBody 先按表单结构顺序列出声明的字段，再列出其余键。
func formatEntryBody(form db.Form, entry *db.FormEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Form: %s\n", form.Name)
	fmt.Fprintf(&b, "Submitted: %s\n\n", entry.CreatedAt.UTC().Format(time.RFC3339))

	written := make(map[string]bool, len(entry.Payload))
	for _, field := range form.Fields {
		value, ok := entry.Payload[field.Name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s: %v\n", field.Label, value)
		written[field.Name] = true
	}
	var rest []string
	for key := range entry.Payload {
		if !written[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		fmt.Fprintf(&b, "%s: %v\n", key, entry.Payload[key])
	}
	return b.String()
}

func splitRecipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
