package service

import (
	"errors"
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/repository"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrFormNotFound     = errors.New("form not found")
	ErrFormEntryMissing = errors.New("form entry not found")
	ErrHandleRequired   = errors.New("handle is required")
	ErrHandleTaken      = errors.New("handle is already in use")
	ErrInvalidFormField = errors.New("invalid form field")
)

var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-]*$`)

const (
	defaultPullLimit = 50
	maxPullLimit     = 500
)

// ValidationError 携带被拒绝提交的逐字段错误信息。
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

// FormService 管理表单及其提交记录。
type FormService struct {
	db *gorm.DB
}

// FormInput 是创建或更新表单时接受的字段。
type FormInput struct {
	Handle         string
	Name           string
	Fields         []db.FormField
	NotifyEmails   string
	WebhookURL     string
	SuccessMessage string
	Enabled        bool
}

// SubmissionMeta 描述提交来源的请求信息。
type SubmissionMeta struct {
	IPAddress string
	UserAgent string
}

// EntryListResult 汇总单个表单分页后的提交记录。
type EntryListResult struct {
	Entries    []db.FormEntry
	Total      int64
	TotalPages int
	Page       int
	PerPage    int
}

// NewFormService 创建 FormService 实例。
func NewFormService(gdb *gorm.DB) *FormService {
	return &FormService{db: gdb}
}

// List 按名称返回全部表单。
func (s *FormService) List() ([]db.Form, error) {
	var forms []db.Form
	if err := s.db.Order("name asc").Order("id asc").Find(&forms).Error; err != nil {
		return nil, err
	}
	return forms, nil
}

// Get 按 ID 获取表单。
func (s *FormService) Get(id uint) (*db.Form, error) {
	var form db.Form
	if err := s.db.First(&form, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	return &form, nil
}

// GetByHandle 按 handle 获取表单，
// 未设置 includeDisabled 时已停用的表单视为不存在。
func (s *FormService) GetByHandle(handle string, includeDisabled bool) (*db.Form, error) {
	var form db.Form
	query := s.db.Where("handle = ?", strings.ToLower(strings.TrimSpace(handle)))
	if !includeDisabled {
		query = query.Where("enabled = ?", true)
	}
	if err := query.First(&form).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, err
	}
	return &form, nil
}

// Create 保存新表单。
func (s *FormService) Create(input FormInput) (*db.Form, error) {
	form := db.Form{}
	if err := s.apply(&form, input); err != nil {
		return nil, err
	}
	if err := s.db.Create(&form).Error; err != nil {
		return nil, err
	}
	return &form, nil
}

// Update 更新已有表单。
func (s *FormService) Update(id uint, input FormInput) (*db.Form, error) {
	form, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(form, input); err != nil {
		return nil, err
	}
	if err := s.db.Save(form).Error; err != nil {
		return nil, err
	}
	return form, nil
}

// Delete 删除表单及其全部提交。
func (s *FormService) Delete(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("form_id = ?", id).Delete(&db.FormEntry{}).Error; err != nil {
			return err
		}
		result := tx.Unscoped().Delete(&db.Form{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrFormNotFound
		}
		return nil
	})
}

// Submit 按表单结构校验提交内容并保存。
// 表单未声明的字段会被丢弃。
func (s *FormService) Submit(handle string, values map[string]any, meta SubmissionMeta) (*db.FormEntry, error) {
	form, err := s.GetByHandle(handle, false)
	if err != nil {
		return nil, err
	}

	payload, fieldErrors := validateSubmission(form.Fields, values)
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	entry := db.FormEntry{
		FormID:    form.ID,
		Payload:   payload,
		IPAddress: truncateRunes(strings.TrimSpace(meta.IPAddress), 64),
		UserAgent: truncateRunes(strings.TrimSpace(meta.UserAgent), 255),
	}
	if err := s.db.Omit("Form").Create(&entry).Error; err != nil {
		return nil, err
	}
	entry.Form = *form
	return &entry, nil
}

// GetEntry 获取提交记录及其表单。
func (s *FormService) GetEntry(id uint) (*db.FormEntry, error) {
	var entry db.FormEntry
	if err := s.db.Preload("Form").First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFormEntryMissing
		}
		return nil, err
	}
	return &entry, nil
}

// ListEntries 分页返回表单提交，最新的在前。
func (s *FormService) ListEntries(formID uint, page, perPage int) (*EntryListResult, error) {
	result := &EntryListResult{
		Page:    repository.NormalizePage(page),
		PerPage: repository.NormalizePerPage(perPage, 20, 200),
	}
	if err := s.db.Model(&db.FormEntry{}).Where("form_id = ?", formID).Count(&result.Total).Error; err != nil {
		return nil, err
	}
	if err := s.db.Where("form_id = ?", formID).
		Order("id desc").
		Scopes(repository.Paginate(result.Page, result.PerPage)).
		Find(&result.Entries).Error; err != nil {
		return nil, err
	}
	result.TotalPages = repository.TotalPages(result.Total, result.PerPage)
	return result, nil
}

// DeleteEntry 删除一条提交。
func (s *FormService) DeleteEntry(id uint) error {
	result := s.db.Unscoped().Delete(&db.FormEntry{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrFormEntryMissing
	}
	return nil
}

// PullEntries 按 ID 升序返回 ID 大于 afterID 的提交，
// 客户端可以从上次看到的 ID 继续拉取。
func (s *FormService) PullEntries(handle string, afterID uint, limit int) ([]db.FormEntry, error) {
	form, err := s.GetByHandle(handle, true)
	if err != nil {
		return nil, err
	}
	limit = repository.NormalizePerPage(limit, defaultPullLimit, maxPullLimit)

	var entries []db.FormEntry
	if err := s.db.Where("form_id = ? AND id > ?", form.ID, afterID).
		Order("id asc").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *FormService) apply(form *db.Form, input FormInput) error {
	handle := Slugify(input.Handle)
	if handle == "" {
		handle = Slugify(input.Name)
	}
	if handle == "" {
		return ErrHandleRequired
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return ErrNameRequired
	}
	if err := ensureUnique(s.db, &db.Form{}, "handle", handle, form.ID, nil); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			return ErrHandleTaken
		}
		return err
	}
	fields, err := normalizeFields(input.Fields)
	if err != nil {
		return err
	}
	emails, err := normalizeEmailList(input.NotifyEmails)
	if err != nil {
		return err
	}

	form.Handle = handle
	form.Name = name
	form.Fields = datatypes.JSONSlice[db.FormField](fields)
	form.NotifyEmails = emails
	form.WebhookURL = strings.TrimSpace(input.WebhookURL)
	form.SuccessMessage = strings.TrimSpace(input.SuccessMessage)
	form.Enabled = input.Enabled
	return nil
}

func normalizeFields(fields []db.FormField) ([]db.FormField, error) {
	out := make([]db.FormField, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		field.Name = strings.TrimSpace(field.Name)
		if !fieldNamePattern.MatchString(field.Name) {
			return nil, fmt.Errorf("%w: name %q", ErrInvalidFormField, field.Name)
		}
		if _, dup := seen[field.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidFormField, field.Name)
		}
		seen[field.Name] = struct{}{}

		field.Type = strings.ToLower(strings.TrimSpace(field.Type))
		if field.Type == "" {
			field.Type = db.FieldText
		}
		switch field.Type {
		case db.FieldText, db.FieldEmail, db.FieldTextarea, db.FieldNumber, db.FieldCheckbox:
		case db.FieldSelect:
			if len(field.Options) == 0 {
				return nil, fmt.Errorf("%w: select %q has no options", ErrInvalidFormField, field.Name)
			}
		default:
			return nil, fmt.Errorf("%w: type %q", ErrInvalidFormField, field.Type)
		}
		if field.MaxLength < 0 {
			field.MaxLength = 0
		}
		if strings.TrimSpace(field.Label) == "" {
			field.Label = field.Name
		}
		out = append(out, field)
	}
	return out, nil
}

func normalizeEmailList(raw string) (string, error) {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		address := strings.TrimSpace(part)
		if address == "" {
			continue
		}
		if _, err := mail.ParseAddress(address); err != nil {
			return "", fmt.Errorf("%w: notify email %q", ErrInvalidFormField, address)
		}
		out = append(out, address)
	}
	return strings.Join(out, ","), nil
}

func validateSubmission(fields []db.FormField, values map[string]any) (datatypes.JSONMap, map[string]string) {
	payload := datatypes.JSONMap{}
	errs := map[string]string{}

	for _, field := range fields {
		raw, present := values[field.Name]

		if field.Type == db.FieldCheckbox {
			checked := present && truthy(raw)
			if field.Required && !checked {
				errs[field.Name] = field.Label + " must be accepted"
				continue
			}
			payload[field.Name] = checked
			continue
		}

		value := strings.TrimSpace(stringValue(raw))
		if value == "" {
			if field.Required {
				errs[field.Name] = field.Label + " is required"
			}
			continue
		}
		if field.MaxLength > 0 && utf8.RuneCountInString(value) > field.MaxLength {
			errs[field.Name] = fmt.Sprintf("%s must be at most %d characters", field.Label, field.MaxLength)
			continue
		}

		switch field.Type {
		case db.FieldEmail:
			addr, err := mail.ParseAddress(value)
			if err != nil || addr.Address != value {
				errs[field.Name] = field.Label + " must be a valid email address"
				continue
			}
			payload[field.Name] = value
		case db.FieldNumber:
			number, err := strconv.ParseFloat(value, 64)
			// NaN 与 Inf 无法编码为 JSON
			if err != nil || math.IsNaN(number) || math.IsInf(number, 0) {
				errs[field.Name] = field.Label + " must be a number"
				continue
			}
			payload[field.Name] = number
		case db.FieldSelect:
			if !containsString(field.Options, value) {
				errs[field.Name] = field.Label + " has an invalid choice"
				continue
			}
			payload[field.Name] = value
		default:
			payload[field.Name] = value
		}
	}
	return payload, errs
}

func stringValue(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		if len(v) == 0 {
			return ""
		}
		return v[0]
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func truthy(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	default:
		switch strings.ToLower(strings.TrimSpace(stringValue(v))) {
		case "1", "true", "on", "yes":
			return true
		}
		return false
	}
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
