package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/logging"
	"github.com/pagecraft/internal/repository"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTranslationNotFound = errors.New("translation not found")
	ErrTranslationKey      = errors.New("translation group and key are required")
	ErrInvalidLanguage     = errors.New("invalid language tag")
)

const (
	defaultTranslationModel = "gpt-4o-mini"
	defaultDeepSeekModel    = "deepseek-chat"
	backfillBatchSize       = 100
	translateChunkSize      = 20
	translationSystemPrompt = "You translate website copy from %s to %s. " +
		"The user message is a JSON object whose items each carry an id and a text. " +
		"Reply with a JSON object {\"items\":[{\"id\":\"...\",\"text\":\"...\"}]} containing every id with its translated text. " +
		"Keep Markdown, HTML tags, URLs, image://asset-N links and [[N]] tokens unchanged."
)

// TranslationService 保存本地化文本，并通过 AI 平台回填缺失的译文。
type TranslationService struct {
	db              *gorm.DB
	defaultLanguage string
	client          *translatorClient
}

// TranslationFilter 描述译文列表的筛选条件。
type TranslationFilter struct {
	Group    string
	Language string
	Search   string
	Page     int
	PerPage  int
}

// TranslationListResult 汇总分页后的译文列表。
type TranslationListResult struct {
	Translations []db.Translation
	Total        int64
	TotalPages   int
	Page         int
	PerPage      int
}

// BackfillResult 汇总一次回填的结果。
type BackfillResult struct {
	Language   string
	Missing    int
	Translated int
	Skipped    int
	Failed     int
}

// NewTranslationService 创建 TranslationService。
func NewTranslationService(gdb *gorm.DB, settings *SystemSettingService, defaultLanguage string) *TranslationService {
	defaultLanguage = normalizeLanguage(defaultLanguage)
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	return &TranslationService{
		db:              gdb,
		defaultLanguage: defaultLanguage,
		client:          newTranslatorClient(settings),
	}
}

// DefaultLanguage 返回译文的源语言。
func (s *TranslationService) DefaultLanguage() string {
	return s.defaultLanguage
}

// SetHTTPClient 替换访问翻译平台的 HTTP 客户端。
func (s *TranslationService) SetHTTPClient(client httpDoer) {
	s.client.setHTTPClient(client)
}

// SetOpenAIBaseURL 覆盖 OpenAI 兼容接口地址。
func (s *TranslationService) SetOpenAIBaseURL(base string) {
	s.client.setBaseURL(AIProviderOpenAI, base)
}

// SetDeepSeekBaseURL 覆盖 DeepSeek 接口地址。
func (s *TranslationService) SetDeepSeekBaseURL(base string) {
	s.client.setBaseURL(AIProviderDeepSeek, base)
}

// SetModels 覆盖使用的模型，空值保持不变。
func (s *TranslationService) SetModels(openAIModel, deepSeekModel string) {
	s.client.setModel(AIProviderOpenAI, openAIModel)
	s.client.setModel(AIProviderDeepSeek, deepSeekModel)
}

// Lookup 只返回该语言自身存储的值。
func (s *TranslationService) Lookup(group, key, lang string) (string, bool) {
	var record db.Translation
	err := s.db.Where("`group` = ? AND `key` = ? AND language = ?", group, key, normalizeLanguage(lang)).
		First(&record).Error
	if err != nil || record.Value == "" {
		return "", false
	}
	return record.Value, true
}

// Get 返回 lang 的译文，缺失时依次退回默认语言
// 与 key 本身。
func (s *TranslationService) Get(group, key, lang string) string {
	lang = normalizeLanguage(lang)
	if lang != "" {
		if value, ok := s.Lookup(group, key, lang); ok {
			return value
		}
	}
	if lang != s.defaultLanguage {
		if value, ok := s.Lookup(group, key, s.defaultLanguage); ok {
			return value
		}
	}
	return key
}

// Set 保存人工译文，覆盖已有的值。
func (s *TranslationService) Set(group, key, lang, value string) (*db.Translation, error) {
	group = strings.TrimSpace(group)
	key = strings.TrimSpace(key)
	if group == "" || key == "" {
		return nil, ErrTranslationKey
	}
	lang = normalizeLanguage(lang)
	if lang == "" {
		return nil, ErrInvalidLanguage
	}

	record := db.Translation{Group: group, Key: key, Language: lang, Value: value, Source: db.TranslationManual}
	if err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group"}, {Name: "key"}, {Name: "language"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      value,
			"source":     db.TranslationManual,
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&record).Error; err != nil {
		return nil, err
	}

	var stored db.Translation
	if err := s.db.Where("`group` = ? AND `key` = ? AND language = ?", group, key, lang).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// Delete 删除一条译文。
func (s *TranslationService) Delete(id uint) error {
	result := s.db.Unscoped().Delete(&db.Translation{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTranslationNotFound
	}
	return nil
}

// List 按 group 与 key 排序返回符合条件的译文。
func (s *TranslationService) List(filter TranslationFilter) (*TranslationListResult, error) {
	result := &TranslationListResult{
		Page:    repository.NormalizePage(filter.Page),
		PerPage: repository.NormalizePerPage(filter.PerPage, 50, 200),
	}
	query := func() *gorm.DB {
		q := s.db.Model(&db.Translation{})
		if group := strings.TrimSpace(filter.Group); group != "" {
			q = q.Where("`group` = ?", group)
		}
		if lang := normalizeLanguage(filter.Language); lang != "" {
			q = q.Where("language = ?", lang)
		}
		if search := strings.TrimSpace(filter.Search); search != "" {
			like := "%" + search + "%"
			q = q.Where("(`key` LIKE ? OR value LIKE ?)", like, like)
		}
		return q
	}

	if err := query().Count(&result.Total).Error; err != nil {
		return nil, err
	}
	if err := query().Order("`group` asc").Order("`key` asc").Order("language asc").
		Scopes(repository.Paginate(result.Page, result.PerPage)).
		Find(&result.Translations).Error; err != nil {
		return nil, err
	}
	result.TotalPages = repository.TotalPages(result.Total, result.PerPage)
	return result, nil
}

// Missing 返回在 lang 中没有非空译文的默认语言条目。
func (s *TranslationService) Missing(lang string, limit int) ([]db.Translation, error) {
	lang = normalizeLanguage(lang)
	if lang == "" {
		return nil, ErrInvalidLanguage
	}
	if lang == s.defaultLanguage {
		return []db.Translation{}, nil
	}

	existing := s.db.Table("translations AS t2").
		Select("1").
		Where("t2.`group` = translations.`group` AND t2.`key` = translations.`key`").
		Where("t2.language = ? AND t2.value <> '' AND t2.deleted_at IS NULL", lang)

	query := s.db.Where("translations.language = ? AND translations.value <> ''", s.defaultLanguage).
		Where("NOT EXISTS (?)", existing).
		Order("translations.`group` asc").Order("translations.`key` asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []db.Translation
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Backfill 为 lang 机器翻译最多一批缺失条目，
// 从不覆盖人工译文，默认语言直接返回。
func (s *TranslationService) Backfill(ctx context.Context, lang string) (BackfillResult, error) {
	lang = normalizeLanguage(lang)
	result := BackfillResult{Language: lang}
	if lang == "" {
		return result, ErrInvalidLanguage
	}
	if lang == s.defaultLanguage {
		return result, nil
	}

	missing, err := s.Missing(lang, backfillBatchSize)
	if err != nil {
		return result, err
	}
	result.Missing = len(missing)
	if len(missing) == 0 {
		return result, nil
	}

	settings, err := s.client.currentSettings()
	if err != nil {
		result.Failed = len(missing)
		return result, err
	}

	source, target := languageName(s.defaultLanguage), languageName(lang)
	var errs []error
	for start := 0; start < len(missing); start += translateChunkSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		chunk := missing[start:min(start+translateChunkSize, len(missing))]

		batch := translationBatch{Source: source, Target: target, Items: make([]translationItem, len(chunk))}
		guards := make([]*protectedText, len(chunk))
		for i, row := range chunk {
			masked, guard := protectTranslatable(row.Value)
			batch.Items[i] = translationItem{ID: strconv.Itoa(i + 1), Text: masked}
			guards[i] = guard
		}

		replies, err := s.client.translate(ctx, settings, batch)
		if err != nil {
			result.Failed += len(chunk)
			errs = append(errs, fmt.Errorf("translate %s batch at %d: %w", lang, start, err))
			if errors.Is(err, ErrAIAPIKeyMissing) {
				break
			}
			continue
		}

		for i, row := range chunk {
			reply, ok := replies[batch.Items[i].ID]
			if !ok || strings.TrimSpace(reply) == "" {
				result.Failed++
				continue
			}
			translated, complete := guards[i].Restore(reply)
			if !complete {
				logging.L().Warn().Str("group", row.Group).Str("key", row.Key).Str("language", lang).
					Msg("translation dropped protected tokens, discarding")
				result.Failed++
				continue
			}
			stored, err := s.storeMachine(row.Group, row.Key, lang, translated)
			if err != nil {
				result.Failed++
				errs = append(errs, err)
				continue
			}
			if !stored {
				result.Skipped++
				continue
			}
			result.Translated++
		}
	}

	logging.L().Info().
		Str("language", lang).
		Int("missing", result.Missing).
		Int("translated", result.Translated).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("translation backfill finished")
	return result, errors.Join(errs...)
}

// storeMachine 写入机器译文，
// 已有记录只有同为机器译文时才会被更新。
func (s *TranslationService) storeMachine(group, key, lang, value string) (bool, error) {
	record := db.Translation{Group: group, Key: key, Language: lang, Value: value, Source: db.TranslationMachine}
	result := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group"}, {Name: "key"}, {Name: "language"}},
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "translations.source = ?", Vars: []interface{}{db.TranslationMachine}},
		}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      value,
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&record)
	return result.RowsAffected > 0, result.Error
}

// normalizeLanguage 规范化 BCP 47 标签，无法解析时返回空串。
func normalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return ""
	}
	return strings.ToLower(tag.String())
}

func languageName(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return lang
}
