package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/manhaj-ai/miniapp/internal/model"
)

// Remote table names.
const (
	tableStudents  = "students"
	tableTasks     = "tasks"
	tableCompleted = "completed_tasks"
	tableTransfers = "transfers"
	tableQuestions = "questions"
	tableSupport   = "support_messages"
	tableSettings  = "app_settings"
	viewStatistics = "app_statistics"
	defaultTimeout = 30 * time.Second
)

// codeNoSingleRow is the PostgREST code for "expected one row, got zero".
const codeNoSingleRow = "PGRST116"

// PostgREST speaks the PostgREST row protocol against a hosted project.
// One instance is shared by all flows; it holds no mutable state besides
// the HTTP client.
type PostgREST struct {
	restURL    string
	apiKey     string
	httpClient *http.Client
}

// PostgRESTConfig configures the remote store client.
type PostgRESTConfig struct {
	// ProjectURL is the project base URL, e.g. https://xyz.supabase.co.
	ProjectURL string
	// APIKey is sent as both the apikey header and the bearer token.
	APIKey  string
	Timeout time.Duration
}

// NewPostgREST creates a client for the hosted row API.
func NewPostgREST(cfg PostgRESTConfig) (*PostgREST, error) {
	if cfg.ProjectURL == "" {
		return nil, fmt.Errorf("project URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	base := strings.TrimRight(cfg.ProjectURL, "/")
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid project URL: %w", err)
	}
	return &PostgREST{
		restURL:    base + "/rest/v1",
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// =============================================================================
// Students
// =============================================================================

func (p *PostgREST) GetStudentByTelegramID(ctx context.Context, telegramID int64) (model.Student, error) {
	var s model.Student
	err := p.getSingle(ctx, tableStudents, []string{"telegram_id=eq." + strconv.FormatInt(telegramID, 10)}, &s)
	return s, err
}

func (p *PostgREST) GetStudentByVerificationCode(ctx context.Context, code string) (model.Student, error) {
	var s model.Student
	err := p.getSingle(ctx, tableStudents, []string{"verification_code=eq." + url.QueryEscape(code)}, &s)
	return s, err
}

func (p *PostgREST) GetStudentByReferralCode(ctx context.Context, code string) (model.Student, error) {
	var s model.Student
	err := p.getSingle(ctx, tableStudents, []string{"referral_code=eq." + url.QueryEscape(code)}, &s)
	return s, err
}

func (p *PostgREST) CreateStudent(ctx context.Context, s model.Student) (model.Student, error) {
	row := map[string]any{
		"telegram_id":       s.TelegramID,
		"name":              s.Name,
		"education_stage":   s.EducationStage,
		"country":           s.Country,
		"verification_code": s.VerificationCode,
		"referral_code":     s.ReferralCode,
	}
	var created model.Student
	if err := p.insert(ctx, tableStudents, row, &created); err != nil {
		return model.Student{}, err
	}
	return created, nil
}

func (p *PostgREST) UpdateStudent(ctx context.Context, telegramID int64, upd StudentUpdate) (model.Student, error) {
	row := map[string]any{
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if upd.Points != nil {
		row["points"] = *upd.Points
	}
	if upd.Riyal != nil {
		row["riyal"] = *upd.Riyal
	}
	if upd.IsPremium != nil {
		row["is_premium"] = *upd.IsPremium
	}
	if upd.IsGiftPremium != nil {
		row["is_gift_premium"] = *upd.IsGiftPremium
	}
	if upd.AdsResponseCount != nil {
		row["ads_response_count"] = *upd.AdsResponseCount
	}
	if upd.QuestionsCount != nil {
		row["questions_count"] = *upd.QuestionsCount
	}
	if upd.SuccessfulReferrals != nil {
		row["successful_referrals"] = *upd.SuccessfulReferrals
	}
	if upd.LastActivity != nil {
		row["last_activity"] = upd.LastActivity.UTC().Format(time.RFC3339)
	}

	filters := []string{"telegram_id=eq." + strconv.FormatInt(telegramID, 10)}
	if upd.IfPoints != nil {
		filters = append(filters, "points=eq."+strconv.Itoa(*upd.IfPoints))
	}
	if upd.IfRiyal != nil {
		filters = append(filters, "riyal=eq."+strconv.Itoa(*upd.IfRiyal))
	}

	var updated []model.Student
	if err := p.patch(ctx, tableStudents, filters, row, &updated); err != nil {
		return model.Student{}, err
	}
	if len(updated) == 0 {
		// No row matched the filter: either the student is gone or the
		// balance predicate failed at write time.
		return model.Student{}, ErrWriteRejected
	}
	return updated[0], nil
}

func (p *PostgREST) ListStudents(ctx context.Context) ([]model.Student, error) {
	var students []model.Student
	err := p.getList(ctx, tableStudents, []string{"order=created_at.desc"}, &students)
	return students, err
}

func (p *PostgREST) TopStudents(ctx context.Context, limit int) ([]model.Student, error) {
	var students []model.Student
	filters := []string{"order=points.desc", "limit=" + strconv.Itoa(limit)}
	err := p.getList(ctx, tableStudents, filters, &students)
	return students, err
}

// =============================================================================
// Tasks and completions
// =============================================================================

func (p *PostgREST) GetTask(ctx context.Context, id int64) (model.Task, error) {
	var t model.Task
	err := p.getSingle(ctx, tableTasks, []string{"id=eq." + strconv.FormatInt(id, 10)}, &t)
	return t, err
}

func (p *PostgREST) ListActiveTasks(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	err := p.getList(ctx, tableTasks, []string{"is_active=eq.true", "order=created_at.desc"}, &tasks)
	return tasks, err
}

func (p *PostgREST) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	row := map[string]any{
		"link":        t.Link,
		"description": t.Description,
		"points":      t.Points,
		"is_active":   t.IsActive,
	}
	var created model.Task
	if err := p.insert(ctx, tableTasks, row, &created); err != nil {
		return model.Task{}, err
	}
	return created, nil
}

func (p *PostgREST) UpdateTask(ctx context.Context, id int64, upd TaskUpdate) (model.Task, error) {
	row := map[string]any{}
	if upd.Link != nil {
		row["link"] = *upd.Link
	}
	if upd.Description != nil {
		row["description"] = *upd.Description
	}
	if upd.Points != nil {
		row["points"] = *upd.Points
	}
	if upd.IsActive != nil {
		row["is_active"] = *upd.IsActive
	}
	var updated []model.Task
	if err := p.patch(ctx, tableTasks, []string{"id=eq." + strconv.FormatInt(id, 10)}, row, &updated); err != nil {
		return model.Task{}, err
	}
	if len(updated) == 0 {
		return model.Task{}, ErrWriteRejected
	}
	return updated[0], nil
}

func (p *PostgREST) GetCompletion(ctx context.Context, userID, taskID int64) (model.CompletedTask, error) {
	var c model.CompletedTask
	filters := []string{
		"user_id=eq." + strconv.FormatInt(userID, 10),
		"task_id=eq." + strconv.FormatInt(taskID, 10),
	}
	err := p.getSingle(ctx, tableCompleted, filters, &c)
	return c, err
}

func (p *PostgREST) ListCompletions(ctx context.Context, userID int64) ([]model.CompletedTask, error) {
	var completions []model.CompletedTask
	err := p.getList(ctx, tableCompleted, []string{"user_id=eq." + strconv.FormatInt(userID, 10)}, &completions)
	return completions, err
}

func (p *PostgREST) CreateCompletion(ctx context.Context, c model.CompletedTask) (model.CompletedTask, error) {
	row := map[string]any{
		"user_id": c.UserID,
		"task_id": c.TaskID,
	}
	var created model.CompletedTask
	if err := p.insert(ctx, tableCompleted, row, &created); err != nil {
		return model.CompletedTask{}, err
	}
	return created, nil
}

func (p *PostgREST) SetCompletionCredited(ctx context.Context, userID, taskID int64, credited bool) error {
	row := map[string]any{"points_credited": credited}
	if credited {
		row["credited_at"] = time.Now().UTC().Format(time.RFC3339)
	} else {
		row["credited_at"] = nil
	}
	filters := []string{
		"user_id=eq." + strconv.FormatInt(userID, 10),
		"task_id=eq." + strconv.FormatInt(taskID, 10),
		"points_credited=eq." + strconv.FormatBool(!credited),
	}
	var updated []model.CompletedTask
	if err := p.patch(ctx, tableCompleted, filters, row, &updated); err != nil {
		return err
	}
	if len(updated) == 0 {
		return ErrWriteRejected
	}
	return nil
}

// =============================================================================
// Transfers, questions, support
// =============================================================================

func (p *PostgREST) CreateTransfer(ctx context.Context, t model.Transfer) (model.Transfer, error) {
	row := map[string]any{
		"sender_id":     t.SenderID,
		"receiver_id":   t.ReceiverID,
		"amount":        t.Amount,
		"transfer_type": t.TransferType,
	}
	var created model.Transfer
	if err := p.insert(ctx, tableTransfers, row, &created); err != nil {
		return model.Transfer{}, err
	}
	return created, nil
}

func (p *PostgREST) CreateQuestion(ctx context.Context, q model.Question) error {
	row := map[string]any{
		"user_id":       q.UserID,
		"question":      q.Question,
		"question_type": q.QuestionType,
	}
	return p.insert(ctx, tableQuestions, row, nil)
}

func (p *PostgREST) CreateSupportMessage(ctx context.Context, m model.SupportMessage) (model.SupportMessage, error) {
	row := map[string]any{
		"user_id": m.UserID,
		"message": m.Message,
	}
	var created model.SupportMessage
	if err := p.insert(ctx, tableSupport, row, &created); err != nil {
		return model.SupportMessage{}, err
	}
	return created, nil
}

func (p *PostgREST) ListOpenSupportMessages(ctx context.Context) ([]model.SupportMessage, error) {
	var msgs []model.SupportMessage
	err := p.getList(ctx, tableSupport, []string{"is_answered=eq.false", "order=created_at.asc"}, &msgs)
	return msgs, err
}

func (p *PostgREST) ReplySupportMessage(ctx context.Context, id, reply string) (model.SupportMessage, error) {
	row := map[string]any{
		"reply":       reply,
		"is_answered": true,
		"replied_at":  time.Now().UTC().Format(time.RFC3339),
	}
	var updated []model.SupportMessage
	if err := p.patch(ctx, tableSupport, []string{"id=eq." + url.QueryEscape(id)}, row, &updated); err != nil {
		return model.SupportMessage{}, err
	}
	if len(updated) == 0 {
		return model.SupportMessage{}, ErrNotFound
	}
	return updated[0], nil
}

// =============================================================================
// Settings and statistics
// =============================================================================

func (p *PostgREST) ListSettings(ctx context.Context) (map[string]string, error) {
	var rows []model.AppSetting
	if err := p.getList(ctx, tableSettings, []string{"select=setting_key,setting_value"}, &rows); err != nil {
		return nil, err
	}
	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		settings[row.SettingKey] = row.SettingValue
	}
	return settings, nil
}

func (p *PostgREST) SetSetting(ctx context.Context, key, value string) error {
	row := map[string]any{
		"setting_value": value,
		"updated_at":    time.Now().UTC().Format(time.RFC3339),
	}
	var updated []model.AppSetting
	if err := p.patch(ctx, tableSettings, []string{"setting_key=eq." + url.QueryEscape(key)}, row, &updated); err != nil {
		return err
	}
	if len(updated) == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgREST) Statistics(ctx context.Context) (model.AppStatistics, error) {
	var stats model.AppStatistics
	err := p.getSingle(ctx, viewStatistics, nil, &stats)
	return stats, err
}

// =============================================================================
// HTTP plumbing
// =============================================================================

func (p *PostgREST) getSingle(ctx context.Context, table string, filters []string, dest any) error {
	headers := map[string]string{"Accept": "application/vnd.pgrst.object+json"}
	body, err := p.do(ctx, http.MethodGet, p.buildURL(table, filters), nil, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("gateway: unmarshal %s row: %w", table, err)
	}
	return nil
}

func (p *PostgREST) getList(ctx context.Context, table string, filters []string, dest any) error {
	body, err := p.do(ctx, http.MethodGet, p.buildURL(table, filters), nil, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("gateway: unmarshal %s rows: %w", table, err)
	}
	return nil
}

// insert POSTs a row and, when dest is non-nil, decodes the created row
// from the representation the store returns.
func (p *PostgREST) insert(ctx context.Context, table string, row map[string]any, dest any) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("gateway: marshal %s row: %w", table, err)
	}
	headers := map[string]string{"Prefer": "return=representation"}
	if dest != nil {
		headers["Accept"] = "application/vnd.pgrst.object+json"
	} else {
		headers["Prefer"] = "return=minimal"
	}
	body, err := p.do(ctx, http.MethodPost, p.buildURL(table, nil), payload, headers)
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("gateway: unmarshal created %s row: %w", table, err)
	}
	return nil
}

// patch applies a filtered update and decodes the updated rows. An empty
// result slice means no row matched the filter.
func (p *PostgREST) patch(ctx context.Context, table string, filters []string, row map[string]any, dest any) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("gateway: marshal %s update: %w", table, err)
	}
	headers := map[string]string{"Prefer": "return=representation"}
	body, err := p.do(ctx, http.MethodPatch, p.buildURL(table, filters), payload, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("gateway: unmarshal updated %s rows: %w", table, err)
	}
	return nil
}

func (p *PostgREST) buildURL(table string, filters []string) string {
	urlStr := p.restURL + "/" + url.PathEscape(table)
	if len(filters) > 0 {
		urlStr += "?" + strings.Join(filters, "&")
	}
	return urlStr
}

func (p *PostgREST) do(ctx context.Context, method, urlStr string, body []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseError(respBody, resp.StatusCode)
	}
	return respBody, nil
}

// parseError maps a remote failure body onto the gateway error taxonomy.
func parseError(body []byte, statusCode int) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
		Hint    string `json:"hint"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return &Error{Code: "unknown", Message: string(body), StatusCode: statusCode}
	}
	if errResp.Code == codeNoSingleRow || statusCode == http.StatusNotFound {
		return ErrNotFound
	}
	// Conflicts keep their PostgreSQL code: callers tell a unique violation
	// apart from other constraint failures. Predicate misses on conditional
	// updates never land here; those come back as an empty representation.
	return &Error{
		Code:       errResp.Code,
		Message:    errResp.Message,
		Details:    errResp.Details,
		Hint:       errResp.Hint,
		StatusCode: statusCode,
	}
}
