package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"jiratogithub/config"
	"jiratogithub/models"
)

// Issue Import API（非公式）用のAcceptヘッダー
// https://gist.github.com/jonmagic/5282384165e0f86ef105 参照
const importAcceptHeader = "application/vnd.github.golden-comet-preview+json"

// マイルストーン一覧のページ間で待機する時間（レート制限対策）
const pageSleep = 1 * time.Second

// ErrStatusNotReady はインポートステータスのリソースがまだ存在しないことを示します
// ステータスチェックは送信より遅れることがあるため、呼び出し側でリトライします
var ErrStatusNotReady = errors.New("インポートステータスが未作成です")

// ImportStatus はIssue Import APIのステータスチェック結果です
type ImportStatus struct {
	Status   string          `json:"status"`
	IssueURL string          `json:"issue_url"`
	Errors   json.RawMessage `json:"errors"`
}

// ValidationError は送信ドキュメントがバリデーションで拒否されたことを示します
type ValidationError struct {
	Title  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("issue '%s' のインポートバリデーションに失敗しました:\n%s", e.Title, e.Detail)
}

// GithubClient はGitHub APIとのやり取りを処理します
type GithubClient struct {
	config  *config.Config
	client  *http.Client
	baseURL string
}

// NewGithubClient は新しいGitHubクライアントを作成します
func NewGithubClient(cfg *config.Config) *GithubClient {
	return &GithubClient{
		config:  cfg,
		client:  &http.Client{Timeout: 120 * time.Second},
		baseURL: fmt.Sprintf("https://api.github.com/repos/%s/%s", cfg.GithubAccount, cfg.GithubRepo),
	}
}

// RepoURL は対象リポジトリのAPIベースURLを返します
func (g *GithubClient) RepoURL() string {
	return g.baseURL
}

// CheckAuth はGitHubトークンで対象リポジトリにアクセスできるかを確認します
func (g *GithubClient) CheckAuth() error {
	req, err := g.newRequest(http.MethodGet, g.baseURL, nil)
	if err != nil {
		return err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("リクエスト送信エラー: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("認証失敗 (%d): %s", resp.StatusCode, string(body))
	}

	return nil
}

// ListMilestones は対象リポジトリの全マイルストーンを取得します
// Linkヘッダーのrel="next"を辿り、ページ間では短い待機を入れます
func (g *GithubClient) ListMilestones() ([]models.Milestone, error) {
	var all []models.Milestone

	url := g.baseURL + "/milestones?state=all"
	for url != "" {
		req, err := g.newRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("マイルストーン一覧取得エラー: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("マイルストーン一覧取得失敗 (%d): %s", resp.StatusCode, string(body))
		}

		var page []models.Milestone
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("マイルストーンレスポンス解析エラー: %w", err)
		}
		all = append(all, page...)

		url = nextPageURL(resp.Header.Get("Link"))
		if url != "" {
			time.Sleep(pageSleep)
		}
	}

	return all, nil
}

// CreateMilestone は対象リポジトリにマイルストーンを作成します
func (g *GithubClient) CreateMilestone(title string) (*models.Milestone, error) {
	payload := map[string]string{"title": title}
	resp, err := g.postJSON(g.baseURL+"/milestones", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("マイルストーン作成失敗 (%d): %s", resp.StatusCode, string(body))
	}

	var milestone models.Milestone
	if err := json.NewDecoder(resp.Body).Decode(&milestone); err != nil {
		return nil, fmt.Errorf("マイルストーンレスポンス解析エラー: %w", err)
	}

	return &milestone, nil
}

// CreateLabel は対象リポジトリにラベルを作成します
func (g *GithubClient) CreateLabel(label models.Label) error {
	resp, err := g.postJSON(g.baseURL+"/labels", label)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ラベル作成失敗 (%d): %s", resp.StatusCode, string(body))
	}

	return nil
}

// SubmitIssueImport はissue+コメントのドキュメントを非同期インポートAPIに送信し、
// ステータスチェック用URLを返します
func (g *GithubClient) SubmitIssueImport(doc *models.ImportRequest) (string, error) {
	importURL := g.baseURL + "/import/issues"

	resp, err := g.postJSON(importURL, doc)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		var result struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return "", fmt.Errorf("インポートレスポンス解析エラー: %w", err)
		}
		return result.URL, nil

	case http.StatusUnprocessableEntity:
		body, _ := io.ReadAll(resp.Body)
		return "", &ValidationError{Title: doc.Issue.Title, Detail: string(body)}

	default:
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("issue '%s' の送信失敗 (%s): 想定外のHTTPステータス %d\n%s",
			doc.Issue.Title, importURL, resp.StatusCode, string(body))
	}
}

// GetImportStatus はインポートのステータスチェックURLを1回確認します
// 404の場合はErrStatusNotReadyを返し、呼び出し側がリトライします
func (g *GithubClient) GetImportStatus(statusURL string) (*ImportStatus, error) {
	req, err := g.newRequest(http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ステータスチェック送信エラー: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrStatusNotReady
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ステータスチェック失敗 (%s): 想定外のHTTPステータス %d", statusURL, resp.StatusCode)
	}

	var status ImportStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("ステータスレスポンス解析エラー: %w", err)
	}

	return &status, nil
}

// 認証・Acceptヘッダー付きのリクエストを作成する共通処理
func (g *GithubClient) newRequest(method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成エラー: %w", err)
	}

	req.Header.Set("Accept", importAcceptHeader)
	req.Header.Set("Authorization", "token "+g.config.GithubPAT)
	return req, nil
}

// JSONペイロードをPOSTする共通処理
func (g *GithubClient) postJSON(url string, payload interface{}) (*http.Response, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("JSONエンコードエラー: %w", err)
	}

	req, err := g.newRequest(http.MethodPost, url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("リクエスト送信エラー: %w", err)
	}
	return resp, nil
}

// Linkヘッダーからrel="next"のURLを取り出します（なければ空文字列）
func nextPageURL(linkHeader string) string {
	if linkHeader == "" {
		return ""
	}

	for _, link := range strings.Split(linkHeader, ",") {
		if !strings.Contains(link, `rel="next"`) {
			continue
		}

		url := strings.TrimSpace(link)
		url = strings.TrimSuffix(url, `; rel="next"`)
		url = strings.Trim(url, "<> ")
		return url
	}
	return ""
}
