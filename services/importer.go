package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"jiratogithub/api"
	"jiratogithub/config"
	"jiratogithub/models"
	"jiratogithub/utils"
)

// GithubAPI はインポーターが必要とするGitHub API操作です
type GithubAPI interface {
	ListMilestones() ([]models.Milestone, error)
	CreateMilestone(title string) (*models.Milestone, error)
	CreateLabel(label models.Label) error
	SubmitIssueImport(doc *models.ImportRequest) (string, error)
	GetImportStatus(statusURL string) (*api.ImportStatus, error)
}

// ステータスチェックのポーリング間隔
const defaultPollInterval = 3 * time.Second

// ポーリング継続を表す内部エラー（pendingのままリトライさせるため）
var errImportPending = errors.New("インポートが保留中です")

// Importer はコーパスをGitHubへ逐次インポートします
// 対象APIのabuse検知がバースト的なトラフィックに反応するため、
// 1件ずつ送信し、完了をポーリングで待ってから次に進みます（意図的な設計です）
type Importer struct {
	config  *config.Config
	project *Project
	client  GithubAPI
	sink    *DryRunSink

	pollInterval time.Duration

	// 追記専用のテキストマッピングファイル（監査・再開用）
	keyToIDFile      string
	keyToFullRefFile string
	jsonMappingFile  string
}

// NewImporter は新しいインポーターを作成します
func NewImporter(cfg *config.Config, project *Project, client GithubAPI) *Importer {
	runStamp := time.Now().Format("2006-01-02_15-04-05")
	return &Importer{
		config:           cfg,
		project:          project,
		client:           client,
		sink:             NewDryRunSink(cfg.DryRunFolder),
		pollInterval:     defaultPollInterval,
		keyToIDFile:      fmt.Sprintf("jira-keys-to-github-id_%s.txt", runStamp),
		keyToFullRefFile: fmt.Sprintf("jira-keys-to-github-id-for-external-use_%s.txt", runStamp),
		jsonMappingFile:  fmt.Sprintf("jira-to-github-mapping_%s.json", runStamp),
	}
}

// ImportMilestones は発見済みマイルストーンをGitHubに取り込みます
// 既存のマイルストーンはタイトルで照合して番号を記録し、未作成のものだけを作成します
func (i *Importer) ImportMilestones() error {
	utils.LogInfo("マイルストーンをインポートしています...")

	if i.config.DryRun {
		utils.LogInfo("ドライラン: GitHubへのマイルストーン作成は行いません")
	}

	existing := make(map[string]bool)
	milestones, err := i.client.ListMilestones()
	if err != nil {
		return fmt.Errorf("既存マイルストーン取得エラー: %w", err)
	}

	for _, milestone := range milestones {
		if _, found := i.project.Milestones()[milestone.Title]; found {
			i.project.SetMilestoneNumber(milestone.Title, milestone.Number)
			existing[milestone.Title] = true
			utils.LogInfo("マイルストーン '%s' は既に存在します (#%d)", milestone.Title, milestone.Number)
		}
	}

	for title := range i.project.Milestones() {
		if existing[title] {
			continue
		}

		if i.config.DryRun {
			continue
		}

		created, err := i.client.CreateMilestone(title)
		if err != nil {
			// 個別の作成失敗は致命的ではありません（再実行でリトライ可能）
			utils.LogWarn("マイルストーン '%s' の作成に失敗しました: %v", title, err)
			continue
		}
		i.project.SetMilestoneNumber(title, created.Number)
		utils.LogInfo("マイルストーン '%s' を作成しました (#%d)", title, created.Number)
	}

	return nil
}

// ImportLabels は発見済みのコンポーネント・ラベル・タイプをGitHubラベルとして取り込みます
func (i *Importer) ImportLabels() {
	utils.LogInfo("ラベルをインポートしています...")

	if i.config.DryRun {
		utils.LogInfo("ドライラン: GitHubへのラベル作成は行いません")
	}

	for _, name := range i.project.AllLabels() {
		converted := strings.ToLower(name)

		// コンポーネント由来のラベルにはプレフィックスを付けます
		if i.config.IncludeComponentInLabels && i.project.IsComponent(name) {
			converted = "jira-component:" + converted
		}

		converted, ok := ConvertLabel(converted, i.project.mappings.Labels, i.project.mappings.AllowedLabels)
		if !ok {
			// 許可リストにないラベルは取り込み対象外（意図した挙動であり警告不要）
			continue
		}

		label := models.Label{Name: converted, Color: LabelColour(name)}

		if i.config.DryRun {
			utils.LogInfo("%s -> %s", name, converted)
			continue
		}

		if err := i.client.CreateLabel(label); err != nil {
			utils.LogWarn("ラベル '%s' の作成に失敗しました: %v", converted, err)
			continue
		}
		utils.LogInfo("%s -> %s", name, converted)
	}
}

// ImportIssues はコーパスの全issueを逐次インポートします
// startFromで指定した件数分の先頭issueは処理済みとしてスキップされます
// 全件送信後、コーパス全体の参照解決ポストパスを実行してマッピングを確定します
func (i *Importer) ImportIssues(startFrom int) error {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "issueインポート")

	utils.LogInfo("issueをインポートしています...")
	if i.config.DryRun {
		utils.LogInfo("ドライラン: GitHubへのissueインポートは行いません")
	}

	var mappings []*models.ImportMapping
	githubIDs := make(map[string]int)

	for count, issue := range i.project.Issues() {
		if count < startFrom {
			continue
		}

		utils.LogInfo("インデックス = %d", count)

		// マイルストーン参照の遅延解決
		if issue.MilestoneName != "" {
			if number, ok := i.project.MilestoneNumber(issue.MilestoneName); ok {
				issue.Milestone = number
			}
			issue.MilestoneName = ""
		}

		// ポストパス用に、関係コメント変換前の本来のコメントを控えておきます
		originalComments := append([]models.Comment(nil), issue.Comments...)

		ConvertRelationshipsToComments(issue, i.config.GithubAccount, i.config.GithubRepo)

		comments := issue.Comments
		issue.Comments = nil

		githubID, err := i.importIssueWithComments(issue, comments)
		if err != nil {
			return err
		}

		mapping := i.buildMapping(issue, githubID, originalComments)
		mappings = append(mappings, mapping)
		githubIDs[issue.Key] = githubID
	}

	// ポストパス: 全issueの送信が終わった今、どの参照が解決可能かを確定できます
	resolveImportedLinks(mappings, githubIDs)

	if err := i.writeJSONMapping(mappings); err != nil {
		return err
	}

	if i.config.DryRun {
		if err := i.sink.WriteIndex(); err != nil {
			return err
		}
	}

	utils.LogInfo("issueのインポートが完了しました: %d 件", len(mappings))
	return nil
}

// importIssueWithComments はissue1件をコメント付きでインポートします
// 本番モードでは非同期インポートAPIへ送信してポーリングで完了を待ち、
// ドライランではローカルアーティファクトに書き出します
// どちらのモードでも成功のたびに追記専用のマッピングファイルを更新します
func (i *Importer) importIssueWithComments(issue *models.Issue, comments []models.Comment) (int, error) {
	utils.LogInfo("Issue %s", issue.Key)
	utils.LogInfo("Labels %v", issue.Labels)

	doc := &models.ImportRequest{Issue: issue, Comments: comments}
	if doc.Comments == nil {
		doc.Comments = []models.Comment{}
	}

	var githubID int
	if i.config.DryRun {
		id, err := i.sink.WriteIssue(doc, issue.Key)
		if err != nil {
			return 0, err
		}
		githubID = id
	} else {
		statusURL, err := i.client.SubmitIssueImport(doc)
		if err != nil {
			return 0, err
		}

		githubID, err = i.waitForIssueCreation(statusURL)
		if err != nil {
			return 0, err
		}
	}

	if err := i.appendMappingLines(issue.Key, githubID); err != nil {
		return 0, err
	}

	return githubID, nil
}

// waitForIssueCreation はステータスが"pending"以外になるまで固定間隔でポーリングします
// ステータスリソースは送信より遅れて作られることがあるため、404は一時的なものとして
// 無期限にリトライします。その他の失敗は即座に致命的エラーになります
func (i *Importer) waitForIssueCreation(statusURL string) (int, error) {
	// 送信直後はステータスリソースがまだ存在しないことが多いため、
	// 最初のチェックの前にポーリング間隔ぶん待ちます
	time.Sleep(i.pollInterval)

	var result *api.ImportStatus

	operation := func() error {
		status, err := i.client.GetImportStatus(statusURL)
		if err != nil {
			if errors.Is(err, api.ErrStatusNotReady) {
				return err
			}
			return backoff.Permanent(err)
		}

		if status.Status == "pending" {
			return errImportPending
		}

		result = status
		return nil
	}

	if err := backoff.Retry(operation, backoff.NewConstantBackOff(i.pollInterval)); err != nil {
		return 0, err
	}

	switch result.Status {
	case "imported":
		utils.LogInfo("インポート完了: %s",
			strings.Replace(result.IssueURL, "api.github.com/repos/", "github.com/", 1))
		githubID, err := strconv.Atoi(path.Base(result.IssueURL))
		if err != nil {
			return 0, fmt.Errorf("issue URLからの番号抽出エラー (%s): %w", result.IssueURL, err)
		}
		return githubID, nil

	case "failed":
		return 0, fmt.Errorf("GitHub issueのインポートに失敗しました:\n%s", string(result.Errors))

	default:
		// ここに到達するのはAPIが未知のステータスを返した場合のみ
		return 0, fmt.Errorf("ステータスチェックが想定外のステータス '%s' を返しました", result.Status)
	}
}

// 追記専用のテキストマッピング2ファイルを更新します
func (i *Importer) appendMappingLines(jiraKey string, githubID int) error {
	line := fmt.Sprintf("%s:%d\n", jiraKey, githubID)
	if err := appendLine(i.keyToIDFile, line); err != nil {
		return err
	}

	fullRef := fmt.Sprintf("%s:%s/%s#%d\n", jiraKey, i.config.GithubAccount, i.config.GithubRepo, githubID)
	return appendLine(i.keyToFullRefFile, fullRef)
}

func appendLine(filename, line string) error {
	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("マッピングファイルオープンエラー: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("マッピングファイル書き込みエラー: %w", err)
	}
	return nil
}

// buildMapping はissue1件分のマッピング記録を組み立てます
// 本文と（関係コメント変換前の）コメントのJiraキー参照も記録します
func (i *Importer) buildMapping(issue *models.Issue, githubID int, originalComments []models.Comment) *models.ImportMapping {
	mapping := &models.ImportMapping{
		JiraIssueKey:  issue.Key,
		GithubIssueID: githubID,
		Title:         issue.Title,
		CreatedAt:     issue.CreatedAt,
		ClosedAt:      issue.ClosedAt,
		UpdatedAt:     issue.UpdatedAt,
		Closed:        issue.Closed,
		Labels:        issue.Labels,
		Milestone:     issue.Milestone,
		WatchersCount: issue.WatchersCount,
		HasWatchers:   issue.WatchersCount > 0,
		VotesCount:    issue.VotesCount,
		HasVotes:      issue.VotesCount > 0,
	}

	// 参照キーは正規化時に書き換え前のテキストから抽出されています
	// 本文側はリダイレクトサービス設定時に書き換えられているため再走査しません
	mapping.JiraLinksInBody = issue.JiraLinks

	linkSet := make(map[string]bool)
	for _, link := range mapping.JiraLinksInBody {
		linkSet[link] = true
	}
	for _, comment := range originalComments {
		for _, link := range comment.JiraLinks {
			mapping.JiraLinksInComments = appendUnique(mapping.JiraLinksInComments, link)
			linkSet[link] = true
		}
	}

	for link := range linkSet {
		mapping.JiraLinks = appendUnique(mapping.JiraLinks, link)
	}

	mapping.HasJiraLinks = len(mapping.JiraLinks) > 0
	mapping.HasJiraLinksInBody = len(mapping.JiraLinksInBody) > 0
	mapping.HasJiraLinksInComments = len(mapping.JiraLinksInComments) > 0
	return mapping
}

// resolveImportedLinks はコーパス全体の送信完了後に参照の解決可能性を確定します
// 参照先キーがインポート済みキーの集合に含まれる場合のみ"解決可能"になります
// コーパス外のissueを指す参照は元トラッカーへのリンクのまま残ります
func resolveImportedLinks(mappings []*models.ImportMapping, githubIDs map[string]int) {
	for _, mapping := range mappings {
		if !mapping.HasJiraLinks {
			continue
		}

		for _, jiraKey := range mapping.JiraLinksInBody {
			if _, imported := githubIDs[jiraKey]; imported {
				mapping.JiraLinksImported = appendUnique(mapping.JiraLinksImported, jiraKey)
				mapping.JiraLinksInBodyImported = appendUnique(mapping.JiraLinksInBodyImported, jiraKey)
			}
		}
		for _, jiraKey := range mapping.JiraLinksInComments {
			if _, imported := githubIDs[jiraKey]; imported {
				mapping.JiraLinksImported = appendUnique(mapping.JiraLinksImported, jiraKey)
				mapping.JiraLinksInCommentsImported = appendUnique(mapping.JiraLinksInCommentsImported, jiraKey)
			}
		}
	}
}

// 実行全体の構造化マッピングをJSONアーティファクトとして保存します
func (i *Importer) writeJSONMapping(mappings []*models.ImportMapping) error {
	data, err := json.MarshalIndent(mappings, "", "  ")
	if err != nil {
		return fmt.Errorf("マッピングJSONエンコードエラー: %w", err)
	}

	if err := os.WriteFile(i.jsonMappingFile, data, 0o644); err != nil {
		return fmt.Errorf("マッピングJSON書き込みエラー: %w", err)
	}

	utils.LogInfo("%s を保存しました", i.jsonMappingFile)
	utils.LogInfo("テキストマッピング: %s", i.keyToIDFile)
	return nil
}

// 重複を避けてスライスに追加します
func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}
