package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"jiratogithub/models"
	"jiratogithub/utils"
)

// DryRunSink はGitHubを呼び出す代わりに同じ論理ドキュメントをローカルに書き出します
// 本番モードと同一のドキュメント構築コードを通った結果を受け取るため、
// 出力内容は実際に送信されるものと一致します
type DryRunSink struct {
	folder string
	// GitHub側のissue番号の代わりに使う負のカウンター
	counter int
	index   []indexEntry
}

type indexEntry struct {
	JiraKey   string
	Title     string
	State     string
	Labels    []string
	CreatedAt string
	ClosedAt  string
}

// NewDryRunSink は新しいドライランシンクを作成します
func NewDryRunSink(folder string) *DryRunSink {
	return &DryRunSink{
		folder:  folder,
		counter: -1,
	}
}

// WriteIssue は送信ドキュメントとその可読版をローカルに書き出し、
// 代替のissue番号（負数、実行内で一意）を返します
func (s *DryRunSink) WriteIssue(doc *models.ImportRequest, jiraKey string) (int, error) {
	if err := os.MkdirAll(s.folder, 0o755); err != nil {
		return 0, fmt.Errorf("ドライランフォルダ作成エラー: %w", err)
	}

	// 送信ドキュメントをそのままJSONで保存
	jsonData, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("ドライランJSONエンコードエラー: %w", err)
	}
	jsonPath := filepath.Join(s.folder, jiraKey+".json")
	if err := os.WriteFile(jsonPath, jsonData, 0o644); err != nil {
		return 0, fmt.Errorf("ドライランJSON書き込みエラー: %w", err)
	}
	utils.LogInfo("ドライラン: issueデータを %s に保存しました", jsonPath)

	// 可読版のMarkdownも保存
	mdPath := filepath.Join(s.folder, jiraKey+".md")
	if err := os.WriteFile(mdPath, []byte(formatIssueMarkdown(doc, jiraKey)), 0o644); err != nil {
		return 0, fmt.Errorf("ドライランMarkdown書き込みエラー: %w", err)
	}
	utils.LogInfo("ドライラン: issueのMarkdownを %s に保存しました", mdPath)

	// インデックス用のサマリーを記録
	s.index = append(s.index, indexEntry{
		JiraKey:   jiraKey,
		Title:     doc.Issue.Title,
		State:     issueState(doc.Issue),
		Labels:    doc.Issue.Labels,
		CreatedAt: doc.Issue.CreatedAt,
		ClosedAt:  doc.Issue.ClosedAt,
	})

	id := s.counter
	s.counter--
	return id, nil
}

// WriteIndex は実行全体のインデックス（index.md）を書き出します
func (s *DryRunSink) WriteIndex() error {
	if len(s.index) == 0 {
		return nil
	}

	var md strings.Builder
	md.WriteString("# Issues Index\n\n")
	md.WriteString(fmt.Sprintf("Total issues: %d\n\n", len(s.index)))

	md.WriteString("| Jira Key | Title | State | Labels | Created | Closed |\n")
	md.WriteString("|----------|-------|-------|--------|---------|--------|\n")

	for _, entry := range s.index {
		labels := "-"
		if len(entry.Labels) > 0 {
			labels = escapePipes(strings.Join(entry.Labels, ", "))
		}
		closed := entry.ClosedAt
		if closed == "" {
			closed = "-"
		}
		created := entry.CreatedAt
		if created == "" {
			created = "-"
		}

		md.WriteString(fmt.Sprintf("| [%s](%s.md) | %s | %s | %s | %s | %s |\n",
			entry.JiraKey, entry.JiraKey, escapePipes(entry.Title), entry.State, labels, created, closed))
	}

	// 統計サマリー
	open, closed := 0, 0
	labelCounts := make(map[string]int)
	for _, entry := range s.index {
		if entry.State == "closed" {
			closed++
		} else {
			open++
		}
		for _, label := range entry.Labels {
			labelCounts[label]++
		}
	}

	md.WriteString("\n## Statistics\n\n")
	md.WriteString(fmt.Sprintf("- **Open:** %d\n", open))
	md.WriteString(fmt.Sprintf("- **Closed:** %d\n", closed))

	if len(labelCounts) > 0 {
		md.WriteString("\n## Labels\n\n")
		for _, label := range sortedByCount(labelCounts) {
			md.WriteString(fmt.Sprintf("- **%s:** %d\n", label, labelCounts[label]))
		}
	}

	indexPath := filepath.Join(s.folder, "index.md")
	if err := os.WriteFile(indexPath, []byte(md.String()), 0o644); err != nil {
		return fmt.Errorf("インデックス書き込みエラー: %w", err)
	}
	utils.LogInfo("ドライラン: インデックスを %s に保存しました", indexPath)
	return nil
}

// formatIssueMarkdown はissueとコメントを可読なMarkdownに整形します
func formatIssueMarkdown(doc *models.ImportRequest, jiraKey string) string {
	issue := doc.Issue
	var md strings.Builder

	title := issue.Title
	if title == "" {
		title = "Untitled"
	}
	md.WriteString("# " + title + "\n\n")

	md.WriteString("## Metadata\n\n")
	md.WriteString("**Jira Key:** " + jiraKey + "\n\n")
	md.WriteString("**State:** " + issueState(issue) + "\n\n")

	if len(issue.Labels) > 0 {
		md.WriteString("**Labels:** " + strings.Join(issue.Labels, ", ") + "\n\n")
	} else {
		md.WriteString("**Labels:** None\n\n")
	}

	if issue.Milestone != 0 {
		md.WriteString(fmt.Sprintf("**Milestone:** %d\n\n", issue.Milestone))
	}
	if issue.CreatedAt != "" {
		md.WriteString("**Created:** " + issue.CreatedAt + "\n\n")
	}
	if issue.ClosedAt != "" {
		md.WriteString("**Closed:** " + issue.ClosedAt + "\n\n")
	}

	md.WriteString("## Description\n\n")
	if issue.Body != "" {
		md.WriteString(issue.Body + "\n\n")
	} else {
		md.WriteString("_No description provided_\n\n")
	}

	if len(doc.Comments) > 0 {
		md.WriteString(fmt.Sprintf("## Comments (%d)\n\n", len(doc.Comments)))
		for i, comment := range doc.Comments {
			md.WriteString(fmt.Sprintf("### Comment %d\n\n", i+1))
			if comment.CreatedAt != "" {
				md.WriteString("**Date:** " + comment.CreatedAt + "\n\n")
			}
			md.WriteString(comment.Body + "\n\n")
			md.WriteString("---\n\n")
		}
	}

	return md.String()
}

func issueState(issue *models.Issue) string {
	if issue.Closed {
		return "closed"
	}
	return "open"
}

// Markdownテーブルを壊さないようにパイプをエスケープします
func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// 件数の降順（同数なら名前順）でラベル名を並べます
func sortedByCount(counts map[string]int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
