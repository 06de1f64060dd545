package services

import (
	"fmt"
	"regexp"
	"sort"

	"jiratogithub/models"
)

// ConvertRelationshipsToComments はissue間の関係エッジを合成コメントに変換します
// 移行先のissue番号はこの時点では不明なため、コメント本文は対象のJiraキーで
// issueを検索するURLへのリンクになります
// 変換後、関係フィールドはissueから取り除かれます
func ConvertRelationshipsToComments(issue *models.Issue, githubAccount, githubRepo string) {
	appendEdges := func(keys []string, relationshipType string) {
		for _, jiraKey := range keys {
			issue.Comments = append(issue.Comments, models.Comment{
				Body: relationshipCommentBody(jiraKey, relationshipType, githubAccount, githubRepo),
			})
		}
	}

	appendEdges(issue.Duplicates, "duplicates")
	appendEdges(issue.IsDuplicatedBy, "is_duplicated_by")
	appendEdges(issue.IsRelatedTo, "relates_to")
	appendEdges(issue.DependsOn, "depends_on")
	appendEdges(issue.Blocks, "blocks")

	if issue.EpicKey != "" {
		appendEdges([]string{issue.EpicKey}, "epic")
	}

	issue.Duplicates = nil
	issue.IsDuplicatedBy = nil
	issue.IsRelatedTo = nil
	issue.DependsOn = nil
	issue.Blocks = nil
	issue.EpicKey = ""
}

// 合成コメントの本文を組み立てます
// 隠しメタデータ（関係の種類と対象キー）を埋め込み、再検出を冪等にします
func relationshipCommentBody(jiraKey, relationshipType, githubAccount, githubRepo string) string {
	searchURL := fmt.Sprintf(
		"https://github.com/%s/%s/issues?q=is%%3Aissue%%20%%22jira_issue_key%%3D%s%%22",
		githubAccount, githubRepo, jiraKey)

	return fmt.Sprintf(
		"<!-- ### Imported Jira references for easier searching -->\n"+
			"<!-- [synthetic_comment=relationship] -->\n"+
			"<!-- [jira_relationship_key=%s] -->"+
			"<!-- [jira_relationship_type=%s] -->\n"+
			"<i>[Original `%s` from Jira: <a href=\"%s\">%s</a>]</i>\n",
		jiraKey, relationshipType, relationshipType, searchURL, jiraKey)
}

// FindJiraLinks はテキスト中の他issueへの参照キーを列挙します
// browse URL形式（"no-jira-link-rewrite" クラス付きリンクを除く）と
// 素の "PROJECT-番号" 形式の両方を検出し、重複を除いてソートして返します
func FindJiraLinks(text, jiraBaseURL, projectName string) []string {
	if text == "" {
		return nil
	}

	found := make(map[string]bool)

	// パターン1: 完全なbrowse URL
	fullURLPattern := regexp.MustCompile(
		`(<a class="no-jira-link-rewrite" href=")?` +
			regexp.QuoteMeta(jiraBaseURL) + `/browse/(` + regexp.QuoteMeta(projectName) + `-\d+)`)
	for _, groups := range fullURLPattern.FindAllStringSubmatch(text, -1) {
		if groups[1] != "" {
			continue
		}
		found[groups[2]] = true
	}

	// パターン2: 素のプロジェクトキー形式
	keyPattern := regexp.MustCompile(regexp.QuoteMeta(projectName) + `-(\d+)`)
	for _, groups := range keyPattern.FindAllStringSubmatch(text, -1) {
		found[projectName+"-"+groups[1]] = true
	}

	if len(found) == 0 {
		return nil
	}

	links := make([]string, 0, len(found))
	for link := range found {
		links = append(links, link)
	}
	sort.Strings(links)
	return links
}
