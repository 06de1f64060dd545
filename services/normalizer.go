package services

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"jiratogithub/config"
	"jiratogithub/models"
	"jiratogithub/utils"
)

// インライン表示する添付ファイルの拡張子
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".svg": true,
}

// コメントの原文ブロックがこの長さを超える場合は折りたたみを諦めて簡易ヘッダーにします
const maxRawCommentDetails = 65000

// normalizeItem はエクスポートされたitem1件を正規化済みissueに変換します
// 本文の書き換え・メタデータ埋め込み・ラベル導出・添付ファイルのリンク化を行います
func (p *Project) normalizeItem(item *models.Item) *models.Issue {
	closed := item.StatusCategory != nil && item.StatusCategory.ID == p.config.JiraDoneCategoryID
	closedAt := ""
	if closed && item.Resolved != nil {
		closedAt = convertToISO(*item.Resolved)
	}

	// JiraのコンポーネントとラベルをGitHubラベルとして取り込みます
	// センチネルラベルは常に付与されます
	labels := []string{models.SentinelLabel}
	for _, component := range item.Components {
		if p.config.IncludeComponentInLabels {
			labels = append(labels, "component:"+NormalizeLabel(truncate(component, 40)))
		}
	}

	labels = append(labels, jiraTypeLabel(strings.ToLower(item.Type)))

	for _, label := range item.SourceLabels() {
		if converted, ok := ConvertLabel(NormalizeLabel(label), p.mappings.Labels, p.mappings.AllowedLabels); ok {
			labels = append(labels, truncate(converted, 50))
		}
	}

	var body strings.Builder
	body.WriteString(CleanMarkup(item.DescriptionText()))

	// 移行元issueの詳細ブロック
	// メタデータ: 元の報告者とリンク
	reporterUsername := ""
	if item.Reporter != nil {
		reporterUsername = p.properUsername(item.Reporter.Username)
	}
	// 元トラッカーへのリンクはリダイレクトサービスによる書き換えの対象外にします
	reporter := p.usernameAndAvatar(reporterUsername, false)
	body.WriteString("\n\n---\n<details><summary><i>Originally reported by " + reporter +
		`, imported from: <a class="original-jira-comment-link" href="` + item.Link + `" target="_blank">` + titleWithoutKey(item.Title) + "</a></i></summary>")
	body.WriteString("\n<i><ul>")

	// メタデータ: 担当者
	assigneeUsername := ""
	if item.Assignee != nil && item.Assignee.Name != "Unassigned" {
		assigneeUsername = p.properUsername(item.Assignee.Username)
		body.WriteString("\n<li><b>assignee</b>: " + p.usernameAndAvatar(assigneeUsername, false))
	}

	// メタデータ: ステータス
	if item.Status != nil {
		body.WriteString("\n<li><b>status</b>: " + *item.Status)
	}

	// メタデータ: 優先度
	if item.Priority != nil {
		body.WriteString("\n<li><b>priority</b>: " + *item.Priority)
		labels = append(labels, "priority:"+NormalizeLabel(*item.Priority))
	}

	// メタデータ: コンポーネント
	if len(item.Components) > 0 {
		body.WriteString("\n<li><b>component(s)</b>: " + strings.Join(item.Components, ", "))
	}

	// メタデータ: ラベル
	if len(item.SourceLabels()) > 0 {
		body.WriteString("\n<li><b>label(s)</b>: " + strings.Join(item.SourceLabels(), ", "))
	}

	// メタデータ: 解決状況
	if item.Resolution != nil {
		body.WriteString("\n<li><b>resolution</b>: " + *item.Resolution)
		labels = append(labels, "resolution:"+NormalizeLabel(*item.Resolution))
	}
	if item.Resolved != nil {
		body.WriteString("\n<li><b>resolved</b>: " + convertToISO(*item.Resolved))
	}

	body.WriteString(fmt.Sprintf("\n<li><b>votes</b>: %d", item.Votes))
	body.WriteString(fmt.Sprintf("\n<li><b>watchers</b>: %d", item.Watches))
	body.WriteString("\n<li><b>imported</b>: " + time.Now().Format("2006-01-02"))
	body.WriteString("\n</ul></i>")

	if item.DescriptionText() != "" {
		raw := strings.ReplaceAll(item.DescriptionText(), "<br/>", "")
		body.WriteString("\n<details><summary>Raw content of original issue</summary>\n\n<pre>\n" + raw + "</pre>\n</details>")
	}

	// 詳細ブロックここまで
	body.WriteString("\n</details>")

	// メタデータ: 環境
	if item.Environment != nil {
		body.WriteString(environmentBlock(*item.Environment))
	}

	// メタデータ: 添付ファイル
	if item.Attachments != nil {
		body.WriteString(p.attachmentsBlock(item.Attachments.Attachment))
	}

	// 検索しやすくするための隠し参照マーカー
	body.WriteString("\n\n<!-- ### Imported Jira references for easier searching -->")
	body.WriteString("\n<!-- [jira_issue_key=" + item.Key + "] -->")
	// 報告者と担当者はユーザー名とフルネームが異なることがあるため両方記録します
	body.WriteString("\n<!-- [reporter=" + reporterUsername + "] -->")
	if assigneeUsername != "" {
		body.WriteString("\n<!-- [assignee=" + assigneeUsername + "] -->")
	}
	// 報告者は"author"としても記録します
	body.WriteString("\n<!-- [author=" + reporterUsername + "] -->")
	for _, component := range item.Components {
		body.WriteString("\n<!-- [jira_component=" + component + "] -->")
	}
	for _, label := range item.SourceLabels() {
		body.WriteString("\n<!-- [jira_label=" + label + "] -->")
	}
	// 後から照合できるようインポーターのバージョンも埋め込みます
	body.WriteString("\n<!-- [importer_version=" + config.Version + "] -->")

	// 参照キーの抽出は書き換え前の本文に対して行います
	// browse URLは書き換え後の本文ではキーとして検出できなくなるためです
	rawBody := body.String()
	jiraLinks := FindJiraLinks(rawBody, p.config.JiraBaseURL, p.Name())

	// リダイレクトサービスが設定されていればissue参照をリンクに統一します
	bodyText := RewriteIssueReferences(rawBody,
		p.config.JiraBaseURL, p.Name(), p.config.RedirectionService)

	return &models.Issue{
		Title:         item.Title,
		Key:           item.Key,
		Body:          bodyText,
		JiraLinks:     jiraLinks,
		CreatedAt:     convertToISO(item.Created),
		ClosedAt:      closedAt,
		UpdatedAt:     convertToISO(item.Updated),
		Closed:        closed,
		Labels:        dedupeLabels(labels),
		WatchersCount: item.Watches,
		VotesCount:    item.Votes,
	}
}

// environmentBlock は環境情報のメタデータブロックを組み立てます
// 1行だけならリスト表記、複数行なら折りたたみのコードフェンスにします
func environmentBlock(environment string) string {
	value := strings.TrimSpace(environment)
	if value == "" {
		return ""
	}

	var lines []string
	for _, line := range strings.Split(value, "\n") {
		if strings.TrimSpace(strings.ReplaceAll(line, "<br/>", "")) != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) > 1 {
		return "\n<details><summary><i>environment</i></summary>\n\n```\n" + strings.Join(lines, "\n") + "\n```\n</details>"
	}
	return "\n<ul><li><i>environment</i>: <code>" + value + "</code></li></ul>"
}

// attachmentsBlock は添付ファイルのリンク一覧ブロックを組み立てます
// 移設マッピングに含まれる添付ファイルは移設先URLへ、それ以外は
// 元トラッカーの添付ファイルエンドポイントへリンクします
func (p *Project) attachmentsBlock(attachments []models.Attachment) string {
	if len(attachments) == 0 {
		return ""
	}

	var entries []string
	for _, attachment := range attachments {
		target := p.attachmentURL(attachment)
		link := fmt.Sprintf("[%s](%s)", attachment.Name, target)

		// 画像はインラインでも表示します
		if imageExtensions[strings.ToLower(filepath.Ext(attachment.Name))] {
			link = link + "\n  > !" + link
		}

		entries = append(entries, "\n- "+link)
	}

	summary := "1 attachment"
	if len(entries) > 1 {
		summary = fmt.Sprintf("%d attachments", len(entries))
	}
	return "\n<details><summary><i>" + summary + "</i></summary>\n" + strings.Join(entries, "") + "\n</details>"
}

// 添付ファイルのリンク先URLを決定します
func (p *Project) attachmentURL(attachment models.Attachment) string {
	if path, ok := p.mappings.AttachmentPaths[attachment.ID]; ok {
		if base := p.config.HostedArtifactBase(); base != "" {
			return base + "/" + path
		}
	}
	return fmt.Sprintf("%s/secure/attachment/%s/%s",
		p.config.JiraBaseURL, attachment.ID, url.PathEscape(attachment.Name))
}

// addSubtasks はサブタスクのリストを合成コメントとして追加します
func (p *Project) addSubtasks(item *models.Item, issue *models.Issue) {
	if item.Subtasks == nil || len(item.Subtasks.Subtask) == 0 {
		return
	}

	var list strings.Builder
	for _, subtask := range item.Subtasks.Subtask {
		list.WriteString("- " + subtask + "\n")
	}

	utils.LogInfo("-> サブタスク: %s", list.String())
	body := "Subtasks:\n\n" + list.String()
	issue.Comments = append(issue.Comments, models.Comment{
		CreatedAt: convertToISO(item.Created),
		Body:      body,
		JiraLinks: FindJiraLinks(body, p.config.JiraBaseURL, p.Name()),
	})
}

// addParentTask は親タスクへの参照を合成コメントとして追加します
func (p *Project) addParentTask(item *models.Item, issue *models.Issue) {
	if item.Parent == nil || *item.Parent == "" {
		return
	}

	utils.LogInfo("-> 親タスク: %s", *item.Parent)
	body := "Subtask of parent task " + *item.Parent
	issue.Comments = append(issue.Comments, models.Comment{
		CreatedAt: convertToISO(item.Created),
		Body:      body,
		JiraLinks: FindJiraLinks(body, p.config.JiraBaseURL, p.Name()),
	})
}

// addComments はエクスポートされたコメントを変換して追加します
func (p *Project) addComments(item *models.Item, issue *models.Issue) {
	if item.Comments == nil {
		return
	}

	for _, comment := range item.Comments.Comment {
		author := p.usernameAndAvatar(comment.Author, true)
		commentLink := item.Link + "?focusedId=" + comment.ID +
			"&page=com.atlassian.jira.plugin.system.issuetabpanels%3Acomment-tabpanel#comment-" + comment.ID

		cleaned := CleanMarkup(comment.Text)
		rawDetails := ""
		if comment.Text != "" {
			raw := strings.ReplaceAll(comment.Text, "<br/>", "")
			rawDetails = "\n<details><summary><sub><i>Raw content of original comment:</i></sub></summary>\n" +
				"\n<pre>" +
				"\n" + raw +
				"\n</pre>" +
				"\n</details>"
		}

		// 元コメントへのリンクはリダイレクトサービスによる書き換えの対象外にします
		assemble := func(text string) string {
			var body string
			if len(rawDetails) > maxRawCommentDetails {
				body = "<sup><i>" + author + `'s <a class="original-jira-comment-link" href="` + commentLink + `">comment</a>:</i></sup>` + "\n" + text
			} else {
				body = "\n<details><summary><i>" + author + `'s <a class="original-jira-comment-link" href="` + commentLink + `">comment</a>:</i></summary>` + "\n" +
					"\n" + rawDetails + "\n" +
					"\n</details>" +
					"\n" + text
			}

			// 検索しやすくするための隠し参照マーカー
			return body +
				"\n\n<!-- ### Imported Jira references for easier searching -->" +
				"\n<!-- [jira_issue_key=" + item.Key + "] -->" +
				"\n<!-- [jira_comment_id=" + comment.ID + "] -->" +
				"\n<!-- [comment_author=" + author + "] -->"
		}

		// 参照キーの抽出は書き換え前の本文に対して行います
		issue.Comments = append(issue.Comments, models.Comment{
			CreatedAt: convertToISO(comment.Created),
			Body: assemble(RewriteIssueReferences(cleaned,
				p.config.JiraBaseURL, p.Name(), p.config.RedirectionService)),
			JiraLinks: FindJiraLinks(assemble(cleaned), p.config.JiraBaseURL, p.Name()),
		})
	}
}

// addRemoteLinks はリモートリンクのマッピングに記録されたリンクを合成コメントとして追加します
func (p *Project) addRemoteLinks(item *models.Item, issue *models.Issue) {
	links, ok := p.mappings.RemoteLinks[item.Key]
	if !ok || len(links) == 0 {
		return
	}

	var body strings.Builder
	body.WriteString("Remote links from Jira:\n")
	for _, link := range links {
		body.WriteString("\n- " + link)
	}
	body.WriteString("\n\n<!-- ### Imported Jira references for easier searching -->")
	body.WriteString("\n<!-- [synthetic_comment=remote_links] -->")
	body.WriteString("\n<!-- [jira_issue_key=" + item.Key + "] -->")

	issue.Comments = append(issue.Comments, models.Comment{
		CreatedAt: convertToISO(item.Created),
		Body:      body.String(),
		JiraLinks: FindJiraLinks(body.String(), p.config.JiraBaseURL, p.Name()),
	})
}

// jiraTypeLabel はJiraのissueタイプをGitHubラベルに変換します
// 未知のタイプはラベルを生成しません
func jiraTypeLabel(issueType string) string {
	switch issueType {
	case "bug":
		return "bug"
	case "improvement", "new feature":
		return "enhancement"
	case "task", "story", "patch", "epic":
		return "jira-type:" + issueType
	}
	return ""
}

// JIRAUSER*アカウントを正式なユーザー名に読み替えます
func (p *Project) properUsername(name string) string {
	if strings.HasPrefix(name, "JIRAUSER") {
		if fixed, ok := p.mappings.FixedUsernames[name]; ok {
			return fixed
		}
	}
	return name
}

// usernameAndAvatar はユーザー名の表示用文字列を組み立てます
// アバターはホストされたアーティファクトリポジトリが設定されている場合のみ付与されます
// JIRAUSER*アカウントにはプロフィールページが存在しないためリンクしません
func (p *Project) usernameAndAvatar(name string, forComment bool) string {
	username := p.properUsername(name)

	avatar := ""
	if base := p.config.HostedArtifactBase(); base != "" {
		if path, ok := p.mappings.UserAvatars[username]; ok {
			avatar = fmt.Sprintf(`<img align="left" width="20" src="%s/%s" title="%s's avatar" /> `, base, path, username)
		}
	}

	if strings.HasPrefix(username, "JIRAUSER") || forComment {
		return avatar + username
	}
	return avatar + fmt.Sprintf(`<a href="%s/secure/ViewProfile.jspa?name=%s">%s</a>`, p.config.JiraBaseURL, name, username)
}

// titleWithoutKey は "[KEY] タイトル" 形式のタイトルからキー部分を取り除きます
func titleWithoutKey(title string) string {
	if idx := strings.Index(title, "]"); idx >= 0 && idx+2 <= len(title) {
		return title[idx+2:]
	}
	return title
}

// convertToISO はエクスポートのタイムスタンプをISO-8601形式に変換します
// 解釈できない場合は警告を出して入力をそのまま返します
func convertToISO(timestamp string) string {
	if timestamp == "" {
		return ""
	}

	formats := []string{
		"Mon, 2 Jan 2006 15:04:05 -0700",
		time.RFC1123Z,
		time.RFC1123,
		time.RFC3339,
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, timestamp); err == nil {
			return t.Format(time.RFC3339)
		}
	}

	utils.LogWarn("日付変換エラー: '%s'", timestamp)
	return timestamp
}

// dedupeLabels は出現順を保ったままラベルの重複と空値を取り除きます
func dedupeLabels(labels []string) []string {
	seen := make(map[string]bool)
	var unique []string
	for _, label := range labels {
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		unique = append(unique, label)
	}
	return unique
}

// truncate は文字列を先頭からn文字（rune単位）に切り詰めます
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
