package services

import (
	"html"
	"regexp"
	"strings"
)

// rewriteRule はJiraがレンダリングしたHTMLブロックの書き換え規則1件分です
type rewriteRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Jira固有のマークアップを非貪欲・複数行マッチで書き換える規則群
// 順序に意味があります: タイトル付きパネルの規則はタイトルなしパネルより先に
// 適用しないと、タイトルなしの規則が誤ってマッチしてしまいます
var rewriteRules = []rewriteRule{
	// {code}: Jiraがシンタックスハイライト用のspanを挿入するため特別扱い
	{
		regexp.MustCompile(`(?s)<div class="code panel" style="border-width: 1px;"><div class="codeContent panelContent">\n<pre class="code-[^"]*">(.*?)</pre>\n</div></div>`),
		"\n<pre>\n$1</pre>",
	},
	// {noformat}
	{
		regexp.MustCompile(`(?s)<div class="preformatted panel" style="border-width: 1px;"><div class="preformattedContent panelContent">\n<pre>(.*?)</pre>\n</div></div>`),
		"\n\n```\n$1```",
	},
	// {panel:title}
	{
		regexp.MustCompile(`(?s)<div class="panel" style="border-width: 1px;"><div class="panelHeader" style="border-bottom-width: 1px;"><b>(.*?)</b></div><div class="panelContent">\s*(.*?)\s*</div></div>`),
		"\n\n<table><tr><td><b>$1</b></td></tr><tr><td>$2</td></tr></table>\n",
	},
	// {panel}
	{
		regexp.MustCompile(`(?s)<div class="panel" style="border-width: 1px;"><div class="panelContent">\s*(.*?)\s*</div></div>`),
		"\n\n<table><tr><td>$1</td></tr></table>\n",
	},
}

// GitHub上で意図しないメンション通知を発生させないため、@の直後にゼロ幅スペースを挿入します
var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9._-]+)`)

// CleanMarkup はエクスポートされた本文のJira固有マークアップをMarkdown/HTML相当に書き換えます
// 規則にマッチしない部分はそのまま通過します
func CleanMarkup(s string) string {
	if s == "" {
		return ""
	}

	s = decodeHTMLEntities(s)

	for _, rule := range rewriteRules {
		s = rule.pattern.ReplaceAllString(s, rule.replacement)
	}

	s = mentionPattern.ReplaceAllString(s, "@​$1")
	return s
}

// HTMLエンティティをデコードします（8連続スペースのインデント除去も行います）
func decodeHTMLEntities(s string) string {
	s = strings.ReplaceAll(s, strings.Repeat(" ", 8), "")
	return html.UnescapeString(s)
}

// ReplaceJiraURLsWithRedirection はJiraのbrowse URLをリダイレクトサービスのURLに書き換えます
// クエリ文字列は維持され、"original-jira-comment-link" クラス付きのリンクは書き換えません
// 例: https://issues.jenkins.io/browse/INFRA-123?focusedId=456
//     -> https://issue-redirect.jenkins.io/issue/INFRA/123?focusedId=456
func ReplaceJiraURLsWithRedirection(s, jiraBaseURL, projectName, redirectionService string) string {
	if s == "" || redirectionService == "" {
		return s
	}

	pattern := regexp.MustCompile(
		`(<a class="original-jira-comment-link" href="(?:https?://)?)?` +
			`(?:https?://)?` + regexp.QuoteMeta(stripScheme(jiraBaseURL)) +
			`/browse/` + regexp.QuoteMeta(projectName) + `-(\d+)(\?[^\s<>"]*)?`)

	return pattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := pattern.FindStringSubmatch(match)
		if groups[1] != "" {
			// 除外クラス付きリンクはそのまま
			return match
		}
		return redirectionService + "/" + projectName + "/" + groups[2] + groups[3]
	})
}

// ReplacePlainJiraKeysWithLinks はプレーンテキスト中のissueキー参照をMarkdownリンクに書き換えます
// 既存のリンクやHTMLタグの内側にあるキーは書き換えません
// 例: INFRA-123 -> [INFRA-123](https://issue-redirect.jenkins.io/issue/INFRA/123)
func ReplacePlainJiraKeysWithLinks(s, projectName, redirectionService string) string {
	if s == "" || redirectionService == "" {
		return s
	}

	pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(projectName) + `-(\d+)\b`)

	var b strings.Builder
	last := 0
	for _, loc := range pattern.FindAllStringSubmatchIndex(s, -1) {
		start, end := loc[0], loc[1]
		if plainKeyExcluded(s, start, end) {
			continue
		}

		fullKey := s[start:end]
		issueNumber := s[loc[2]:loc[3]]
		b.WriteString(s[last:start])
		b.WriteString("[" + fullKey + "](" + redirectionService + "/" + projectName + "/" + issueNumber + ")")
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}

// キー参照が既にリンクやタグの中にある場合に書き換えを除外します
func plainKeyExcluded(s string, start, end int) bool {
	prefix := s[:start]
	if strings.HasSuffix(prefix, "browse/") || strings.HasSuffix(prefix, `href="`) {
		return true
	}
	if len(prefix) > 0 && strings.ContainsRune("[(>", rune(prefix[len(prefix)-1])) {
		return true
	}
	if end < len(s) && strings.ContainsRune("])<", rune(s[end])) {
		return true
	}
	return false
}

// RewriteIssueReferences は本文中のissue参照をリダイレクトサービス経由のリンクに統一します
// まずbrowse URLを書き換え、その後プレーンテキストのキー参照をリンク化します
func RewriteIssueReferences(s, jiraBaseURL, projectName, redirectionService string) string {
	s = ReplaceJiraURLsWithRedirection(s, jiraBaseURL, projectName, redirectionService)
	return ReplacePlainJiraKeysWithLinks(s, projectName, redirectionService)
}

// URLからスキームを取り除きます
func stripScheme(url string) string {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	return url
}
