package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanMarkupCodePanel(t *testing.T) {
	input := `<div class="code panel" style="border-width: 1px;"><div class="codeContent panelContent">
<pre class="code-java">System.out.println("hello");
</pre>
</div></div>`

	result := CleanMarkup(input)
	assert.Equal(t, "\n<pre>\nSystem.out.println(\"hello\");\n</pre>", result)
}

func TestCleanMarkupNoformat(t *testing.T) {
	input := `<div class="preformatted panel" style="border-width: 1px;"><div class="preformattedContent panelContent">
<pre>raw output
</pre>
</div></div>`

	result := CleanMarkup(input)
	assert.Equal(t, "\n\n```\nraw output\n```", result)
}

func TestCleanMarkupPanels(t *testing.T) {
	t.Run("タイトル付きパネル", func(t *testing.T) {
		input := `<div class="panel" style="border-width: 1px;"><div class="panelHeader" style="border-bottom-width: 1px;"><b>Note</b></div><div class="panelContent">content here</div></div>`
		result := CleanMarkup(input)
		assert.Contains(t, result, "<table><tr><td><b>Note</b></td></tr><tr><td>content here</td></tr></table>")
	})

	t.Run("タイトルなしパネル", func(t *testing.T) {
		input := `<div class="panel" style="border-width: 1px;"><div class="panelContent">plain content</div></div>`
		result := CleanMarkup(input)
		assert.Contains(t, result, "<table><tr><td>plain content</td></tr></table>")
		assert.NotContains(t, result, "<b>")
	})
}

func TestCleanMarkupMentionEscape(t *testing.T) {
	result := CleanMarkup("ping @octocat please")

	// @の直後にゼロ幅スペースが入り、GitHub上でメンション通知が発生しない
	assert.Equal(t, "ping @​octocat please", result)
	assert.NotContains(t, result, "@octocat")
}

func TestCleanMarkupEntityDecode(t *testing.T) {
	result := CleanMarkup("a &amp; b &lt;tag&gt;")
	assert.Equal(t, "a & b <tag>", result)
}

func TestCleanMarkupEmptyInput(t *testing.T) {
	assert.Equal(t, "", CleanMarkup(""))
}

func TestCleanMarkupPassthrough(t *testing.T) {
	// 規則にマッチしない部分はそのまま通過する
	input := "just a plain sentence without markup"
	assert.Equal(t, input, CleanMarkup(input))
}

func TestReplaceJiraURLsWithRedirection(t *testing.T) {
	const jiraBase = "https://issues.jenkins.io"
	const service = "https://issue-redirect.jenkins.io/issue"

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"httpsのURL",
			"https://issues.jenkins.io/browse/INFRA-123",
			"https://issue-redirect.jenkins.io/issue/INFRA/123",
		},
		{
			"httpのURL",
			"http://issues.jenkins.io/browse/INFRA-456",
			"https://issue-redirect.jenkins.io/issue/INFRA/456",
		},
		{
			"スキームなしのURL",
			"issues.jenkins.io/browse/INFRA-789",
			"https://issue-redirect.jenkins.io/issue/INFRA/789",
		},
		{
			"別プロジェクトのURLは書き換えない",
			"https://issues.jenkins.io/browse/JENKINS-456",
			"https://issues.jenkins.io/browse/JENKINS-456",
		},
		{
			"クエリ文字列は維持される",
			"https://issues.jenkins.io/browse/INFRA-123?focusedId=456",
			"https://issue-redirect.jenkins.io/issue/INFRA/123?focusedId=456",
		},
		{
			"複雑なクエリ文字列",
			"https://issues.jenkins.io/browse/INFRA-123?focusedId=457400&page=com.atlassian.jira.plugin.system.issuetabpanels%3Acomment-tabpanel#comment-457400",
			"https://issue-redirect.jenkins.io/issue/INFRA/123?focusedId=457400&page=com.atlassian.jira.plugin.system.issuetabpanels%3Acomment-tabpanel#comment-457400",
		},
		{
			"文中のURL",
			"See https://issues.jenkins.io/browse/INFRA-123 for details",
			"See https://issue-redirect.jenkins.io/issue/INFRA/123 for details",
		},
		{
			"通常のHTMLリンクは書き換える",
			`<a href="https://issues.jenkins.io/browse/INFRA-999">INFRA-999</a>`,
			`<a href="https://issue-redirect.jenkins.io/issue/INFRA/999">INFRA-999</a>`,
		},
		{
			"除外クラス付きリンクは書き換えない",
			`<a class="original-jira-comment-link" href="https://issues.jenkins.io/browse/INFRA-123">original link</a>`,
			`<a class="original-jira-comment-link" href="https://issues.jenkins.io/browse/INFRA-123">original link</a>`,
		},
		{
			"除外クラス付きリンク（クエリ文字列あり）も書き換えない",
			`<a class="original-jira-comment-link" href="https://issues.jenkins.io/browse/INFRA-456?focusedId=789#comment-789">original comment</a>`,
			`<a class="original-jira-comment-link" href="https://issues.jenkins.io/browse/INFRA-456?focusedId=789#comment-789">original comment</a>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplaceJiraURLsWithRedirection(tt.input, jiraBase, "INFRA", service))
		})
	}
}

func TestReplaceJiraURLsWithRedirectionDisabled(t *testing.T) {
	// リダイレクトサービス未設定の場合は何も変えない
	input := "https://issues.jenkins.io/browse/INFRA-123"
	assert.Equal(t, input, ReplaceJiraURLsWithRedirection(input, "https://issues.jenkins.io", "INFRA", ""))
}

func TestReplacePlainJiraKeysWithLinks(t *testing.T) {
	const service = "https://issue-redirect.jenkins.io/issue"

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"素のキー参照はリンク化される",
			"See INFRA-123 for details",
			"See [INFRA-123](https://issue-redirect.jenkins.io/issue/INFRA/123) for details",
		},
		{
			"複数のキー参照",
			"Related to INFRA-1 and INFRA-2",
			"Related to [INFRA-1](https://issue-redirect.jenkins.io/issue/INFRA/1) and [INFRA-2](https://issue-redirect.jenkins.io/issue/INFRA/2)",
		},
		{
			"別プロジェクトのキーは対象外",
			"JENKINS-456 should not match",
			"JENKINS-456 should not match",
		},
		{
			"既存のMarkdownリンクは変更しない",
			"[INFRA-123](https://example.com)",
			"[INFRA-123](https://example.com)",
		},
		{
			"既存のHTMLリンク内は変更しない",
			`<a href="url">INFRA-456</a>`,
			`<a href="url">INFRA-456</a>`,
		},
		{
			"素の参照とリンク済み参照の混在",
			"See INFRA-100 and [INFRA-200](url)",
			"See [INFRA-100](https://issue-redirect.jenkins.io/issue/INFRA/100) and [INFRA-200](url)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplacePlainJiraKeysWithLinks(tt.input, "INFRA", service))
		})
	}
}

func TestRewriteIssueReferences(t *testing.T) {
	const jiraBase = "https://issues.jenkins.io"
	const service = "https://issue-redirect.jenkins.io/issue"

	t.Run("URLと素のキー参照の混在", func(t *testing.T) {
		input := "See INFRA-1 and https://issues.jenkins.io/browse/INFRA-2 for details"
		want := "See [INFRA-1](https://issue-redirect.jenkins.io/issue/INFRA/1) and https://issue-redirect.jenkins.io/issue/INFRA/2 for details"
		assert.Equal(t, want, RewriteIssueReferences(input, jiraBase, "INFRA", service))
	})

	t.Run("除外クラス付きリンクと素のキー参照の混在", func(t *testing.T) {
		input := `See INFRA-1 and <a class="original-jira-comment-link" href="https://issues.jenkins.io/browse/INFRA-2?focusedId=3">original</a>`
		result := RewriteIssueReferences(input, jiraBase, "INFRA", service)
		assert.True(t, strings.HasPrefix(result, "See [INFRA-1](https://issue-redirect.jenkins.io/issue/INFRA/1)"))
		assert.Contains(t, result, `href="https://issues.jenkins.io/browse/INFRA-2?focusedId=3"`)
	})

	t.Run("隠し参照マーカーは書き換えない", func(t *testing.T) {
		input := "<!-- [jira_issue_key=INFRA-1] -->"
		assert.Equal(t, input, RewriteIssueReferences(input, jiraBase, "INFRA", service))
	})
}
