package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiratogithub/config"
	"jiratogithub/models"
)

// テスト用の最小構成のプロジェクト
func newTestProject(t *testing.T) *Project {
	t.Helper()
	cfg := &config.Config{
		JiraBaseURL:              "https://issues.jenkins.io",
		JiraProjectName:          "INFRA",
		JiraDoneCategoryID:       "3",
		GithubAccount:            "jenkins-infra",
		GithubRepo:               "helpdesk",
		IncludeComponentInLabels: true,
	}
	mappings := Mappings{
		Labels:         map[string]string{"confluence": "wiki"},
		AllowedLabels:  []string{"wiki", "mirror"},
		FixedUsernames: map[string]string{"JIRAUSER123": "someuser"},
		UserAvatars:    map[string]string{},
		RemoteLinks:    map[string][]string{},
	}
	return NewProject(cfg, mappings)
}

func strPtr(s string) *string {
	return &s
}

// Bug1件をエクスポートitemからissueに正規化する一連の流れを検証します
func TestNormalizeItemBug(t *testing.T) {
	project := newTestProject(t)

	description := `Something is broken.<div class="code panel" style="border-width: 1px;"><div class="codeContent panelContent">
<pre class="code-java">stack trace here</pre>
</div></div>`

	item := &models.Item{
		Project:        &models.ProjectRef{Key: "INFRA", Name: "Infrastructure"},
		Key:            "INFRA-1",
		Title:          "[INFRA-1] Mirror sync fails",
		Link:           "https://issues.jenkins.io/browse/INFRA-1",
		Type:           "Bug",
		Status:         strPtr("Resolved"),
		StatusCategory: &models.StatusCategory{ID: "3"},
		Priority:       strPtr("Major"),
		Resolution:     strPtr("Fixed"),
		Reporter:       &models.UserRef{Username: "alice", Name: "Alice"},
		Assignee:       &models.UserRef{Username: "bob", Name: "Bob"},
		Created:        "Mon, 2 Jan 2023 10:00:00 +0000",
		Updated:        "Tue, 3 Jan 2023 10:00:00 +0000",
		Resolved:       strPtr("Tue, 3 Jan 2023 10:00:00 +0000"),
		Votes:          2,
		Watches:        5,
		Components:     []string{"mirror"},
		Labels:         &models.LabelList{Label: []string{"confluence"}},
		Description:    &description,
	}

	project.AddItem(item)

	require.Len(t, project.Issues(), 1)
	issue := project.Issues()[0]

	assert.Equal(t, "INFRA-1", issue.Key)
	assert.Equal(t, "[INFRA-1] Mirror sync fails", issue.Title)

	// Doneカテゴリのissueはclosedになり、closed_atが設定される
	assert.True(t, issue.Closed)
	assert.Equal(t, "2023-01-03T10:00:00Z", issue.ClosedAt)
	assert.Equal(t, "2023-01-02T10:00:00Z", issue.CreatedAt)

	// ラベル: センチネル・コンポーネント・タイプ・読み替え済みラベル・優先度・解決状況
	assert.Contains(t, issue.Labels, models.SentinelLabel)
	assert.Contains(t, issue.Labels, "component:mirror")
	assert.Contains(t, issue.Labels, "bug")
	assert.Contains(t, issue.Labels, "wiki")
	assert.Contains(t, issue.Labels, "priority:major")
	assert.Contains(t, issue.Labels, "resolution:fixed")

	// 本文: マークアップが書き換えられ、元のdivは残らない
	assert.Contains(t, issue.Body, "<pre>\nstack trace here</pre>")
	assert.NotContains(t, issue.Body, `class="code panel"`)

	// 本文: メタデータブロック
	assert.Contains(t, issue.Body, "Originally reported by")
	assert.Contains(t, issue.Body, `<a class="original-jira-comment-link" href="https://issues.jenkins.io/browse/INFRA-1" target="_blank">Mirror sync fails</a>`)
	assert.Contains(t, issue.Body, "<li><b>status</b>: Resolved")
	assert.Contains(t, issue.Body, "<li><b>votes</b>: 2")
	assert.Contains(t, issue.Body, "<li><b>watchers</b>: 5")

	// 本文: 隠し参照マーカー
	assert.Contains(t, issue.Body, "<!-- [jira_issue_key=INFRA-1] -->")
	assert.Contains(t, issue.Body, "<!-- [reporter=alice] -->")
	assert.Contains(t, issue.Body, "<!-- [assignee=bob] -->")
	assert.Contains(t, issue.Body, "<!-- [jira_component=mirror] -->")
	assert.Contains(t, issue.Body, "<!-- [importer_version="+config.Version+"] -->")

	assert.Equal(t, 5, issue.WatchersCount)
	assert.Equal(t, 2, issue.VotesCount)
}

func TestNormalizeItemOpenIssue(t *testing.T) {
	project := newTestProject(t)

	item := &models.Item{
		Key:            "INFRA-2",
		Title:          "[INFRA-2] Open task",
		Link:           "https://issues.jenkins.io/browse/INFRA-2",
		Type:           "Task",
		StatusCategory: &models.StatusCategory{ID: "2"},
		Reporter:       &models.UserRef{Username: "alice", Name: "Alice"},
		Created:        "Mon, 2 Jan 2023 10:00:00 +0000",
		Updated:        "Mon, 2 Jan 2023 10:00:00 +0000",
	}

	project.AddItem(item)

	require.Len(t, project.Issues(), 1)
	issue := project.Issues()[0]

	assert.False(t, issue.Closed)
	assert.Empty(t, issue.ClosedAt)
	assert.Contains(t, issue.Labels, "jira-type:task")
}

func TestNormalizeItemSkipsForeignProject(t *testing.T) {
	project := newTestProject(t)

	project.AddItem(&models.Item{
		Project: &models.ProjectRef{Key: "JENKINS"},
		Key:     "JENKINS-1",
		Title:   "[JENKINS-1] Other project",
	})

	assert.Empty(t, project.Issues())
}

func TestNormalizeItemUnassigned(t *testing.T) {
	project := newTestProject(t)

	project.AddItem(&models.Item{
		Key:      "INFRA-3",
		Title:    "[INFRA-3] Nobody's task",
		Link:     "https://issues.jenkins.io/browse/INFRA-3",
		Type:     "Task",
		Reporter: &models.UserRef{Username: "alice", Name: "Alice"},
		Assignee: &models.UserRef{Username: "", Name: "Unassigned"},
		Created:  "Mon, 2 Jan 2023 10:00:00 +0000",
		Updated:  "Mon, 2 Jan 2023 10:00:00 +0000",
	})

	require.Len(t, project.Issues(), 1)
	issue := project.Issues()[0]

	// 未割り当てのissueにはassigneeメタデータが出力されない
	assert.NotContains(t, issue.Body, "<b>assignee</b>")
	assert.NotContains(t, issue.Body, "[assignee=")
}

func TestAddItemComments(t *testing.T) {
	project := newTestProject(t)

	project.AddItem(&models.Item{
		Key:      "INFRA-4",
		Title:    "[INFRA-4] With comments",
		Link:     "https://issues.jenkins.io/browse/INFRA-4",
		Type:     "Bug",
		Reporter: &models.UserRef{Username: "alice", Name: "Alice"},
		Created:  "Mon, 2 Jan 2023 10:00:00 +0000",
		Updated:  "Mon, 2 Jan 2023 10:00:00 +0000",
		Comments: &models.CommentList{Comment: []models.ItemComment{
			{ID: "100", Author: "JIRAUSER123", Created: "Mon, 2 Jan 2023 11:00:00 +0000", Text: "First comment"},
		}},
	})

	require.Len(t, project.Issues(), 1)
	issue := project.Issues()[0]
	require.Len(t, issue.Comments, 1)

	comment := issue.Comments[0]
	assert.Equal(t, "2023-01-02T11:00:00Z", comment.CreatedAt)
	assert.Contains(t, comment.Body, "First comment")

	// JIRAUSER*アカウントは正式なユーザー名に読み替えられる
	assert.Contains(t, comment.Body, "someuser")

	// 元コメントへのリンクには書き換え除外クラスが付く
	assert.Contains(t, comment.Body, `<a class="original-jira-comment-link" href="https://issues.jenkins.io/browse/INFRA-4?focusedId=100`)

	// 隠し参照マーカー
	assert.Contains(t, comment.Body, "<!-- [jira_comment_id=100] -->")
}

// リダイレクトサービス設定時でも参照キーの抽出が欠落しないことを検証します
// browse URLは書き換え後の本文からはキーとして検出できないため、
// 抽出は書き換え前のテキストに対して行われる必要があります
func TestAddItemCapturesLinksBeforeRewrite(t *testing.T) {
	project := newTestProject(t)
	project.config.RedirectionService = "https://issredir.example.com"

	description := "Blocked by https://issues.jenkins.io/browse/INFRA-2 which must land first."

	project.AddItem(&models.Item{
		Key:         "INFRA-1",
		Title:       "[INFRA-1] Mirror sync fails",
		Link:        "https://issues.jenkins.io/browse/INFRA-1",
		Type:        "Bug",
		Reporter:    &models.UserRef{Username: "alice", Name: "Alice"},
		Created:     "Mon, 2 Jan 2023 10:00:00 +0000",
		Updated:     "Mon, 2 Jan 2023 10:00:00 +0000",
		Description: &description,
		Comments: &models.CommentList{Comment: []models.ItemComment{
			{ID: "100", Author: "alice", Created: "Mon, 2 Jan 2023 11:00:00 +0000",
				Text: "See also https://issues.jenkins.io/browse/INFRA-3"},
		}},
	})

	require.Len(t, project.Issues(), 1)
	issue := project.Issues()[0]

	// 本文中のbrowse URLはリダイレクトサービスのリンクに書き換えられている
	assert.Contains(t, issue.Body, "https://issredir.example.com/INFRA/2")
	assert.NotContains(t, issue.Body, "https://issues.jenkins.io/browse/INFRA-2")

	// 書き換え後もURLでしか参照されていなかったキーが抽出結果に残る
	assert.Contains(t, issue.JiraLinks, "INFRA-2")

	// 隠しマーカー由来の自己参照も従来どおり含まれる
	assert.Contains(t, issue.JiraLinks, "INFRA-1")

	// 「imported from」リンクは元トラッカーを指したまま書き換えられない
	assert.Contains(t, issue.Body,
		`<a class="original-jira-comment-link" href="https://issues.jenkins.io/browse/INFRA-1" target="_blank">`)

	// コメントも同様に書き換え前のテキストから抽出される
	require.Len(t, issue.Comments, 1)
	comment := issue.Comments[0]
	assert.Contains(t, comment.Body, "https://issredir.example.com/INFRA/3")
	assert.Contains(t, comment.JiraLinks, "INFRA-3")
}

func TestAddItemSubtasksAndParent(t *testing.T) {
	project := newTestProject(t)

	project.AddItem(&models.Item{
		Key:      "INFRA-5",
		Title:    "[INFRA-5] Parent with subtasks",
		Link:     "https://issues.jenkins.io/browse/INFRA-5",
		Type:     "Task",
		Reporter: &models.UserRef{Username: "alice", Name: "Alice"},
		Created:  "Mon, 2 Jan 2023 10:00:00 +0000",
		Updated:  "Mon, 2 Jan 2023 10:00:00 +0000",
		Subtasks: &models.SubtaskList{Subtask: []string{"INFRA-6", "INFRA-7"}},
		Parent:   strPtr("INFRA-4"),
	})

	require.Len(t, project.Issues(), 1)
	issue := project.Issues()[0]
	require.Len(t, issue.Comments, 2)

	assert.Contains(t, issue.Comments[0].Body, "Subtasks:")
	assert.Contains(t, issue.Comments[0].Body, "- INFRA-6")
	assert.Contains(t, issue.Comments[0].Body, "- INFRA-7")
	assert.Contains(t, issue.Comments[1].Body, "Subtask of parent task INFRA-4")
}

func TestAddItemRelationships(t *testing.T) {
	project := newTestProject(t)

	project.AddItem(&models.Item{
		Key:      "INFRA-8",
		Title:    "[INFRA-8] Linked issue",
		Link:     "https://issues.jenkins.io/browse/INFRA-8",
		Type:     "Task",
		Reporter: &models.UserRef{Username: "alice", Name: "Alice"},
		Created:  "Mon, 2 Jan 2023 10:00:00 +0000",
		Updated:  "Mon, 2 Jan 2023 10:00:00 +0000",
		IssueLinks: &models.IssueLinkList{IssueLinkType: []models.IssueLinkType{
			{
				Name: "Blocks",
				OutwardLinks: []models.LinkGroup{{
					Description: "blocks",
					IssueLink:   []models.IssueLink{{IssueKey: []string{"INFRA-9"}}},
				}},
				InwardLinks: []models.LinkGroup{{
					Description: "is blocked by",
					IssueLink:   []models.IssueLink{{IssueKey: []string{"INFRA-10"}}},
				}},
			},
		}},
		CustomFields: &models.CustomFields{CustomField: []models.CustomField{
			{Key: "com.pyxis.greenhopper.jira:gh-epic-link", Values: models.CustomFieldValues{Value: []string{"INFRA-99"}}},
		}},
	})

	require.Len(t, project.Issues(), 1)
	issue := project.Issues()[0]

	assert.Equal(t, []string{"INFRA-9"}, issue.Blocks)
	assert.Equal(t, "INFRA-99", issue.EpicKey)
}

func TestEnvironmentBlock(t *testing.T) {
	t.Run("1行なら箇条書き", func(t *testing.T) {
		result := environmentBlock("Ubuntu 22.04")
		assert.Contains(t, result, "<ul><li><i>environment</i>: <code>Ubuntu 22.04</code></li></ul>")
	})

	t.Run("複数行なら折りたたみ", func(t *testing.T) {
		result := environmentBlock("OS: Linux\nJava: 17")
		assert.Contains(t, result, "<details><summary><i>environment</i></summary>")
		assert.Contains(t, result, "```\nOS: Linux\nJava: 17\n```")
	})

	t.Run("空なら出力しない", func(t *testing.T) {
		assert.Empty(t, environmentBlock("  "))
	})
}

func TestAttachmentsBlock(t *testing.T) {
	project := newTestProject(t)

	t.Run("画像はインライン表示される", func(t *testing.T) {
		block := project.attachmentsBlock([]models.Attachment{
			{ID: "111", Name: "screenshot.png"},
		})
		assert.Contains(t, block, "1 attachment")
		assert.Contains(t, block, "[screenshot.png](https://issues.jenkins.io/secure/attachment/111/screenshot.png)")
		assert.Contains(t, block, "> ![screenshot.png]")
	})

	t.Run("それ以外はリンクのみ", func(t *testing.T) {
		block := project.attachmentsBlock([]models.Attachment{
			{ID: "222", Name: "log.txt"},
			{ID: "333", Name: "config.xml"},
		})
		assert.Contains(t, block, "2 attachments")
		assert.NotContains(t, block, "> !")
	})

	t.Run("ファイル名はURLエスケープされる", func(t *testing.T) {
		block := project.attachmentsBlock([]models.Attachment{
			{ID: "444", Name: "my file.txt"},
		})
		assert.Contains(t, block, "my%20file.txt")
	})
}

func TestJiraTypeLabel(t *testing.T) {
	assert.Equal(t, "bug", jiraTypeLabel("bug"))
	assert.Equal(t, "enhancement", jiraTypeLabel("improvement"))
	assert.Equal(t, "enhancement", jiraTypeLabel("new feature"))
	assert.Equal(t, "jira-type:task", jiraTypeLabel("task"))
	assert.Equal(t, "jira-type:epic", jiraTypeLabel("epic"))

	// 未知のタイプはラベルを生成しない
	assert.Equal(t, "", jiraTypeLabel("mystery"))
}

func TestConvertToISO(t *testing.T) {
	assert.Equal(t, "2023-01-02T10:00:00Z", convertToISO("Mon, 2 Jan 2023 10:00:00 +0000"))
	assert.Equal(t, "2023-06-15T08:30:00+02:00", convertToISO("Thu, 15 Jun 2023 08:30:00 +0200"))
	assert.Empty(t, convertToISO(""))

	// 解釈できない日付は入力のまま返る
	assert.Equal(t, "not a date", convertToISO("not a date"))
}

func TestTitleWithoutKey(t *testing.T) {
	assert.Equal(t, "Mirror sync fails", titleWithoutKey("[INFRA-1] Mirror sync fails"))
	assert.Equal(t, "no key here", titleWithoutKey("no key here"))
}

func TestDedupeLabels(t *testing.T) {
	result := dedupeLabels([]string{"bug", "", "wiki", "bug", "mirror", "wiki"})
	assert.Equal(t, []string{"bug", "wiki", "mirror"}, result)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "abc", truncate("abc", 10))

	// rune単位で切り詰めるためマルチバイト文字が壊れない
	assert.Equal(t, "あい", truncate("あいうえお", 2))
}

func TestUsernameAndAvatar(t *testing.T) {
	project := newTestProject(t)

	t.Run("通常ユーザーはプロフィールへのリンク", func(t *testing.T) {
		result := project.usernameAndAvatar("alice", false)
		assert.Equal(t, `<a href="https://issues.jenkins.io/secure/ViewProfile.jspa?name=alice">alice</a>`, result)
	})

	t.Run("コメント内はリンクなし", func(t *testing.T) {
		assert.Equal(t, "alice", project.usernameAndAvatar("alice", true))
	})

	t.Run("JIRAUSERは正式名に読み替えてリンクなし", func(t *testing.T) {
		result := project.usernameAndAvatar("JIRAUSER123", false)
		assert.Equal(t, "someuser", result)
	})

	t.Run("未知のJIRAUSERはそのまま", func(t *testing.T) {
		result := project.usernameAndAvatar("JIRAUSER999", false)
		assert.Equal(t, "JIRAUSER999", result)
	})
}

func TestProjectAllLabels(t *testing.T) {
	project := newTestProject(t)

	project.AddItem(&models.Item{
		Key:        "INFRA-1",
		Title:      "[INFRA-1] One",
		Link:       "https://issues.jenkins.io/browse/INFRA-1",
		Type:       "Bug",
		Reporter:   &models.UserRef{Username: "alice", Name: "Alice"},
		Created:    "Mon, 2 Jan 2023 10:00:00 +0000",
		Updated:    "Mon, 2 Jan 2023 10:00:00 +0000",
		Components: []string{"mirror"},
		Labels:     &models.LabelList{Label: []string{"confluence"}},
	})

	labels := project.AllLabels()

	// センチネルラベル・コンポーネント・ソースラベルがすべて含まれ、重複なくソートされている
	assert.Contains(t, labels, models.SentinelLabel)
	assert.Contains(t, labels, "mirror")
	assert.Contains(t, labels, "confluence")
	for i := 1; i < len(labels); i++ {
		assert.True(t, strings.Compare(labels[i-1], labels[i]) < 0, "ラベルはソートされ重複がないこと")
	}
}
