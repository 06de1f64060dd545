package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jiratogithub/models"
)

func TestDryRunSinkWriteIssue(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "dry-run")
	sink := NewDryRunSink(folder)

	doc := &models.ImportRequest{
		Issue: &models.Issue{
			Title:     "[INFRA-1] Broken mirror",
			Body:      "Something is broken",
			CreatedAt: "2023-01-02T10:00:00Z",
			Closed:    true,
			ClosedAt:  "2023-01-03T10:00:00Z",
			Labels:    []string{"imported-jira-issue", "bug"},
		},
		Comments: []models.Comment{
			{CreatedAt: "2023-01-02T11:00:00Z", Body: "A comment"},
		},
	}

	id, err := sink.WriteIssue(doc, "INFRA-1")
	require.NoError(t, err)
	assert.Equal(t, -1, id)

	// 2件目のIDは-2（実行内で一意な負の連番）
	id, err = sink.WriteIssue(&models.ImportRequest{
		Issue:    &models.Issue{Title: "[INFRA-2] Second"},
		Comments: []models.Comment{},
	}, "INFRA-2")
	require.NoError(t, err)
	assert.Equal(t, -2, id)

	// 保存されたJSONは送信ドキュメントと同じ構造
	data, err := os.ReadFile(filepath.Join(folder, "INFRA-1.json"))
	require.NoError(t, err)

	var saved models.ImportRequest
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, "[INFRA-1] Broken mirror", saved.Issue.Title)
	assert.Len(t, saved.Comments, 1)

	// Markdown版にはタイトル・メタデータ・コメントが含まれる
	md, err := os.ReadFile(filepath.Join(folder, "INFRA-1.md"))
	require.NoError(t, err)
	content := string(md)
	assert.Contains(t, content, "# [INFRA-1] Broken mirror")
	assert.Contains(t, content, "**Jira Key:** INFRA-1")
	assert.Contains(t, content, "**State:** closed")
	assert.Contains(t, content, "**Labels:** imported-jira-issue, bug")
	assert.Contains(t, content, "## Comments (1)")
	assert.Contains(t, content, "A comment")
}

func TestDryRunSinkMarkdownWithoutDescription(t *testing.T) {
	sink := NewDryRunSink(filepath.Join(t.TempDir(), "dry-run"))

	_, err := sink.WriteIssue(&models.ImportRequest{
		Issue:    &models.Issue{Title: "[INFRA-3] Empty body"},
		Comments: []models.Comment{},
	}, "INFRA-3")
	require.NoError(t, err)

	md, err := os.ReadFile(filepath.Join(sink.folder, "INFRA-3.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "_No description provided_")
}

func TestDryRunSinkWriteIndex(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "dry-run")
	sink := NewDryRunSink(folder)

	issues := []*models.Issue{
		{Title: "Open | one", Labels: []string{"bug"}, CreatedAt: "2023-01-01T00:00:00Z"},
		{Title: "Closed two", Closed: true, ClosedAt: "2023-01-02T00:00:00Z", Labels: []string{"bug", "wiki"}},
	}
	for i, issue := range issues {
		_, err := sink.WriteIssue(&models.ImportRequest{Issue: issue, Comments: []models.Comment{}},
			[]string{"INFRA-1", "INFRA-2"}[i])
		require.NoError(t, err)
	}

	require.NoError(t, sink.WriteIndex())

	data, err := os.ReadFile(filepath.Join(folder, "index.md"))
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "Total issues: 2")
	assert.Contains(t, content, "[INFRA-1](INFRA-1.md)")
	assert.Contains(t, content, "[INFRA-2](INFRA-2.md)")

	// タイトル中のパイプはテーブルを壊さないようエスケープされる
	assert.Contains(t, content, `Open \| one`)

	assert.Contains(t, content, "- **Open:** 1")
	assert.Contains(t, content, "- **Closed:** 1")

	// ラベルは件数の降順
	assert.Contains(t, content, "- **bug:** 2")
	assert.Contains(t, content, "- **wiki:** 1")
	assert.Less(t, strings.Index(content, "**bug:**"), strings.Index(content, "**wiki:**"))
}

func TestDryRunSinkWriteIndexEmpty(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "dry-run")
	sink := NewDryRunSink(folder)

	// issueが1件もなければインデックスは生成されない
	require.NoError(t, sink.WriteIndex())
	assert.NoFileExists(t, filepath.Join(folder, "index.md"))
}
