package models

// SentinelLabel はインポートされた全issueに必ず付与されるラベルです
const SentinelLabel = "imported-jira-issue"

// Issue は移行の基本単位となる正規化済みissueを表します
// JSONタグ付きフィールドのみがGitHub Issue Import APIへの送信ドキュメントに含まれます
type Issue struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	CreatedAt string   `json:"created_at"`
	ClosedAt  string   `json:"closed_at,omitempty"`
	UpdatedAt string   `json:"updated_at"`
	Closed    bool     `json:"closed"`
	Labels    []string `json:"labels"`
	Milestone int      `json:"milestone,omitempty"`

	// ここから下はパイプライン内部の管理用フィールドで、送信ドキュメントには含まれません
	Key           string    `json:"-"`
	MilestoneName string    `json:"-"`
	Comments      []Comment `json:"-"`

	// Relationship Resolverがコメントへ変換するまでの一時的な関係エッジ
	Duplicates     []string `json:"-"`
	IsDuplicatedBy []string `json:"-"`
	IsRelatedTo    []string `json:"-"`
	DependsOn      []string `json:"-"`
	Blocks         []string `json:"-"`
	EpicKey        string   `json:"-"`

	// レポート用のカウンター（インポート対象外）
	WatchersCount int `json:"-"`
	VotesCount    int `json:"-"`

	// 本文中で参照されている他issueのJiraキー
	// リダイレクトサービスによる書き換えで本文からbrowse URLが消えるため、
	// 書き換え前のテキストから抽出した結果をここに保持します
	JiraLinks []string `json:"-"`
}

// Comment はissueに付随するコメントです（追加順がそのままインポート順になります）
type Comment struct {
	CreatedAt string `json:"created_at,omitempty"`
	Body      string `json:"body"`

	// 書き換え前の本文から抽出したJiraキー参照（Issue.JiraLinksと同様）
	JiraLinks []string `json:"-"`
}

// ImportRequest はIssue Import APIに送信するドキュメントです
type ImportRequest struct {
	Issue    *Issue    `json:"issue"`
	Comments []Comment `json:"comments"`
}

// ImportMapping はインポート済みissue1件分の記録です
// 実行ごとのJSONアーティファクトとして永続化されます
type ImportMapping struct {
	JiraIssueKey  string   `json:"jira_issue_key"`
	GithubIssueID int      `json:"github_issue_id"`
	Title         string   `json:"title"`
	CreatedAt     string   `json:"created_at"`
	ClosedAt      string   `json:"closed_at,omitempty"`
	UpdatedAt     string   `json:"updated_at"`
	Closed        bool     `json:"closed"`
	Labels        []string `json:"labels"`
	Milestone     int      `json:"milestone,omitempty"`

	WatchersCount int  `json:"watchers_count"`
	HasWatchers   bool `json:"has_watchers"`
	VotesCount    int  `json:"votes_count"`
	HasVotes      bool `json:"has_votes"`

	// 本文・コメント中で参照されている他issueのJiraキー
	JiraLinks              []string `json:"jira_links"`
	JiraLinksInBody        []string `json:"jira_links_in_body"`
	JiraLinksInComments    []string `json:"jira_links_in_comments"`
	HasJiraLinks           bool     `json:"has_jira_links"`
	HasJiraLinksInBody     bool     `json:"has_jira_links_in_body"`
	HasJiraLinksInComments bool     `json:"has_jira_links_in_comments"`

	// ポストパスで解決された「インポート済みissueを指す」参照
	JiraLinksImported           []string `json:"jira_links_imported"`
	JiraLinksInBodyImported     []string `json:"jira_links_in_body_imported"`
	JiraLinksInCommentsImported []string `json:"jira_links_in_comments_imported"`
}

// Milestone はGitHub側のマイルストーンを表します
type Milestone struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// Label はGitHub側のラベルを表します
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}
