package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Version はインポーターのバージョンです（issue本文のメタデータにも埋め込まれます）
const Version = "1.1.0"

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Jira側の設定
	JiraBaseURL        string
	JiraProjectName    string
	JiraDoneCategoryID string
	XMLFilePaths       string // セミコロン区切りで複数指定可能

	// GitHub側の設定
	GithubAccount string
	GithubRepo    string
	GithubPAT     string

	// アバター・添付ファイル・ユーザー名マッピングをホストする "org/repo"
	// 未設定の場合はローカルファイルを使用し、アバターは付与されません
	HostedArtifactOrgRepo string

	// Jiraリンク書き換え用のリダイレクトサービスURL（未設定なら書き換えなし）
	RedirectionService string

	// コンポーネントをラベルとして含めるかどうか
	IncludeComponentInLabels bool

	// マッピングファイルのパス
	LabelsMappingFile  string
	AllowedLabelsFile  string
	FixedUsernamesFile    string
	AvatarMappingFile     string
	AttachmentMappingFile string
	RemoteLinksFile       string

	// fetch_issuesツール用のJQL設定
	JQLQuery      string
	JQLMaxResults int

	// 動作モード
	DryRun       bool
	DryRunFolder string
}

// LoadConfig は環境変数から設定を読み込みます
func LoadConfig() (*Config, error) {
	// .envファイルを読み込む
	_ = godotenv.Load()

	config := &Config{
		JiraBaseURL:        strings.TrimRight(getEnvWithDefault("JIRA_MIGRATION_JIRA_URL", "https://issues.jenkins.io"), "/"),
		JiraProjectName:    getEnvWithDefault("JIRA_MIGRATION_JIRA_PROJECT_NAME", "INFRA"),
		JiraDoneCategoryID: getEnvWithDefault("JIRA_MIGRATION_JIRA_DONE_ID", "3"),
		XMLFilePaths:       os.Getenv("JIRA_MIGRATION_FILE_PATHS"),

		GithubAccount: getEnvWithDefault("JIRA_MIGRATION_GITHUB_NAME", "jenkins-infra"),
		GithubRepo:    getEnvWithDefault("JIRA_MIGRATION_GITHUB_REPO", "helpdesk"),
		GithubPAT:     os.Getenv("JIRA_MIGRATION_GITHUB_ACCESS_TOKEN"),

		HostedArtifactOrgRepo: os.Getenv("JIRA_MIGRATION_HOSTED_ARTIFACT_ORG_REPO"),
		RedirectionService:    strings.TrimRight(os.Getenv("JIRA_MIGRATION_REDIRECTION_SERVICE"), "/"),

		IncludeComponentInLabels: getEnvAsBoolWithDefault("JIRA_MIGRATION_INCLUDE_COMPONENT_IN_LABELS", true),

		LabelsMappingFile:  getEnvWithDefault("JIRA_MIGRATION_LABELS_MAPPING_FILE", "labels_mapping.txt"),
		AllowedLabelsFile:  getEnvWithDefault("JIRA_MIGRATION_ALLOWED_LABELS_FILE", "allowed_labels.txt"),
		FixedUsernamesFile: getEnvWithDefault("JIRA_MIGRATION_FIXED_USERNAMES_FILE", "jira_fixed_usernames.txt"),
		AvatarMappingFile:     getEnvWithDefault("JIRA_MIGRATION_AVATAR_MAPPING_FILE", "jira_username_avatar_mapping.txt"),
		AttachmentMappingFile: getEnvWithDefault("JIRA_MIGRATION_ATTACHMENT_MAPPING_FILE", "jira_attachment_mapping.txt"),
		RemoteLinksFile:       getEnvWithDefault("JIRA_MIGRATION_REMOTE_LINKS_FILE", "combined-remotelinks.txt"),

		JQLQuery:      os.Getenv("JIRA_MIGRATION_JQL_QUERY"),
		JQLMaxResults: getEnvAsIntWithDefault("JIRA_MIGRATION_JQL_MAX_RESULTS", 1000),

		DryRunFolder: getEnvWithDefault("JIRA_MIGRATION_DRY_RUN_FOLDER", "dry-run"),
	}

	return config, nil
}

// HostedArtifactBase はホストされたアーティファクトのベースURLを返します（未設定なら空文字列）
func (c *Config) HostedArtifactBase() string {
	if c.HostedArtifactOrgRepo == "" {
		return ""
	}
	return "https://raw.githubusercontent.com/" + c.HostedArtifactOrgRepo + "/refs/heads/main"
}

// デフォルト値付きで環境変数を取得
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// デフォルト値付きで環境変数を整数として取得
func getEnvAsIntWithDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// デフォルト値付きで環境変数を真偽値として取得（"true"/"false" のみ解釈）
func getEnvAsBoolWithDefault(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true":
		return true
	case "false":
		return false
	}
	return defaultValue
}
