package main

import (
	"encoding/xml"
	"flag"
	"fmt"
	"os"
	"time"

	"jiratogithub/api"
	"jiratogithub/config"
	"jiratogithub/models"
	"jiratogithub/services"
	"jiratogithub/utils"
)

func main() {
	// コマンドラインフラグの定義
	startFrom := flag.Int("start-from", 0, "指定件数分の先頭issueをスキップして再開する")
	dryRun := flag.Bool("dry-run", true, "GitHubへ書き込まずローカルにアーティファクトを生成する")
	help := flag.Bool("help", false, "ヘルプを表示する")

	// フラグのパース
	flag.Parse()

	// ヘルプフラグが指定された場合はヘルプを表示
	if *help {
		printHelp()
		return
	}

	// 開始時間の記録
	startTime := time.Now()

	utils.LogInfo("Jira → GitHub issueインポートツール v%s", config.Version)

	// 設定の読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}

	// コマンドラインフラグは環境変数より優先されます
	cfg.DryRun = *dryRun

	utils.LogInfo("Jiraベース URL: %s", cfg.JiraBaseURL)
	utils.LogInfo("Jiraプロジェクト: %s", cfg.JiraProjectName)
	utils.LogInfo("GitHubリポジトリ: %s/%s", cfg.GithubAccount, cfg.GithubRepo)
	utils.LogInfo("ドライラン: %t", cfg.DryRun)
	if *startFrom > 0 {
		utils.LogInfo("再開位置: %d", *startFrom)
	}

	// 本番モードではGitHub認証情報を先に確認します
	client := api.NewGithubClient(cfg)
	if !cfg.DryRun {
		utils.LogInfo("GitHub認証情報を確認しています...")
		if err := client.CheckAuth(); err != nil {
			utils.LogError("GitHub認証エラー: %v", err)
			utils.LogError("GitHubのPersonal Access Tokenを確認してください。")
			os.Exit(1)
		}
		utils.LogInfo("GitHub認証成功")
	}

	// マッピングファイルの読み込み
	mappings, err := services.LoadMappings(cfg)
	if err != nil {
		utils.LogError("マッピングファイルの読み込みに失敗しました: %v", err)
		os.Exit(1)
	}

	// XMLエクスポートファイルの展開
	files, err := utils.ExpandXMLFilePaths(cfg.XMLFilePaths)
	if err != nil {
		utils.LogError("XMLファイルの展開に失敗しました: %v", err)
		os.Exit(1)
	}
	utils.LogInfo("XMLファイル数: %d", len(files))

	// 全XMLファイルを読み込んでプロジェクトコーパスを構築
	project := services.NewProject(cfg, mappings)
	for _, file := range files {
		if err := loadExportFile(project, file); err != nil {
			utils.LogError("%s の読み込みに失敗しました: %v", file, err)
			os.Exit(1)
		}
	}

	if len(project.Issues()) == 0 {
		utils.LogError("インポート対象のissueが見つかりません")
		os.Exit(1)
	}

	// 発見したコーパスの概要を表示
	project.Prettify()

	importer := services.NewImporter(cfg, project, client)

	// マイルストーンとラベルの同期
	if err := importer.ImportMilestones(); err != nil {
		utils.LogError("マイルストーンインポートエラー: %v", err)
		os.Exit(1)
	}

	// 再開実行時はラベルは同期済みのためスキップします
	if *startFrom == 0 {
		importer.ImportLabels()
	}

	// issueのインポート実行
	if err := importer.ImportIssues(*startFrom); err != nil {
		utils.LogError("issueインポートエラー: %v", err)
		os.Exit(1)
	}

	// 処理時間の表示
	elapsed := time.Since(startTime)
	utils.LogInfo("インポートが完了しました。処理時間: %s", elapsed)
}

// XMLエクスポートファイル1件をパースしてプロジェクトに取り込みます
func loadExportFile(project *services.Project, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("ファイル読み込みエラー: %w", err)
	}

	var export models.JiraExport
	if err := xml.Unmarshal(data, &export); err != nil {
		return fmt.Errorf("XMLパースエラー: %w", err)
	}

	utils.LogInfo("%s: %d 件のitem", file, len(export.Channel.Items))
	for index := range export.Channel.Items {
		project.AddItem(&export.Channel.Items[index])
	}
	return nil
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
Jira → GitHub issueインポートツール

使用方法:
  %s [オプション]

オプション:
  -start-from 数      指定件数分の先頭issueをスキップして再開する
  -dry-run            GitHubへ書き込まずローカルにアーティファクトを生成する (デフォルト: true)
  -help               このヘルプを表示する

環境変数:
  JIRA_MIGRATION_JIRA_URL              JiraベースURL (デフォルト: https://issues.jenkins.io)
  JIRA_MIGRATION_JIRA_PROJECT_NAME     Jiraプロジェクトキー (デフォルト: INFRA)
  JIRA_MIGRATION_FILE_PATHS            XMLエクスポートのパス（セミコロン区切り、ディレクトリ可）
  JIRA_MIGRATION_GITHUB_NAME           インポート先のGitHubオーナー (デフォルト: jenkins-infra)
  JIRA_MIGRATION_GITHUB_REPO           インポート先のGitHubリポジトリ (デフォルト: helpdesk)
  JIRA_MIGRATION_GITHUB_ACCESS_TOKEN   GitHub Personal Access Token (本番モードで必須)
  JIRA_MIGRATION_LABELS_MAPPING_FILE   ラベルリネームのマッピングファイル (必須)
  JIRA_MIGRATION_ALLOWED_LABELS_FILE   取り込みを許可するラベルのリスト (必須)
  JIRA_MIGRATION_DRY_RUN_FOLDER        ドライラン出力フォルダ (デフォルト: dry-run)

説明:
  このツールはJiraのXMLエクスポートを読み込み、GitHubの非同期
  インポートAPIでissueとして取り込みます。

  abuse検知を避けるため、issueは1件ずつ送信され、完了を確認して
  から次に進みます。中断した場合は -start-from で再開できます。

  ドライランでは dry-run フォルダにJSONドキュメントとMarkdownの
  プレビューが生成され、GitHubへの書き込みは行われません。
`, os.Args[0])
}
