package main

import (
	"flag"
	"fmt"
	"os"

	"jiratogithub/api"
	"jiratogithub/config"
	"jiratogithub/utils"
)

func main() {
	// ヘルプフラグの定義
	help := flag.Bool("help", false, "ヘルプを表示する")

	// フラグのパース
	flag.Parse()

	// ヘルプフラグが指定された場合はヘルプを表示
	if *help {
		printHelp()
		return
	}

	utils.LogInfo("GitHub認証確認ツール")

	// 設定の読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}

	// GitHubクライアントの初期化
	client := api.NewGithubClient(cfg)

	// 認証チェック
	utils.LogInfo("GitHub APIの認証を確認しています...")
	err = client.CheckAuth()
	if err != nil {
		utils.LogError("GitHub認証エラー: %v", err)
		utils.LogError("認証情報を確認してください。")
		os.Exit(1)
	}

	utils.LogInfo("GitHub認証成功！ 接続先: %s/%s", cfg.GithubAccount, cfg.GithubRepo)
	utils.LogInfo("GitHub APIの認証情報は正常です。")
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
GitHub認証確認ツール

使用方法:
  %s [オプション]

オプション:
  -help               このヘルプを表示する

環境変数:
  JIRA_MIGRATION_GITHUB_NAME          インポート先のGitHubオーナー (必須)
  JIRA_MIGRATION_GITHUB_REPO          インポート先のGitHubリポジトリ (必須)
  JIRA_MIGRATION_GITHUB_ACCESS_TOKEN  GitHub Personal Access Token (必須)

説明:
  このツールはGitHub APIの認証情報が正しく設定されているかを確認します。
  認証が成功すれば、issue_importツールも正常に動作する可能性が高いです。
`, os.Args[0])
}
