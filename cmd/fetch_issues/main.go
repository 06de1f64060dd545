package main

import (
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"jiratogithub/config"
	"jiratogithub/utils"
)

// 取得したXMLの保存先フォルダ
const outputFolder = "jira_output"

// 検索結果の総件数だけを読み取るための最小限のXMLスキーマ
type searchResultProbe struct {
	Channel struct {
		Issue struct {
			Total int `xml:"total,attr"`
		} `xml:"issue"`
	} `xml:"channel"`
}

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

	utils.LogInfo("Jira issue取得ツール")

	// 設定の読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}

	if cfg.JQLQuery == "" {
		utils.LogError("JIRA_MIGRATION_JQL_QUERY が設定されていません")
		os.Exit(1)
	}

	if err := os.MkdirAll(outputFolder, 0o755); err != nil {
		utils.LogError("出力フォルダの作成に失敗しました: %v", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 120 * time.Second}

	// ページネーション計算のため、まず1件だけ取得して総件数を調べます
	totalResults, err := fetchTotalResults(client, cfg)
	if err != nil {
		utils.LogError("総件数の取得に失敗しました: %v", err)
		os.Exit(1)
	}
	utils.LogInfo("総件数: %d", totalResults)

	totalPages := (totalResults + cfg.JQLMaxResults - 1) / cfg.JQLMaxResults

	for pager := 0; pager < totalResults; pager += cfg.JQLMaxResults {
		pageNumber := pager/cfg.JQLMaxResults + 1
		utils.LogInfo("ページ %d / %d を取得しています", pageNumber, totalPages)

		data, err := fetchSearchPage(client, cfg, cfg.JQLMaxResults, pager)
		if err != nil {
			utils.LogError("ページ %d の取得に失敗しました: %v", pageNumber, err)
			os.Exit(1)
		}

		outputFile := filepath.Join(outputFolder, fmt.Sprintf("result-%d.xml", pager))
		if err := os.WriteFile(outputFile, data, 0o644); err != nil {
			utils.LogError("%s の書き込みに失敗しました: %v", outputFile, err)
			os.Exit(1)
		}
	}

	utils.LogInfo("取得が完了しました")
}

// 検索XMLエンドポイントのURLを組み立てます
func searchRequestURL(cfg *config.Config, tempMax, pagerStart int) string {
	return fmt.Sprintf(
		"%s/sr/jira.issueviews:searchrequest-xml/temp/SearchRequest.xml?jqlQuery=%s&tempMax=%d&pager/start=%d",
		cfg.JiraBaseURL, url.QueryEscape(cfg.JQLQuery), tempMax, pagerStart)
}

// クエリの総件数を取得します（tempMax=1で1件だけ読み、total属性を見ます）
func fetchTotalResults(client *http.Client, cfg *config.Config) (int, error) {
	data, err := fetchSearchPage(client, cfg, 1, 1)
	if err != nil {
		return 0, err
	}

	var probe searchResultProbe
	if err := xml.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("検索結果XMLのパースエラー: %w", err)
	}
	return probe.Channel.Issue.Total, nil
}

// 検索結果ページを1件取得して生XMLを返します
func fetchSearchPage(client *http.Client, cfg *config.Config, tempMax, pagerStart int) ([]byte, error) {
	resp, err := client.Get(searchRequestURL(cfg, tempMax, pagerStart))
	if err != nil {
		return nil, fmt.Errorf("検索リクエストエラー: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("検索リクエストがステータスコード %d を返しました", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み込みエラー: %w", err)
	}
	return data, nil
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
Jira issue取得ツール

使用方法:
  %s [オプション]

オプション:
  -help               このヘルプを表示する

環境変数:
  JIRA_MIGRATION_JIRA_URL         JiraベースURL (デフォルト: https://issues.jenkins.io)
  JIRA_MIGRATION_JQL_QUERY        取得対象を選択するJQLクエリ (必須)
  JIRA_MIGRATION_JQL_MAX_RESULTS  1ページあたりの取得件数 (デフォルト: 1000)

説明:
  このツールはJiraの検索XMLエンドポイントからissueをページ単位で
  取得し、jira_output/result-<オフセット>.xml として保存します。

  保存したXMLはそのまま issue_import ツールの入力になります
  （JIRA_MIGRATION_FILE_PATHS にjira_outputフォルダを指定してください）。
`, os.Args[0])
}
