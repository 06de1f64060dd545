package utils

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadKeyValueFile は "key=value" 形式のマッピングファイルを読み込みます
// ラベルの読み替えテーブル（labels_mapping.txt）などに使用します
func ReadKeyValueFile(path string) (map[string]string, error) {
	return readDelimitedFile(path, "=")
}

// ReadColonMappingFile は "key:value" 形式のマッピングファイルを読み込みます
// JIRAUSERアカウントの正式ユーザー名（例: JIRAUSER134221:hlemeur）や
// アバターのパス（例: hlemeur:avatars/hlemeur.png）に使用します
func ReadColonMappingFile(path string) (map[string]string, error) {
	return readDelimitedFile(path, ":")
}

// ReadLineListFile は1行1エントリのリストファイルを読み込みます
// 許可ラベルのリスト（allowed_labels.txt）に使用します
func ReadLineListFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("リストファイルオープンエラー: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\n"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("リストファイル読み込みエラー: %w", err)
	}

	return lines, nil
}

// ReadGroupedLinksFile はリモートリンクのファイルを読み込みます
// 各行は "ISSUEKEY:url" 形式で、同じキーの行は1つのリストにまとめられます
func ReadGroupedLinksFile(path string) (map[string][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("リモートリンクファイルオープンエラー: %w", err)
	}
	defer file.Close()

	groups := make(map[string][]string)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		groups[parts[0]] = append(groups[parts[0]], parts[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("リモートリンクファイル読み込みエラー: %w", err)
	}

	return groups, nil
}

// 区切り文字指定でマッピングファイルを読み込む共通処理
func readDelimitedFile(path, sep string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("マッピングファイルオープンエラー: %w", err)
	}
	defer file.Close()

	mapping := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		parts := strings.SplitN(line, sep, 2)
		if len(parts) != 2 {
			continue
		}
		mapping[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("マッピングファイル読み込みエラー: %w", err)
	}

	return mapping, nil
}

// ExpandXMLFilePaths はセミコロン区切りのパス指定を個々のXMLファイルパスに展開します
// ディレクトリが指定された場合は配下の*.xmlをすべて対象にします
func ExpandXMLFilePaths(filePaths string) ([]string, error) {
	var files []string
	for _, name := range strings.Split(filePaths, ";") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		info, err := os.Stat(name)
		if err != nil {
			return nil, fmt.Errorf("XMLファイルが見つかりません: %w", err)
		}

		if info.IsDir() {
			matches, err := filepath.Glob(filepath.Join(name, "*.xml"))
			if err != nil {
				return nil, fmt.Errorf("XMLディレクトリ走査エラー: %w", err)
			}
			files = append(files, matches...)
		} else {
			files = append(files, name)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("対象のXMLファイルがありません: %s", filePaths)
	}
	return files, nil
}
