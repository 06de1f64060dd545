package services

import "strings"

// NormalizeLabel はラベル名をGitHub向けに正規化します
// 小文字化・前後空白除去・空白のハイフン置換・アポストロフィ除去を行います
func NormalizeLabel(label string) string {
	normalized := strings.ToLower(strings.TrimSpace(label))
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.ReplaceAll(normalized, "'", "")
	return normalized
}

// ConvertLabel はラベルの読み替えテーブルと許可リストを適用します
// 読み替え後のラベルが許可リストにない場合はfalseを返し、そのラベルは取り込まれません
func ConvertLabel(label string, labelsMapping map[string]string, approvedLabels []string) (string, bool) {
	mapped := label
	if replacement, ok := labelsMapping[label]; ok {
		mapped = replacement
	}

	for _, approved := range approvedLabels {
		if mapped == approved {
			return mapped, true
		}
	}
	return "", false
}

// LabelColour はラベル名から決定的に色を導出します
// 同じラベルには常に同じ色が割り当てられます
func LabelColour(label string) string {
	switch {
	case label == "jira-type:epic":
		return "ddf4dd"
	case strings.HasPrefix(label, "jira-type:"):
		return "7bc043"
	case label == "bug":
		return "ee4035"
	default:
		return "ededed"
	}
}
