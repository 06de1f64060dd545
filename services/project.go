package services

import (
	"os"
	"sort"
	"strings"

	"jiratogithub/config"
	"jiratogithub/models"
	"jiratogithub/utils"
)

// Mappings はプロジェクト構築時に参照する外部マッピング一式です
type Mappings struct {
	// ラベルの読み替えテーブル（移行元ラベル名 → 移行先ラベル名）
	Labels map[string]string
	// 取り込みを許可するラベル名のリスト
	AllowedLabels []string
	// JIRAUSER*アカウントの正式ユーザー名
	FixedUsernames map[string]string
	// ユーザー名 → アバター画像パス（ホストされたアーティファクトリポジトリ内）
	UserAvatars map[string]string
	// issueキー → リモートリンクURLのリスト
	RemoteLinks map[string][]string
	// 添付ファイルID → 移設先パス（ホストされたアーティファクトリポジトリ内）
	AttachmentPaths map[string]string
}

// LoadMappings は設定されたファイルからマッピング一式を読み込みます
// ラベル関係の2ファイルは必須、その他は存在しない場合は空のまま続行します
func LoadMappings(cfg *config.Config) (Mappings, error) {
	var m Mappings
	var err error

	m.Labels, err = utils.ReadKeyValueFile(cfg.LabelsMappingFile)
	if err != nil {
		return m, err
	}
	m.AllowedLabels, err = utils.ReadLineListFile(cfg.AllowedLabelsFile)
	if err != nil {
		return m, err
	}

	m.FixedUsernames = optionalColonMapping(cfg.FixedUsernamesFile)

	// アバターはホストされている場合のみ表示できるため、その場合のみ読み込みます
	if cfg.HostedArtifactOrgRepo != "" {
		m.UserAvatars = optionalColonMapping(cfg.AvatarMappingFile)
		m.AttachmentPaths = optionalColonMapping(cfg.AttachmentMappingFile)
	}

	if links, err := utils.ReadGroupedLinksFile(cfg.RemoteLinksFile); err == nil {
		m.RemoteLinks = links
	} else {
		utils.LogWarn("リモートリンクファイルを読み込めませんでした（スキップします）: %v", err)
	}

	return m, nil
}

// 存在しなくても続行できるマッピングファイルを読み込みます
func optionalColonMapping(path string) map[string]string {
	mapping, err := utils.ReadColonMappingFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			utils.LogWarn("マッピングファイル %s を読み込めませんでした: %v", path, err)
		}
		return map[string]string{}
	}
	return mapping
}

// Project は移行対象コーパス全体を保持する集約です
// マイルストーン・コンポーネント・ラベル・タイプのヒストグラムと、
// 正規化済みissueのリストを順序付きで所有します
type Project struct {
	config   *config.Config
	mappings Mappings

	milestoneCounts  map[string]int
	milestoneNumbers map[string]int
	componentCounts  map[string]int
	labelCounts      map[string]int
	typeCounts       map[string]int
	issues           []*models.Issue
}

// NewProject は新しいプロジェクト集約を作成します
func NewProject(cfg *config.Config, mappings Mappings) *Project {
	return &Project{
		config:           cfg,
		mappings:         mappings,
		milestoneCounts:  make(map[string]int),
		milestoneNumbers: make(map[string]int),
		componentCounts:  make(map[string]int),
		labelCounts:      make(map[string]int),
		typeCounts:       make(map[string]int),
	}
}

// Name は移行対象のJiraプロジェクト名を返します
func (p *Project) Name() string {
	return p.config.JiraProjectName
}

// Issues は正規化済みissueのリストを追加順で返します
func (p *Project) Issues() []*models.Issue {
	return p.issues
}

// Milestones は発見済みマイルストーン名のヒストグラムを返します
func (p *Project) Milestones() map[string]int {
	return p.milestoneCounts
}

// Components は発見済みコンポーネント名のヒストグラムを返します
func (p *Project) Components() map[string]int {
	return p.componentCounts
}

// IsComponent は指定した名前がコンポーネント由来かどうかを返します
func (p *Project) IsComponent(name string) bool {
	_, ok := p.componentCounts[name]
	return ok
}

// SetMilestoneNumber はGitHub側で割り当てられたマイルストーン番号を記録します
func (p *Project) SetMilestoneNumber(title string, number int) {
	p.milestoneNumbers[title] = number
}

// MilestoneNumber は記録済みのマイルストーン番号を返します
func (p *Project) MilestoneNumber(title string) (int, bool) {
	number, ok := p.milestoneNumbers[title]
	return number, ok
}

// AllLabels はコンポーネント・ラベル・タイプをマージした全ラベル名を返します
// 常にセンチネルラベルを含みます
func (p *Project) AllLabels() []string {
	merged := make(map[string]bool)
	for name := range p.componentCounts {
		merged[name] = true
	}
	for name := range p.labelCounts {
		merged[name] = true
	}
	for name := range p.typeCounts {
		merged[name] = true
	}
	merged[models.SentinelLabel] = true

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddItem はエクスポートされたitemを1件コーパスに取り込みます
// 対象プロジェクト以外のitemはスキップされます
func (p *Project) AddItem(item *models.Item) {
	if item.ProjectKey() != p.Name() {
		utils.LogInfo("item %s をスキップします（プロジェクト %s、対象: %s）",
			item.Key, item.ProjectKey(), p.Name())
		return
	}

	issue := p.normalizeItem(item)
	p.issues = append(p.issues, issue)

	p.addMilestone(item, issue)
	p.countLabels(item)
	p.addSubtasks(item, issue)
	p.addParentTask(item, issue)
	p.addComments(item, issue)
	p.addRemoteLinks(item, issue)
	p.addRelationships(item, issue)
}

// fixVersionをマイルストーンとして記録します（なければ何もしません）
func (p *Project) addMilestone(item *models.Item, issue *models.Issue) {
	if item.FixVersion == nil {
		return
	}

	title := strings.TrimSpace(*item.FixVersion)
	p.milestoneCounts[title]++
	issue.MilestoneName = title
}

// コンポーネント・ラベル・タイプのヒストグラムを更新します
func (p *Project) countLabels(item *models.Item) {
	for _, component := range item.Components {
		p.componentCounts[component]++
	}
	for _, label := range item.SourceLabels() {
		p.labelCounts[label]++
	}
	if item.Type != "" {
		p.typeCounts[item.Type]++
	}
}

// issue間の関係エッジをitemから抽出します
// リンク要素が存在しない場合はエッジなしとして扱います
func (p *Project) addRelationships(item *models.Item, issue *models.Issue) {
	if item.IssueLinks != nil {
		for _, linkType := range item.IssueLinks.IssueLinkType {
			for _, group := range linkType.OutwardLinks {
				p.appendEdges(issue, group)
			}
			for _, group := range linkType.InwardLinks {
				p.appendEdges(issue, group)
			}
		}
	}

	issue.EpicKey = item.EpicLinkKey()
}

// リンクグループのdescription（空白をハイフンに置換）が既知の関係種別と一致する場合のみ記録します
func (p *Project) appendEdges(issue *models.Issue, group models.LinkGroup) {
	kind := strings.ReplaceAll(group.Description, " ", "-")

	var target *[]string
	switch kind {
	case "duplicates":
		target = &issue.Duplicates
	case "is-duplicated-by":
		target = &issue.IsDuplicatedBy
	case "is-related-to":
		target = &issue.IsRelatedTo
	case "depends-on":
		target = &issue.DependsOn
	case "blocks":
		target = &issue.Blocks
	default:
		return
	}

	for _, link := range group.IssueLink {
		*target = append(*target, link.IssueKey...)
	}
}

// Prettify は発見済みエンティティのヒストグラムと総issue数を表示します
func (p *Project) Prettify() {
	hist := func(h map[string]int) {
		names := make([]string, 0, len(h))
		for name := range h {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			utils.LogInfo("%30s (%5d): %s", name, h[name], strings.Repeat("#", h[name]))
		}
	}

	utils.LogInfo("%s:", p.Name())
	utils.LogInfo("  Milestones:")
	hist(p.milestoneCounts)
	utils.LogInfo("  Types:")
	hist(p.typeCounts)
	utils.LogInfo("  Components:")
	hist(p.componentCounts)
	utils.LogInfo("  Labels:")
	hist(p.labelCounts)
	utils.LogInfo("インポート対象issue総数: %d", len(p.issues))
}
